package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	recvWindow = "5000" // How long a request is valid in milliseconds
	maxRetries = 3
)

// RestClientInterface defines the read-only Binance endpoints the adapter needs.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetExchangeInfo(ctx context.Context, symbol string) (*ExchangeInfoResponse, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
	GetAccount(ctx context.Context) (*AccountResponse, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	backoff   func(attempt int) time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client against baseURL.
func NewRestClient(baseURL, apiKey, secretKey string, limiter *rate.Limiter, logger *zap.Logger) *RestClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &RestClient{
		client:    resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		apiKey:    apiKey,
		secretKey: secretKey,
		logger:    logger,
		limiter:   limiter,
		backoff:   exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s between attempts.
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery encodes params with timestamp and recvWindow and appends the
// signature last, over exactly the string that is sent.
func (c *RestClient) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetContext(ctx).
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil && resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, &APIError{StatusCode: statusCode, Body: resp.String()}
			}
			err = &APIError{StatusCode: statusCode, Body: resp.String()}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if i == maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// APIError is a non-2xx answer from Binance.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice fetches the latest price for one symbol.
func (c *RestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	result := resp.Result().(*TickerPrice)
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q for %s: %w", result.Price, symbol, err)
	}
	return price, nil
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// GetExchangeInfo fetches symbol information for one symbol.
func (c *RestClient) GetExchangeInfo(ctx context.Context, symbol string) (*ExchangeInfoResponse, error) {
	var exchangeInfo ExchangeInfoResponse

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&exchangeInfo)

	resp, err := c.doRequest(ctx, http.MethodGet, "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	return resp.Result().(*ExchangeInfoResponse), nil
}

// OrderResponse represents the response of the /order query endpoint.
type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stopPrice"`
	Time                int64  `json:"time"`
	UpdateTime          int64  `json:"updateTime"`
	WorkingTime         int64  `json:"workingTime"`
}

// GetOrder queries a single order. Binance needs the symbol to find it.
func (c *RestClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&OrderResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/order?"+c.signedQuery(params), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s/%d: %w", symbol, orderID, err)
	}
	return resp.Result().(*OrderResponse), nil
}

// Balance is one asset balance of the account.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountResponse represents the response of the /account endpoint.
type AccountResponse struct {
	CanTrade bool      `json:"canTrade"`
	Balances []Balance `json:"balances"`
}

// GetAccount fetches the account balances.
func (c *RestClient) GetAccount(ctx context.Context) (*AccountResponse, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&AccountResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/account?"+c.signedQuery(url.Values{}), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return resp.Result().(*AccountResponse), nil
}
