// Package alpaca adapts the Alpaca trading API to the broker.Adapter contract.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tradesync/internal/broker"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Compile-time interface check.
var _ broker.Adapter = (*Adapter)(nil)

// Adapter implements broker.Adapter on top of the Alpaca SDK client.
type Adapter struct {
	connectionID string
	client       *alpacaapi.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// Options configure an Adapter.
type Options struct {
	ConnectionID string
	APIKey       string
	APISecret    string
	BaseURL      string
	Limiter      *rate.Limiter
}

// New creates an Alpaca adapter. A nil limiter disables client-side throttling.
func New(opts Options, logger *zap.Logger) *Adapter {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Adapter{
		connectionID: opts.ConnectionID,
		client: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		limiter: limiter,
		logger:  logger.With(zap.String("broker", "alpaca"), zap.String("connection_id", opts.ConnectionID)),
	}
}

// ConnectionID returns the stored connection this adapter serves.
func (a *Adapter) ConnectionID() string {
	return a.connectionID
}

// Connect checks the credentials by fetching the account.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	acct, err := a.client.GetAccount()
	if err != nil {
		return fmt.Errorf("alpaca connect: %w", err)
	}
	a.logger.Debug("Connected to Alpaca", zap.String("account", acct.AccountNumber))
	return nil
}

// GetOrderTracked fetches and normalizes one order.
func (a *Adapter) GetOrderTracked(ctx context.Context, orderID string) (*broker.NormalizedOrder, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	order, err := a.client.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("alpaca get order %s: %w", orderID, err)
	}
	return normalizeOrder(order)
}

// GetPositionNormalized returns the open position for symbol, or nil when
// Alpaca answers 404.
func (a *Adapter) GetPositionNormalized(ctx context.Context, symbol string) (*broker.NormalizedPosition, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	pos, err := a.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpacaapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("alpaca get position %s: %w", symbol, err)
	}

	qty := pos.Qty.InexactFloat64()
	if strings.EqualFold(pos.Side, "short") && qty > 0 {
		qty = -qty
	}
	return &broker.NormalizedPosition{
		Symbol:        pos.Symbol,
		Quantity:      qty,
		CurrentPrice:  floatOrZero(pos.CurrentPrice),
		AvgEntryPrice: pos.AvgEntryPrice.InexactFloat64(),
	}, nil
}

func normalizeOrder(o *alpacaapi.Order) (*broker.NormalizedOrder, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode raw order: %w", err)
	}

	n := &broker.NormalizedOrder{
		OrderID:        o.ID,
		Symbol:         o.Symbol,
		Side:           broker.Side(strings.ToLower(string(o.Side))),
		Quantity:       floatOrZero(o.Qty),
		OrderType:      orderKind(string(o.Type)),
		Status:         orderStatus(o.Status),
		LimitPrice:     floatPtr(o.LimitPrice),
		StopPrice:      floatPtr(o.StopPrice),
		FilledAvgPrice: floatPtr(o.FilledAvgPrice),
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
		CanceledAt:     o.CanceledAt,
		RawBrokerData:  raw,
	}
	filled := o.FilledQty.InexactFloat64()
	n.FilledQuantity = &filled
	if n.Status != broker.OrderStatusPending && n.Status != broker.OrderStatusRejected {
		accepted := o.SubmittedAt
		if !o.UpdatedAt.IsZero() {
			accepted = o.UpdatedAt
		}
		n.AcceptedAt = &accepted
	}
	return n, nil
}

func orderStatus(s string) broker.OrderStatus {
	switch s {
	case "pending_new", "accepted_for_bidding":
		return broker.OrderStatusPending
	case "partially_filled":
		return broker.OrderStatusPartiallyFilled
	case "filled":
		return broker.OrderStatusFilled
	case "canceled", "replaced":
		return broker.OrderStatusCanceled
	case "rejected":
		return broker.OrderStatusRejected
	case "expired":
		return broker.OrderStatusExpired
	default:
		// new, accepted, pending_cancel, pending_replace, done_for_day, stopped, ...
		return broker.OrderStatusSubmitted
	}
}

func orderKind(t string) broker.OrderKind {
	switch t {
	case "limit":
		return broker.OrderKindLimit
	case "stop", "trailing_stop":
		return broker.OrderKindStop
	case "stop_limit":
		return broker.OrderKindStopLimit
	default:
		return broker.OrderKindMarket
	}
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func floatOrZero(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
