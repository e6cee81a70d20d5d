package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradesync/internal/broker"

	"go.uber.org/zap"
)

// Compile-time interface check.
var _ broker.Adapter = (*Adapter)(nil)

// Adapter implements broker.Adapter for Binance spot. Order ids take the form
// "SYMBOL:ORDERID" because the order endpoint is keyed by symbol. A spot
// position is the base-asset balance of the symbol.
type Adapter struct {
	connectionID string
	client       RestClientInterface
	logger       *zap.Logger

	mu         sync.Mutex
	baseAssets map[string]string
}

// NewAdapter wraps a REST client as a broker adapter.
func NewAdapter(connectionID string, client RestClientInterface, logger *zap.Logger) *Adapter {
	return &Adapter{
		connectionID: connectionID,
		client:       client,
		logger:       logger.With(zap.String("broker", "binance"), zap.String("connection_id", connectionID)),
		baseAssets:   make(map[string]string),
	}
}

// ConnectionID returns the stored connection this adapter serves.
func (a *Adapter) ConnectionID() string {
	return a.connectionID
}

// Connect checks connectivity via the server time endpoint.
func (a *Adapter) Connect(ctx context.Context) error {
	if _, err := a.client.GetServerTime(ctx); err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	return nil
}

// ParseOrderRef splits "BTCUSDT:12345" into symbol and numeric order id.
func ParseOrderRef(ref string) (string, int64, error) {
	symbol, id, ok := strings.Cut(ref, ":")
	if !ok || symbol == "" {
		return "", 0, fmt.Errorf("invalid binance order ref %q: want SYMBOL:ORDERID", ref)
	}
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid binance order id in %q: %w", ref, err)
	}
	return strings.ToUpper(symbol), orderID, nil
}

// GetOrderTracked fetches and normalizes one order.
func (a *Adapter) GetOrderTracked(ctx context.Context, orderRef string) (*broker.NormalizedOrder, error) {
	symbol, orderID, err := ParseOrderRef(orderRef)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.GetOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, err
	}
	return normalizeOrder(orderRef, resp)
}

// GetPositionNormalized reports the base-asset holding of symbol, or nil when
// the balance is zero.
func (a *Adapter) GetPositionNormalized(ctx context.Context, symbol string) (*broker.NormalizedPosition, error) {
	base, err := a.baseAsset(ctx, symbol)
	if err != nil {
		return nil, err
	}

	acct, err := a.client.GetAccount(ctx)
	if err != nil {
		return nil, err
	}

	var qty float64
	for _, b := range acct.Balances {
		if b.Asset != base {
			continue
		}
		qty = parseFloat(b.Free) + parseFloat(b.Locked)
		break
	}
	if qty == 0 {
		return nil, nil
	}

	price, err := a.client.GetTickerPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &broker.NormalizedPosition{Symbol: symbol, Quantity: qty, CurrentPrice: price}, nil
}

func (a *Adapter) baseAsset(ctx context.Context, symbol string) (string, error) {
	a.mu.Lock()
	base, ok := a.baseAssets[symbol]
	a.mu.Unlock()
	if ok {
		return base, nil
	}

	info, err := a.client.GetExchangeInfo(ctx, symbol)
	if err != nil {
		return "", err
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			a.mu.Lock()
			a.baseAssets[symbol] = s.BaseAsset
			a.mu.Unlock()
			return s.BaseAsset, nil
		}
	}
	return "", fmt.Errorf("symbol %s not listed on binance", symbol)
}

func normalizeOrder(ref string, o *OrderResponse) (*broker.NormalizedOrder, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode raw order: %w", err)
	}

	status := orderStatus(o.Status)
	executed := parseFloat(o.ExecutedQuantity)
	n := &broker.NormalizedOrder{
		OrderID:        ref,
		Symbol:         o.Symbol,
		Side:           broker.Side(strings.ToLower(o.Side)),
		Quantity:       parseFloat(o.OrigQuantity),
		OrderType:      orderKind(o.Type),
		Status:         status,
		FilledQuantity: &executed,
		SubmittedAt:    time.UnixMilli(o.Time).UTC(),
		RawBrokerData:  raw,
	}
	if p := parseFloat(o.Price); p > 0 {
		n.LimitPrice = &p
	}
	if p := parseFloat(o.StopPrice); p > 0 {
		n.StopPrice = &p
	}
	if executed > 0 {
		avg := parseFloat(o.CummulativeQuoteQty) / executed
		n.FilledAvgPrice = &avg
	}
	if o.WorkingTime > 0 {
		accepted := time.UnixMilli(o.WorkingTime).UTC()
		n.AcceptedAt = &accepted
	}
	updated := time.UnixMilli(o.UpdateTime).UTC()
	switch status {
	case broker.OrderStatusFilled:
		n.FilledAt = &updated
	case broker.OrderStatusCanceled:
		n.CanceledAt = &updated
	}
	return n, nil
}

func orderStatus(s string) broker.OrderStatus {
	switch s {
	case "NEW", "PENDING_CANCEL":
		return broker.OrderStatusSubmitted
	case "PARTIALLY_FILLED":
		return broker.OrderStatusPartiallyFilled
	case "FILLED":
		return broker.OrderStatusFilled
	case "CANCELED":
		return broker.OrderStatusCanceled
	case "REJECTED":
		return broker.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return broker.OrderStatusExpired
	default:
		return broker.OrderStatusPending
	}
}

func orderKind(t string) broker.OrderKind {
	switch t {
	case "LIMIT", "LIMIT_MAKER":
		return broker.OrderKindLimit
	case "STOP_LOSS", "TAKE_PROFIT":
		return broker.OrderKindStop
	case "STOP_LOSS_LIMIT", "TAKE_PROFIT_LIMIT":
		return broker.OrderKindStopLimit
	default:
		return broker.OrderKindMarket
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
