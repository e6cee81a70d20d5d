// Package broker defines the Adapter contract every trading venue implements
// and the broker-agnostic order and position shapes it returns.
package broker

import (
	"context"
	"encoding/json"
	"time"
)

// OrderStatus is the normalized lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether no further transition is expected from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderKind is the order type as placed at the venue.
type OrderKind string

const (
	OrderKindMarket    OrderKind = "market"
	OrderKindLimit     OrderKind = "limit"
	OrderKindStop      OrderKind = "stop"
	OrderKindStopLimit OrderKind = "stop_limit"
)

// Side is the order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// NormalizedOrder is an order snapshot independent of any venue's wire format.
type NormalizedOrder struct {
	OrderID        string
	Symbol         string
	Side           Side
	Quantity       float64
	OrderType      OrderKind
	Status         OrderStatus
	LimitPrice     *float64
	StopPrice      *float64
	FilledQuantity *float64
	FilledAvgPrice *float64
	SubmittedAt    time.Time
	AcceptedAt     *time.Time
	FilledAt       *time.Time
	CanceledAt     *time.Time
	RawBrokerData  json.RawMessage
}

// NormalizedPosition is a position snapshot as reported by the venue.
// Quantity is signed: negative for short holdings.
type NormalizedPosition struct {
	Symbol        string
	Quantity      float64
	CurrentPrice  float64
	AvgEntryPrice float64
}

// Adapter is the uniform interface to an external trading venue.
type Adapter interface {
	// ConnectionID returns the id of the stored broker connection this
	// adapter was built from.
	ConnectionID() string

	// Connect verifies credentials and connectivity.
	Connect(ctx context.Context) error

	// GetOrderTracked fetches the current state of a single order.
	GetOrderTracked(ctx context.Context, orderID string) (*NormalizedOrder, error)

	// GetPositionNormalized returns the venue's position for symbol, or
	// (nil, nil) when the venue holds no such position.
	GetPositionNormalized(ctx context.Context, symbol string) (*NormalizedPosition, error)
}
