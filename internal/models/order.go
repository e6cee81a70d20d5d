package models

import (
	"time"

	"tradesync/internal/broker"

	"gorm.io/datatypes"
)

// OrderMirror is the local shadow of a broker order, keyed by the broker's order id.
// Rows are upserted on every poll and never deleted.
type OrderMirror struct {
	BrokerOrderID      string             `gorm:"primaryKey"`
	BrokerConnectionID string             `gorm:"index"`
	OwnerID            string             `gorm:"index"`
	Symbol             string             `gorm:"not null"`
	Side               broker.Side        `gorm:"size:8"`
	OrderType          broker.OrderKind   `gorm:"size:16"`
	Status             broker.OrderStatus `gorm:"size:24;index"`
	Quantity           float64
	LimitPrice         *float64
	StopPrice          *float64
	FilledQuantity     float64
	FilledAvgPrice     float64
	SubmittedAt        time.Time
	AcceptedAt         *time.Time
	FilledAt           *time.Time
	CanceledAt         *time.Time
	LastSyncedAt       time.Time
	RawBrokerData      datatypes.JSON
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewOrderMirror builds the mirror row for a freshly polled order.
func NewOrderMirror(o *broker.NormalizedOrder, connectionID, ownerID string, syncedAt time.Time) OrderMirror {
	m := OrderMirror{
		BrokerOrderID:      o.OrderID,
		BrokerConnectionID: connectionID,
		OwnerID:            ownerID,
		Symbol:             o.Symbol,
		Side:               o.Side,
		OrderType:          o.OrderType,
		Status:             o.Status,
		Quantity:           o.Quantity,
		LimitPrice:         o.LimitPrice,
		StopPrice:          o.StopPrice,
		SubmittedAt:        o.SubmittedAt,
		AcceptedAt:         o.AcceptedAt,
		FilledAt:           o.FilledAt,
		CanceledAt:         o.CanceledAt,
		LastSyncedAt:       syncedAt,
		RawBrokerData:      datatypes.JSON(o.RawBrokerData),
	}
	if o.FilledQuantity != nil {
		m.FilledQuantity = *o.FilledQuantity
	}
	if o.FilledAvgPrice != nil {
		m.FilledAvgPrice = *o.FilledAvgPrice
	}
	return m
}
