package models

import (
	"time"

	"tradesync/internal/broker"
)

// Direction is the side of a holding.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionStatus is the lifecycle status of a position.
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "pending"
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosed  PositionStatus = "closed"
)

// Position is the local view of a holding at a broker.
type Position struct {
	ID                 string `gorm:"primaryKey"`
	OwnerID            string `gorm:"index"`
	BrokerConnectionID string `gorm:"index"`
	BrokerPositionRef  string
	OpenOrderID        string         `gorm:"index"` // broker order that opened the position
	Symbol             string         `gorm:"not null"`
	Direction          Direction      `gorm:"size:8;not null"`
	Quantity           float64        `gorm:"not null"`
	AvgEntryPrice      float64        `gorm:"not null"`
	CurrentPrice       float64
	StopLoss           *float64
	TakeProfit         *float64
	Status             PositionStatus `gorm:"size:16;not null;default:open;index"`
	UnrealizedPnl      float64
	LastSyncedAt       *time.Time `gorm:"index"`
	OpenedAt           time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DirectionForSide maps an opening order side to the resulting holding direction.
func DirectionForSide(side broker.Side) Direction {
	if side == broker.SideSell {
		return DirectionShort
	}
	return DirectionLong
}
