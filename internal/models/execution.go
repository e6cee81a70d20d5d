package models

import (
	"time"

	"gorm.io/gorm"
)

// ExecutionType tells whether a fill opened or closed exposure.
type ExecutionType string

const (
	ExecutionTypeEntry ExecutionType = "entry"
	ExecutionTypeExit  ExecutionType = "exit"
)

// Execution is the append-only record of one observed fill.
// (BrokerOrderID, Type) is unique so replaying a fill never adds a row.
type Execution struct {
	gorm.Model
	PositionID    string        `gorm:"index;not null"`
	Type          ExecutionType `gorm:"size:8;not null;uniqueIndex:idx_execution_order_type"`
	BrokerOrderID string        `gorm:"not null;uniqueIndex:idx_execution_order_type"`
	Quantity      float64       `gorm:"not null"`
	Price         float64       `gorm:"not null"`
	GrossValue    float64
	NetValue      float64
	ExecutedAt    time.Time
}
