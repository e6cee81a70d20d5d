package models

import "time"

// BrokerConnection holds the credentials of one account at one broker.
type BrokerConnection struct {
	ID        string `gorm:"primaryKey"`
	OwnerID   string `gorm:"index"`
	Kind      string `gorm:"size:32;not null"` // e.g. "alpaca_paper", "binance"
	APIKey    string
	APISecret string
	CreatedAt time.Time
	UpdatedAt time.Time
}
