package models

import "time"

// NoteType classifies an operational note.
type NoteType string

const (
	NoteTypeExternalClose NoteType = "external_close"
	NoteTypeStopLoss      NoteType = "stop_loss_triggered"
	NoteTypeTakeProfit    NoteType = "take_profit_triggered"
)

// PositionNote is a free-text operational note attached to a position.
type PositionNote struct {
	ID         uint     `gorm:"primaryKey"`
	PositionID string   `gorm:"index;not null"`
	Type       NoteType `gorm:"size:32;not null"`
	Content    string   `gorm:"not null"`
	CreatedAt  time.Time
}
