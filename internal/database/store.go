package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradesync/internal/broker"
	"tradesync/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

var errFillAlreadyRecorded = errors.New("fill already recorded")

// Store is the gorm-backed persistence layer shared by the tracker and the
// position syncer. Every write is keyed so it can be replayed safely.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertOrder creates the order mirror or replaces its mutable fields.
func (s *Store) UpsertOrder(ctx context.Context, order *models.OrderMirror) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "broker_order_id"}},
			UpdateAll: true,
		}).
		Create(order).Error
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.BrokerOrderID, err)
	}
	return nil
}

// GetOrder loads an order mirror by broker order id.
func (s *Store) GetOrder(ctx context.Context, brokerOrderID string) (*models.OrderMirror, error) {
	var order models.OrderMirror
	err := s.db.WithContext(ctx).First(&order, "broker_order_id = ?", brokerOrderID).Error
	if err != nil {
		return nil, notFound(err, "order %s", brokerOrderID)
	}
	return &order, nil
}

// ListOpenOrders returns every mirrored order that has not reached a terminal status.
func (s *Store) ListOpenOrders(ctx context.Context) ([]models.OrderMirror, error) {
	terminal := []broker.OrderStatus{
		broker.OrderStatusFilled,
		broker.OrderStatusCanceled,
		broker.OrderStatusRejected,
		broker.OrderStatusExpired,
	}
	var orders []models.OrderMirror
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", terminal).
		Order("submitted_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	return orders, nil
}

// Fill describes an observed fill of a tracked order.
type Fill struct {
	BrokerOrderID string
	ConnectionID  string
	OwnerID       string
	Symbol        string
	Side          broker.Side
	Quantity      float64
	Price         float64
	ExecutedAt    time.Time
}

// ApplyFill locates or creates the position opened by the fill's order, sets
// its quantity and average entry price from the fill, and records an entry
// execution. It reports false without touching the position when the fill
// was already recorded.
func (s *Store) ApplyFill(ctx context.Context, fill Fill) (*models.Position, bool, error) {
	var pos models.Position
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&pos, "open_order_id = ?", fill.BrokerOrderID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pos = models.Position{
				ID:                 uuid.NewString(),
				OwnerID:            fill.OwnerID,
				BrokerConnectionID: fill.ConnectionID,
				OpenOrderID:        fill.BrokerOrderID,
				Symbol:             fill.Symbol,
				Direction:          models.DirectionForSide(fill.Side),
				Status:             models.PositionStatusOpen,
				OpenedAt:           fill.ExecutedAt,
			}
			if err := tx.Create(&pos).Error; err != nil {
				return fmt.Errorf("failed to create position: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to locate position: %w", err)
		}

		gross := fill.Quantity * fill.Price
		exec := models.Execution{
			PositionID:    pos.ID,
			Type:          models.ExecutionTypeEntry,
			BrokerOrderID: fill.BrokerOrderID,
			Quantity:      fill.Quantity,
			Price:         fill.Price,
			GrossValue:    gross,
			NetValue:      gross,
			ExecutedAt:    fill.ExecutedAt,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&exec)
		if res.Error != nil {
			return fmt.Errorf("failed to record execution: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errFillAlreadyRecorded
		}

		pos.Quantity = fill.Quantity
		pos.AvgEntryPrice = fill.Price
		return tx.Model(&models.Position{}).Where("id = ?", pos.ID).Updates(map[string]interface{}{
			"quantity":        fill.Quantity,
			"avg_entry_price": fill.Price,
		}).Error
	})
	if errors.Is(err, errFillAlreadyRecorded) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply fill for order %s: %w", fill.BrokerOrderID, err)
	}
	return &pos, true, nil
}

// CreatePosition inserts a position that did not come from a tracked order.
func (s *Store) CreatePosition(ctx context.Context, pos *models.Position) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(pos).Error; err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	return nil
}

// GetPosition loads a position by id.
func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	var pos models.Position
	if err := s.db.WithContext(ctx).First(&pos, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "position %s", id)
	}
	return &pos, nil
}

// ListPositions returns positions with the given status, newest first. An
// empty status returns every position.
func (s *Store) ListPositions(ctx context.Context, status models.PositionStatus) ([]models.Position, error) {
	q := s.db.WithContext(ctx).Order("opened_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var positions []models.Position
	if err := q.Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// ListStalePositions returns open, broker-held positions last synced before
// staleBefore (or never), oldest first, at most limit rows.
func (s *Store) ListStalePositions(ctx context.Context, staleBefore time.Time, limit int) ([]models.Position, error) {
	var positions []models.Position
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PositionStatusOpen).
		Where("broker_connection_id <> ''").
		Where("last_synced_at IS NULL OR last_synced_at < ?", staleBefore).
		Order("last_synced_at IS NOT NULL, last_synced_at asc").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale positions: %w", err)
	}
	return positions, nil
}

// SetExitLevels sets or clears the stop-loss and take-profit prices of a position.
func (s *Store) SetExitLevels(ctx context.Context, id string, stopLoss, takeProfit *float64) error {
	res := s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", id).Updates(map[string]interface{}{
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to set exit levels on %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return nil
}

// Snapshot is the broker-derived state written back on each sync.
type Snapshot struct {
	Quantity      float64
	CurrentPrice  float64
	UnrealizedPnl float64
	SyncedAt      time.Time
}

// UpdatePositionSnapshot writes only the broker-derived columns so a
// concurrent fill handoff on the same row is not overwritten.
func (s *Store) UpdatePositionSnapshot(ctx context.Context, id string, snap Snapshot) error {
	err := s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", id).Updates(map[string]interface{}{
		"quantity":       snap.Quantity,
		"current_price":  snap.CurrentPrice,
		"unrealized_pnl": snap.UnrealizedPnl,
		"last_synced_at": snap.SyncedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", id, err)
	}
	return nil
}

// ClosePosition marks the position closed and records why.
func (s *Store) ClosePosition(ctx context.Context, id string, closedAt time.Time, noteType models.NoteType, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Position{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":         models.PositionStatusClosed,
			"closed_at":      closedAt,
			"last_synced_at": closedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to close position %s: %w", id, err)
		}
		note := models.PositionNote{PositionID: id, Type: noteType, Content: reason, CreatedAt: closedAt}
		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("failed to record close note for %s: %w", id, err)
		}
		return nil
	})
}

// AddNote appends an operational note to a position.
func (s *Store) AddNote(ctx context.Context, note *models.PositionNote) error {
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("failed to add note to position %s: %w", note.PositionID, err)
	}
	return nil
}

// Notes returns the notes of a position in insertion order.
func (s *Store) Notes(ctx context.Context, positionID string) ([]models.PositionNote, error) {
	var notes []models.PositionNote
	if err := s.db.WithContext(ctx).Where("position_id = ?", positionID).Order("id asc").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to load notes for %s: %w", positionID, err)
	}
	return notes, nil
}

// Executions returns the executions recorded against a position.
func (s *Store) Executions(ctx context.Context, positionID string) ([]models.Execution, error) {
	var execs []models.Execution
	if err := s.db.WithContext(ctx).Where("position_id = ?", positionID).Order("id asc").Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("failed to load executions for %s: %w", positionID, err)
	}
	return execs, nil
}

// SaveConnection creates or replaces a broker connection.
func (s *Store) SaveConnection(ctx context.Context, conn *models.BrokerConnection) error {
	if err := s.db.WithContext(ctx).Save(conn).Error; err != nil {
		return fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
	}
	return nil
}

// GetConnection loads a broker connection by id.
func (s *Store) GetConnection(ctx context.Context, id string) (*models.BrokerConnection, error) {
	var conn models.BrokerConnection
	if err := s.db.WithContext(ctx).First(&conn, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "connection %s", id)
	}
	return &conn, nil
}

func notFound(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
