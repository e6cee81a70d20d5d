package tracker

import (
	"context"
	"fmt"

	"tradesync/internal/adapters"
	"tradesync/internal/broker"
	"tradesync/internal/models"

	"go.uber.org/zap"
)

// ResumeStore lists the orders to pick up again after a restart.
type ResumeStore interface {
	ListOpenOrders(ctx context.Context) ([]models.OrderMirror, error)
	GetConnection(ctx context.Context, id string) (*models.BrokerConnection, error)
}

// ResumeOpenOrders re-enters tracking for every mirrored order that has not
// reached a terminal status. Orders whose connection cannot be resolved are
// skipped and logged. It returns how many orders were resumed.
func (t *Tracker) ResumeOpenOrders(ctx context.Context, store ResumeStore, factory adapters.Factory) (int, error) {
	orders, err := store.ListOpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not list open orders: %w", err)
	}

	built := make(map[string]broker.Adapter)
	resumed := 0
	for _, o := range orders {
		l := t.logger.With(zap.String("order_id", o.BrokerOrderID), zap.String("connection_id", o.BrokerConnectionID))

		adapter, ok := built[o.BrokerConnectionID]
		if !ok {
			conn, err := store.GetConnection(ctx, o.BrokerConnectionID)
			if err != nil {
				l.Warn("Cannot resume order tracking, connection unavailable", zap.Error(err))
				continue
			}
			adapter, err = factory.New(conn)
			if err != nil {
				l.Warn("Cannot resume order tracking, adapter construction failed", zap.Error(err))
				continue
			}
			built[o.BrokerConnectionID] = adapter
		}

		t.TrackOrder(adapter, o.BrokerOrderID, o.OwnerID, o.OrderType)
		resumed++
	}

	t.logger.Info("Resumed order tracking", zap.Int("orders", resumed), zap.Int("open", len(orders)))
	return resumed, nil
}
