package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradesync/internal/adapters"
	"tradesync/internal/broker"
	"tradesync/internal/broker/brokertest"
	"tradesync/internal/config"
	"tradesync/internal/database"
	"tradesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f64(v float64) *float64 { return &v }

func testConfig() *config.Config {
	return &config.Config{
		Tracker: config.DefaultTracker(),
		Sync:    config.Sync{Interval: time.Hour, StaleAfter: time.Minute, BatchSize: 2},
		Server:  config.Server{Port: 0},
	}
}

// setupEngine builds an engine over a fresh sqlite store whose factory
// returns adapter for every stored connection.
func setupEngine(t *testing.T, adapter broker.Adapter) (*Engine, *database.Store) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	store := database.NewStore(db)
	require.NoError(t, store.SaveConnection(context.Background(), &models.BrokerConnection{
		ID: "conn-1", OwnerID: "user-1", Kind: "alpaca_paper", APIKey: "k", APISecret: "s",
	}))
	factory := adapters.FactoryFunc(func(conn *models.BrokerConnection) (broker.Adapter, error) {
		return adapter, nil
	})
	return NewEngine(zap.NewNop(), testConfig(), store, factory), store
}

func filledOrder(id string) *broker.NormalizedOrder {
	now := time.Now().UTC()
	return &broker.NormalizedOrder{
		OrderID:        id,
		Symbol:         "AAPL",
		Side:           broker.SideBuy,
		Quantity:       5,
		OrderType:      broker.OrderKindMarket,
		Status:         broker.OrderStatusFilled,
		FilledQuantity: f64(5),
		FilledAvgPrice: f64(200),
		SubmittedAt:    now,
		FilledAt:       &now,
	}
}

func TestEngine_TrackCreatesPosition(t *testing.T) {
	ctx := context.Background()
	adapter := brokertest.NewMockAdapter("conn-1")
	adapter.On("Connect", mock.Anything).Return(nil)
	adapter.On("GetOrderTracked", mock.Anything, "o-1").Return(filledOrder("o-1"), nil)

	e, store := setupEngine(t, adapter)
	require.NoError(t, e.Track(ctx, "conn-1", "o-1", "", broker.OrderKindMarket))
	e.Tracker().Wait()

	positions, err := store.ListPositions(ctx, models.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "user-1", positions[0].OwnerID)
	assert.Equal(t, "conn-1", positions[0].BrokerConnectionID)
	assert.InDelta(t, 200.0, positions[0].AvgEntryPrice, 1e-9)
}

func TestEngine_TrackUnknownConnection(t *testing.T) {
	e, _ := setupEngine(t, brokertest.NewMockAdapter("conn-1"))
	err := e.Track(context.Background(), "nope", "o-1", "", broker.OrderKindMarket)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, 0, e.Tracker().GetActiveTrackingCount())
}

func TestEngine_RunResumesAndStops(t *testing.T) {
	adapter := brokertest.NewMockAdapter("conn-1")
	adapter.On("Connect", mock.Anything).Return(nil)
	adapter.On("GetOrderTracked", mock.Anything, "o-2").Return(filledOrder("o-2"), nil)
	adapter.On("GetPositionNormalized", mock.Anything, "AAPL").
		Return(&broker.NormalizedPosition{Symbol: "AAPL", Quantity: 5, CurrentPrice: 210}, nil)

	e, store := setupEngine(t, adapter)
	require.NoError(t, store.UpsertOrder(context.Background(), &models.OrderMirror{
		BrokerOrderID:      "o-2",
		BrokerConnectionID: "conn-1",
		OwnerID:            "user-1",
		Symbol:             "AAPL",
		Side:               broker.SideBuy,
		OrderType:          broker.OrderKindMarket,
		Status:             broker.OrderStatusSubmitted,
		Quantity:           5,
		SubmittedAt:        time.Now().UTC(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		order, err := store.GetOrder(context.Background(), "o-2")
		return err == nil && order.Status == broker.OrderStatusFilled
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, 0, e.Tracker().GetActiveTrackingCount())
	assert.False(t, e.Syncer().GetStatus().Running)
}

func TestEngine_Status(t *testing.T) {
	e, _ := setupEngine(t, brokertest.NewMockAdapter("conn-1"))
	st := e.Status()
	assert.Equal(t, 0, st.TrackedOrders)
	assert.False(t, st.Sync.Running)
	assert.Equal(t, 2, st.Sync.Config.BatchSize)
	assert.NotEmpty(t, st.Uptime)
}
