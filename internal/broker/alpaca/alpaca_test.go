package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradesync/internal/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestServer creates a test server and an Adapter pointed at it.
func setupTestServer(t *testing.T, handler http.Handler) *Adapter {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Options{
		ConnectionID: "conn-1",
		APIKey:       "key",
		APISecret:    "secret",
		BaseURL:      server.URL,
	}, zap.NewNop())
}

func TestGetOrderTracked_Filled(t *testing.T) {
	a := setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/ord-1", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "ord-1",
			"symbol": "AAPL",
			"side": "buy",
			"type": "limit",
			"status": "filled",
			"qty": "10",
			"filled_qty": "10",
			"filled_avg_price": "101.25",
			"limit_price": "102",
			"submitted_at": "2026-01-02T15:04:05Z",
			"filled_at": "2026-01-02T15:04:07Z"
		}`))
	}))

	order, err := a.GetOrderTracked(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, broker.SideBuy, order.Side)
	assert.Equal(t, broker.OrderKindLimit, order.OrderType)
	assert.Equal(t, broker.OrderStatusFilled, order.Status)
	assert.Equal(t, 10.0, order.Quantity)
	require.NotNil(t, order.FilledQuantity)
	assert.Equal(t, 10.0, *order.FilledQuantity)
	require.NotNil(t, order.FilledAvgPrice)
	assert.Equal(t, 101.25, *order.FilledAvgPrice)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 102.0, *order.LimitPrice)
	assert.Nil(t, order.StopPrice)
	require.NotNil(t, order.FilledAt)
	assert.NotEmpty(t, order.RawBrokerData)
}

func TestGetPositionNormalized(t *testing.T) {
	t.Run("Long", func(t *testing.T) {
		a := setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/positions/AAPL", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"AAPL","qty":"10","side":"long","avg_entry_price":"100","current_price":"104.5"}`))
		}))

		pos, err := a.GetPositionNormalized(context.Background(), "AAPL")
		require.NoError(t, err)
		require.NotNil(t, pos)
		assert.Equal(t, 10.0, pos.Quantity)
		assert.Equal(t, 104.5, pos.CurrentPrice)
		assert.Equal(t, 100.0, pos.AvgEntryPrice)
	})

	t.Run("NotFound", func(t *testing.T) {
		a := setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":40410000,"message":"position does not exist"}`))
		}))

		pos, err := a.GetPositionNormalized(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.Nil(t, pos)
	})

	t.Run("Forbidden", func(t *testing.T) {
		a := setupTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":40310000,"message":"forbidden"}`))
		}))

		pos, err := a.GetPositionNormalized(context.Background(), "AAPL")
		assert.Error(t, err)
		assert.Nil(t, pos)
	})
}

func TestOrderStatusMapping(t *testing.T) {
	cases := map[string]broker.OrderStatus{
		"pending_new":      broker.OrderStatusPending,
		"new":              broker.OrderStatusSubmitted,
		"accepted":         broker.OrderStatusSubmitted,
		"partially_filled": broker.OrderStatusPartiallyFilled,
		"filled":           broker.OrderStatusFilled,
		"canceled":         broker.OrderStatusCanceled,
		"replaced":         broker.OrderStatusCanceled,
		"rejected":         broker.OrderStatusRejected,
		"expired":          broker.OrderStatusExpired,
	}
	for in, want := range cases {
		assert.Equal(t, want, orderStatus(in), in)
	}
}
