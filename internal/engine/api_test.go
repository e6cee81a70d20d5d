package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesync/internal/broker"
	"tradesync/internal/broker/brokertest"
	"tradesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_HealthAndStatus(t *testing.T) {
	e, _ := setupEngine(t, brokertest.NewMockAdapter("conn-1"))
	h := NewAPIServer(e, zap.NewNop()).Handler()

	rec := serve(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var st struct {
		TrackedOrders int `json:"tracked_orders"`
		Sync          struct {
			Running bool `json:"running"`
		} `json:"sync"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 0, st.TrackedOrders)
	assert.False(t, st.Sync.Running)
}

func TestAPI_Positions(t *testing.T) {
	ctx := context.Background()
	e, store := setupEngine(t, brokertest.NewMockAdapter("conn-1"))
	h := NewAPIServer(e, zap.NewNop()).Handler()

	now := time.Now().UTC()
	require.NoError(t, store.CreatePosition(ctx, &models.Position{ID: "p1", BrokerConnectionID: "conn-1", Symbol: "AAPL", Direction: models.DirectionLong, Status: models.PositionStatusOpen, OpenedAt: now}))
	require.NoError(t, store.CreatePosition(ctx, &models.Position{ID: "p2", BrokerConnectionID: "conn-1", Symbol: "MSFT", Direction: models.DirectionLong, Status: models.PositionStatusOpen, OpenedAt: now}))
	require.NoError(t, store.ClosePosition(ctx, "p2", now, models.NoteTypeExternalClose, "gone"))

	rec := serve(t, h, http.MethodGet, "/api/positions?status=open")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)

	rec = serve(t, h, http.MethodGet, "/api/positions/p2")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail positionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, models.PositionStatusClosed, detail.Position.Status)
	require.Len(t, detail.Notes, 1)
	assert.Equal(t, models.NoteTypeExternalClose, detail.Notes[0].Type)

	rec = serve(t, h, http.MethodGet, "/api/positions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SyncPosition(t *testing.T) {
	ctx := context.Background()
	adapter := brokertest.NewMockAdapter("conn-1")
	adapter.On("Connect", mock.Anything).Return(nil)
	adapter.On("GetPositionNormalized", mock.Anything, "AAPL").
		Return(&broker.NormalizedPosition{Symbol: "AAPL", Quantity: 4, CurrentPrice: 110}, nil)

	e, store := setupEngine(t, adapter)
	h := NewAPIServer(e, zap.NewNop()).Handler()

	now := time.Now().UTC()
	require.NoError(t, store.CreatePosition(ctx, &models.Position{
		ID: "p1", BrokerConnectionID: "conn-1", Symbol: "AAPL", Direction: models.DirectionLong,
		Quantity: 4, AvgEntryPrice: 100, Status: models.PositionStatusOpen, OpenedAt: now,
	}))
	require.NoError(t, store.CreatePosition(ctx, &models.Position{
		ID: "p2", Symbol: "MSFT", Direction: models.DirectionLong, Status: models.PositionStatusOpen, OpenedAt: now,
	}))

	rec := serve(t, h, http.MethodPost, "/api/positions/p1/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	var pos models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.InDelta(t, 40.0, pos.UnrealizedPnl, 1e-9)
	assert.NotNil(t, pos.LastSyncedAt)

	// no broker connection
	rec = serve(t, h, http.MethodPost, "/api/positions/p2/sync")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/positions/missing/sync")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodGet, "/api/positions/p1/sync")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
