package binance

import (
	"context"
	"errors"
	"testing"

	"tradesync/internal/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetExchangeInfo(ctx context.Context, symbol string) (*ExchangeInfoResponse, error) {
	args := m.Called(symbol)
	return args.Get(0).(*ExchangeInfoResponse), args.Error(1)
}

func (m *MockRestClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error) {
	args := m.Called(symbol, orderID)
	return args.Get(0).(*OrderResponse), args.Error(1)
}

func (m *MockRestClient) GetAccount(ctx context.Context) (*AccountResponse, error) {
	args := m.Called()
	return args.Get(0).(*AccountResponse), args.Error(1)
}

func (m *MockRestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func TestParseOrderRef(t *testing.T) {
	symbol, id, err := ParseOrderRef("btcusdt:12345")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol)
	assert.Equal(t, int64(12345), id)

	for _, bad := range []string{"12345", ":1", "BTCUSDT:abc"} {
		_, _, err := ParseOrderRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestAdapter_GetOrderTracked_PartialFill(t *testing.T) {
	client := new(MockRestClient)
	client.On("GetOrder", "BTCUSDT", int64(7)).Return(&OrderResponse{
		Symbol:              "BTCUSDT",
		OrderID:             7,
		Status:              "PARTIALLY_FILLED",
		Type:                "LIMIT",
		Side:                "BUY",
		Price:               "60000",
		OrigQuantity:        "1",
		ExecutedQuantity:    "0.25",
		CummulativeQuoteQty: "15000",
		Time:                1700000000000,
		WorkingTime:         1700000000100,
	}, nil)

	a := NewAdapter("conn-b", client, zap.NewNop())
	order, err := a.GetOrderTracked(context.Background(), "BTCUSDT:7")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT:7", order.OrderID)
	assert.Equal(t, broker.OrderStatusPartiallyFilled, order.Status)
	assert.Equal(t, broker.OrderKindLimit, order.OrderType)
	assert.Equal(t, broker.SideBuy, order.Side)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 60000.0, *order.LimitPrice)
	require.NotNil(t, order.FilledAvgPrice)
	assert.Equal(t, 60000.0, *order.FilledAvgPrice)
	assert.NotNil(t, order.AcceptedAt)
	assert.Nil(t, order.FilledAt)
	client.AssertExpectations(t)
}

func TestAdapter_GetPositionNormalized(t *testing.T) {
	info := &ExchangeInfoResponse{Symbols: []SymbolInfo{{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT"}}}

	t.Run("Held", func(t *testing.T) {
		client := new(MockRestClient)
		client.On("GetExchangeInfo", "ETHUSDT").Return(info, nil).Once()
		client.On("GetAccount").Return(&AccountResponse{Balances: []Balance{
			{Asset: "USDT", Free: "100"},
			{Asset: "ETH", Free: "1.5", Locked: "0.5"},
		}}, nil)
		client.On("GetTickerPrice", "ETHUSDT").Return(3000.0, nil)

		a := NewAdapter("conn-b", client, zap.NewNop())
		pos, err := a.GetPositionNormalized(context.Background(), "ETHUSDT")
		require.NoError(t, err)
		require.NotNil(t, pos)
		assert.Equal(t, 2.0, pos.Quantity)
		assert.Equal(t, 3000.0, pos.CurrentPrice)

		// base asset is cached
		_, err = a.GetPositionNormalized(context.Background(), "ETHUSDT")
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("ZeroBalance", func(t *testing.T) {
		client := new(MockRestClient)
		client.On("GetExchangeInfo", "ETHUSDT").Return(info, nil)
		client.On("GetAccount").Return(&AccountResponse{Balances: []Balance{{Asset: "ETH", Free: "0", Locked: "0"}}}, nil)

		a := NewAdapter("conn-b", client, zap.NewNop())
		pos, err := a.GetPositionNormalized(context.Background(), "ETHUSDT")
		require.NoError(t, err)
		assert.Nil(t, pos)
		client.AssertNotCalled(t, "GetTickerPrice", mock.Anything)
	})

	t.Run("AccountError", func(t *testing.T) {
		client := new(MockRestClient)
		client.On("GetExchangeInfo", "ETHUSDT").Return(info, nil)
		client.On("GetAccount").Return((*AccountResponse)(nil), errors.New("API down"))

		a := NewAdapter("conn-b", client, zap.NewNop())
		_, err := a.GetPositionNormalized(context.Background(), "ETHUSDT")
		assert.ErrorContains(t, err, "API down")
	})
}
