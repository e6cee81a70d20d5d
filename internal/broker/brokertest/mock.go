// Package brokertest provides a testify mock of broker.Adapter.
package brokertest

import (
	"context"

	"tradesync/internal/broker"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of broker.Adapter.
type MockAdapter struct {
	mock.Mock
	ID string
}

var _ broker.Adapter = (*MockAdapter)(nil)

// NewMockAdapter returns a mock bound to connection id.
func NewMockAdapter(id string) *MockAdapter {
	return &MockAdapter{ID: id}
}

func (m *MockAdapter) ConnectionID() string {
	return m.ID
}

func (m *MockAdapter) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAdapter) GetOrderTracked(ctx context.Context, orderID string) (*broker.NormalizedOrder, error) {
	args := m.Called(ctx, orderID)
	order, _ := args.Get(0).(*broker.NormalizedOrder)
	return order, args.Error(1)
}

func (m *MockAdapter) GetPositionNormalized(ctx context.Context, symbol string) (*broker.NormalizedPosition, error) {
	args := m.Called(ctx, symbol)
	pos, _ := args.Get(0).(*broker.NormalizedPosition)
	return pos, args.Error(1)
}
