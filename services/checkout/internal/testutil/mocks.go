package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
)

// =============================================================================
// MockGateway — мок для paymentgw.Gateway
// =============================================================================

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateTransaction(ctx context.Context, req paymentgw.CreateTransactionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// =============================================================================
// MockCartSource — мок источника корзины
// =============================================================================

type MockCartSource struct {
	mock.Mock
}

func (m *MockCartSource) GetCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.CartSnapshot), args.Error(1)
}

// =============================================================================
// MockPricer — мок расчёта стоимости
// =============================================================================

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) ComputePricing(ctx context.Context, cart domain.CartSnapshot, couponCode *string) (domain.PricingResult, error) {
	args := m.Called(ctx, cart, couponCode)
	return args.Get(0).(domain.PricingResult), args.Error(1)
}
