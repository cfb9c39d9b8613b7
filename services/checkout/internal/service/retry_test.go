package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/testutil"
)

// failedOrder доводит заказ до failed через webhook об отказе.
func (f *fixture) failedOrder(t *testing.T) *domain.Order {
	t.Helper()
	order := f.pendingOrder(t)
	_, err := f.verifier.HandleWebhook(context.Background(), webhookEvent(t, paymentgw.WebhookPayload{
		EventID:        "evt_fail",
		GatewayOrderID: "gw_1",
		PaymentID:      "pay_1",
		Status:         paymentgw.StatusFailed,
		ErrorReason:    "card_declined",
	}))
	require.NoError(t, err)
	return f.reload(t, order.ID)
}

func TestRetryCoordinator_Retry(t *testing.T) {
	f := newFixture(t)
	order := f.failedOrder(t)
	retry := NewRetryCoordinator(f.repo, f.payments, nil, false)

	f.gateway.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(req paymentgw.CreateTransactionRequest) bool {
		return req.AttemptNumber == 2 && req.Amount == 1044 && req.IdempotencyKey == IdempotencyKey(order.ID, 2)
	})).Return("gw_2", nil).Once()

	attempt, err := retry.Retry(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, order.ID, attempt.OrderID, "повтор не создаёт новый заказ")
	assert.Equal(t, 2, attempt.AttemptNumber)
	assert.Equal(t, int64(1044), attempt.Amount)

	stored := f.reload(t, order.ID)
	assert.Equal(t, domain.OrderStatusPaymentPending, stored.Status)
	assert.Nil(t, stored.FailureReason)
	require.Len(t, stored.Attempts, 2)
	assert.Equal(t, domain.OutcomeFailed, stored.Attempts[0].Outcome)
	assert.Equal(t, attempt.ID, stored.ActiveAttempt().ID)
	f.gateway.AssertExpectations(t)
}

func TestRetryCoordinator_Retry_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.OrderStatus
		wantErr error
	}{
		{name: "paid", status: domain.OrderStatusPaid, wantErr: domain.ErrNotRetryable},
		{name: "fulfilled", status: domain.OrderStatusFulfilled, wantErr: domain.ErrNotRetryable},
		{name: "created", status: domain.OrderStatusCreated, wantErr: domain.ErrIllegalTransition},
		{name: "payment_pending", status: domain.OrderStatusPaymentPending, wantErr: domain.ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.createOrder(t)
			order.Status = tt.status
			f.repo.Put(order)

			_, err := NewRetryCoordinator(f.repo, f.payments, nil, false).Retry(context.Background(), order.ID)

			assert.ErrorIs(t, err, tt.wantErr)
			f.gateway.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
		})
	}
}

func TestRetryCoordinator_Retry_GatewayDown(t *testing.T) {
	f := newFixture(t)
	order := f.failedOrder(t)
	f.gateway.On("CreateTransaction", mock.Anything, mock.Anything).Return("", domain.ErrGatewayUnavailable).Once()

	_, err := NewRetryCoordinator(f.repo, f.payments, nil, false).Retry(context.Background(), order.ID)

	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	stored := f.reload(t, order.ID)
	assert.Equal(t, domain.OrderStatusFailed, stored.Status)
	assert.Len(t, stored.Attempts, 1)
}

func TestRetryCoordinator_Retry_Reprice(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		pricingErr error
		wantErr    error
	}{
		{name: "цена не изменилась", total: 1044},
		{name: "цена выросла", total: 1100, wantErr: domain.ErrPriceChanged},
		{name: "купон истёк", pricingErr: domain.ErrInvalidCoupon, wantErr: domain.ErrPriceChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.failedOrder(t)

			pricer := new(testutil.MockPricer)
			pricer.On("ComputePricing", mock.Anything, mock.Anything, order.Pricing.CouponCode).
				Return(domain.PricingResult{GrandTotal: tt.total}, tt.pricingErr)
			if tt.wantErr == nil {
				f.expectTransaction("gw_2")
			}

			attempt, err := NewRetryCoordinator(f.repo, f.payments, pricer, true).Retry(context.Background(), order.ID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.OrderStatusFailed, f.reload(t, order.ID).Status)
				f.gateway.AssertNumberOfCalls(t, "CreateTransaction", 1)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1044), attempt.Amount)
		})
	}
}
