package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/testutil"
)

// =====================================
// Общие данные и фикстуры
// =====================================

const testUser = "user-1"

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSigner = paymentgw.NewSigner("key-secret", "webhook-secret")
)

// testClock — управляемые часы.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture собирает сервисный слой поверх in-memory репозитория.
type fixture struct {
	repo     *testutil.MemoryOrderRepository
	gateway  *testutil.MockGateway
	clock    *testClock
	machine  *StateMachine
	payments *PaymentOrderManager
	verifier *PaymentVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:    testutil.NewMemoryOrderRepository(),
		gateway: new(testutil.MockGateway),
		clock:   &testClock{now: testNow},
	}
	f.machine = NewStateMachine(f.repo, f.clock.Now)
	f.payments = NewPaymentOrderManager(f.repo, f.machine, f.gateway)
	f.verifier = NewPaymentVerifier(f.repo, f.machine, testSigner, nil)
	return f
}

// testCart — корзина из примера: 1200 со скидкой 20% и 200 без скидки.
func testCart() domain.CartSnapshot {
	return domain.CartSnapshot{
		Currency:   "INR",
		CapturedAt: testNow,
		Items: []domain.LineItem{
			{LineItemID: "li-1", ProductID: "p-1", CategoryID: "c-1", UnitPrice: 1200, DiscountPercent: decimal.NewFromInt(20), Quantity: 1},
			{LineItemID: "li-2", ProductID: "p-2", CategoryID: "c-2", UnitPrice: 200, Quantity: 1},
		},
	}
}

// testPricing — итог с купоном SAVE10 и бесплатной доставкой.
func testPricing() domain.PricingResult {
	code := "SAVE10"
	return domain.PricingResult{
		OriginalSubtotal:     1400,
		ProductDiscountTotal: 240,
		DiscountedSubtotal:   1160,
		CouponCode:           &code,
		EligibleSubtotal:     1160,
		CouponDiscountAmount: 116,
		ExcludedItems:        []domain.ExcludedItem{},
		IsFreeShipping:       true,
		GrandTotal:           1044,
	}
}

// createOrder сохраняет заказ в статусе created.
func (f *fixture) createOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(testUser, testCart(), testPricing(), "card", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), order, nil))
	return order
}

// expectTransaction настраивает шлюз на одну транзакцию с идентификатором gatewayOrderID.
func (f *fixture) expectTransaction(gatewayOrderID string) *mock.Call {
	return f.gateway.On("CreateTransaction", mock.Anything, mock.Anything).Return(gatewayOrderID, nil).Once()
}

// pendingOrder создаёт заказ и открывает первую попытку с gw_1.
func (f *fixture) pendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	order := f.createOrder(t)
	f.expectTransaction("gw_1")
	_, err := f.payments.OpenTransaction(context.Background(), order.ID)
	require.NoError(t, err)
	return f.reload(t, order.ID)
}

func (f *fixture) reload(t *testing.T, orderID string) *domain.Order {
	t.Helper()
	order, err := f.repo.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

func clientCallback(gatewayOrderID, paymentID string) ClientCallback {
	return ClientCallback{
		UserID:           testUser,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        testSigner.SignClient(gatewayOrderID, paymentID),
	}
}

func webhookEvent(t *testing.T, payload paymentgw.WebhookPayload) WebhookEvent {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return WebhookEvent{RawBody: body, Signature: testSigner.SignWebhook(body)}
}

func capturedWebhook(t *testing.T, eventID, gatewayOrderID, paymentID string, amount int64) WebhookEvent {
	t.Helper()
	return webhookEvent(t, paymentgw.WebhookPayload{
		EventID:        eventID,
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Status:         paymentgw.StatusCaptured,
		Amount:         amount,
	})
}

func countEvents(types []domain.EventType, want domain.EventType) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}
