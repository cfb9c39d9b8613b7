package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/middleware"
	"example.com/checkout-core/services/checkout/internal/service"
)

// setupCheckoutRouter создаёт Gin router с установленным user_id (имитация JWT middleware).
func setupCheckoutRouter(h *CheckoutHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	})

	r.POST("/api/v1/checkout/quote", h.Quote)
	r.POST("/api/v1/orders", h.CreateOrder)
	r.GET("/api/v1/orders/:id", h.GetOrder)
	r.POST("/api/v1/orders/:id/payment", h.OpenPayment)
	r.POST("/api/v1/orders/:id/retry", h.RetryPayment)
	r.POST("/api/v1/orders/:id/cancel", h.CancelOrder)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestQuote_EmptyBody(t *testing.T) {
	var gotCoupon *string
	svc := &MockCheckoutService{
		QuoteFunc: func(_ context.Context, userID string, couponCode *string) (domain.PricingResult, error) {
			assert.Equal(t, "user-1", userID)
			gotCoupon = couponCode
			return domain.PricingResult{DiscountedSubtotal: 900, ShippingFee: 50, RemainingForFreeShipping: 100, GrandTotal: 950}, nil
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/checkout/quote", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotCoupon)

	var pricing domain.PricingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pricing))
	assert.Equal(t, int64(950), pricing.GrandTotal)
	assert.Equal(t, int64(100), pricing.RemainingForFreeShipping)
}

func TestQuote_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"пустая корзина", domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
		{"купон недействителен", fmt.Errorf("купон SAVE10: %w", domain.ErrInvalidCoupon), http.StatusUnprocessableEntity, "invalid_coupon"},
		{"купон не применим", domain.ErrCouponNotApplicable, http.StatusUnprocessableEntity, "coupon_not_applicable"},
		{"неизвестная ошибка", fmt.Errorf("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckoutService{
				QuoteFunc: func(context.Context, string, *string) (domain.PricingResult, error) {
					return domain.PricingResult{}, tt.err
				},
			}
			r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

			w := doJSON(t, r, http.MethodPost, "/api/v1/checkout/quote", QuoteRequest{})

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Error)
		})
	}
}

func TestCreateOrder_Success(t *testing.T) {
	order := testOrder(domain.OrderStatusPaymentPending)
	attempt := testAttempt(1)
	order.Attempts = []*domain.PaymentAttempt{attempt}

	svc := &MockCheckoutService{
		CheckoutFunc: func(_ context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
			assert.Equal(t, "user-1", req.UserID)
			require.NotNil(t, req.CouponCode)
			assert.Equal(t, "SAVE10", *req.CouponCode)
			assert.Equal(t, "card", req.PaymentMethod)
			return &service.CheckoutResult{Order: order, Attempt: attempt}, nil
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

	code := "SAVE10"
	w := doJSON(t, r, http.MethodPost, "/api/v1/orders", CreateOrderRequest{CouponCode: &code, PaymentMethod: "card"})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.Order.ID)
	assert.Equal(t, "payment_pending", resp.Order.Status)
	assert.Equal(t, int64(1044), resp.Order.Pricing.GrandTotal)
	require.Len(t, resp.Order.Attempts, 1)

	require.NotNil(t, resp.Payment)
	assert.Equal(t, "gw_1", resp.Payment.GatewayOrderID)
	assert.Equal(t, "rzp_key", resp.Payment.GatewayKeyID)
	assert.Equal(t, int64(104400), resp.Payment.Amount, "виджет получает сумму в минорных единицах")
}

func TestCreateOrder_GatewayUnavailable_ReturnsOrder(t *testing.T) {
	order := testOrder(domain.OrderStatusCreated)
	svc := &MockCheckoutService{
		CheckoutFunc: func(context.Context, service.CheckoutRequest) (*service.CheckoutResult, error) {
			return &service.CheckoutResult{Order: order}, fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable)
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/orders", CreateOrderRequest{PaymentMethod: "card"})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.Order.ID)
	assert.Equal(t, "created", resp.Order.Status)
	assert.Nil(t, resp.Payment)
}

func TestCreateOrder_Validation(t *testing.T) {
	called := false
	svc := &MockCheckoutService{
		CheckoutFunc: func(context.Context, service.CheckoutRequest) (*service.CheckoutResult, error) {
			called = true
			return nil, nil
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/orders", map[string]any{"coupon_code": "SAVE10"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Error)
	assert.False(t, called)
}

func TestCreateOrder_Unauthorized(t *testing.T) {
	r := setupCheckoutRouter(NewCheckoutHandler(&MockCheckoutService{}, "rzp_key"), "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/orders", CreateOrderRequest{PaymentMethod: "card"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Error)
}

func TestGetOrder(t *testing.T) {
	tests := []struct {
		name     string
		order    *domain.Order
		err      error
		wantCode int
	}{
		{"успех", testOrder(domain.OrderStatusPaid), nil, http.StatusOK},
		{"чужой заказ", nil, domain.ErrForbidden, http.StatusForbidden},
		{"не найден", nil, domain.ErrOrderNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckoutService{
				GetOrderFunc: func(_ context.Context, userID, orderID string) (*domain.Order, error) {
					assert.Equal(t, "user-1", userID)
					assert.Equal(t, "order-1", orderID)
					return tt.order, tt.err
				},
			}
			r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

			w := doJSON(t, r, http.MethodGet, "/api/v1/orders/order-1", nil)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestOpenPayment_ReturnsAttempt(t *testing.T) {
	svc := &MockCheckoutService{
		OpenPaymentFunc: func(_ context.Context, _, orderID string) (*domain.PaymentAttempt, error) {
			assert.Equal(t, "order-1", orderID)
			return testAttempt(1), nil
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

	w := doJSON(t, r, http.MethodPost, "/api/v1/orders/order-1/payment", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "attempt-1", resp.AttemptID)
	assert.Equal(t, 1, resp.AttemptNumber)
}

func TestRetryPayment(t *testing.T) {
	tests := []struct {
		name     string
		attempt  *domain.PaymentAttempt
		err      error
		wantCode int
		wantErr  string
	}{
		{"новая попытка", testAttempt(2), nil, http.StatusOK, ""},
		{"уже оплачен", nil, domain.ErrNotRetryable, http.StatusConflict, "not_retryable"},
		{"цена изменилась", nil, fmt.Errorf("%w: %w", domain.ErrPriceChanged, domain.ErrInvalidCoupon), http.StatusConflict, "price_changed"},
		{"шлюз недоступен", nil, domain.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckoutService{
				RetryPaymentFunc: func(context.Context, string, string) (*domain.PaymentAttempt, error) {
					return tt.attempt, tt.err
				},
			}
			r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

			w := doJSON(t, r, http.MethodPost, "/api/v1/orders/order-1/retry", nil)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeError(t, w).Error)
				return
			}
			var resp PaymentResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, 2, resp.AttemptNumber)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"успех", nil, http.StatusOK},
		{"уже оплачен", domain.ErrIllegalTransition, http.StatusConflict},
		{"конкурентное изменение", domain.ErrConcurrentUpdate, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckoutService{
				CancelFunc: func(context.Context, string, string) (*domain.Order, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return testOrder(domain.OrderStatusCancelled), nil
				},
			}
			r := setupCheckoutRouter(NewCheckoutHandler(svc, "rzp_key"), "user-1")

			w := doJSON(t, r, http.MethodPost, "/api/v1/orders/order-1/cancel", nil)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
