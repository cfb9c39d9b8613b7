package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"example.com/checkout-core/services/checkout/internal/service"
)

func TestRouter_Routes(t *testing.T) {
	webhookCalled := false
	verifier := &MockPaymentVerifier{
		HandleWebhookFunc: func(context.Context, service.WebhookEvent) (*service.VerificationResult, error) {
			webhookCalled = true
			return paidResult(false), nil
		},
	}

	tests := []struct {
		name        string
		internalAPI bool
		method      string
		path        string
		body        string
		wantCode    int
	}{
		{"health", false, http.MethodGet, "/health", "", http.StatusOK},
		{"liveness", false, http.MethodGet, "/healthz", "", http.StatusOK},
		{"readiness без проверки", false, http.MethodGet, "/readyz", "", http.StatusOK},
		{"webhook без JWT", false, http.MethodPost, "/api/v1/payments/webhook", `{"event_id":"evt_1"}`, http.StatusOK},
		{"заказы требуют user_id", false, http.MethodGet, "/api/v1/orders/order-1", "", http.StatusUnauthorized},
		{"внутренний API выключен", false, http.MethodGet, "/internal/v1/reviews", "", http.StatusNotFound},
		{"внутренний API включён", true, http.MethodGet, "/internal/v1/reviews", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterConfig{
				Checkout:    &MockCheckoutService{},
				Verifier:    verifier,
				Reviews:     &MockReviewStore{},
				InternalAPI: tt.internalAPI,
			})

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.Engine().ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
	assert.True(t, webhookCalled)
}

func TestRouter_ReadinessFails(t *testing.T) {
	router := NewRouter(RouterConfig{
		ReadinessCheck: func(context.Context) error { return errors.New("mysql down") },
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := NewRouter(RouterConfig{HSTS: true, CORSOrigins: []string{"https://shop.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}
