package paymentgw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/pkg/circuitbreaker"
	"example.com/checkout-core/services/checkout/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:   srv.URL,
		KeyID:     "rzp_test_key",
		KeySecret: "secret",
		Timeout:   time.Second,
	}, circuitbreaker.New("gateway-test"))
}

func testRequest() CreateTransactionRequest {
	return CreateTransactionRequest{
		Amount:         1044,
		Currency:       "INR",
		IdempotencyKey: "idem-1",
		Receipt:        "order-1",
		AttemptNumber:  1,
	}
}

func TestClient_CreateTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(104400), body.Amount, "сумма передаётся в минорных единицах")
		assert.Equal(t, "order-1", body.Receipt)

		_ = json.NewEncoder(w).Encode(createOrderResponse{ID: "order_gw_1", Amount: body.Amount, Currency: "INR", Status: "created"})
	})

	id, err := client.CreateTransaction(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, "order_gw_1", id)
}

func TestClient_CreateTransaction_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "ошибка сервера",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "отказ по запросу",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"BAD_REQUEST_ERROR"}`, http.StatusBadRequest)
			},
		},
		{
			name: "таймаут",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(3 * time.Second):
				}
			},
		},
		{
			name: "другая сумма в ответе",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(createOrderResponse{ID: "order_gw_1", Amount: 90000})
			},
		},
		{
			name: "нет id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"amount":104400}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)

			_, err := client.CreateTransaction(context.Background(), testRequest())

			assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
		})
	}
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	settings := circuitbreaker.DefaultSettings()
	settings.MinRequests = 2
	client := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, circuitbreaker.NewWithSettings("gateway-open", settings))

	for i := 0; i < 2; i++ {
		_, err := client.CreateTransaction(context.Background(), testRequest())
		require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	}

	_, err := client.CreateTransaction(context.Background(), testRequest())

	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load(), "при открытом breaker запрос не отправляется")
}

func TestClient_RejectionsDoNotOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	settings := circuitbreaker.DefaultSettings()
	settings.MinRequests = 2
	client := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, circuitbreaker.NewWithSettings("gateway-4xx", settings))

	for i := 0; i < 4; i++ {
		_, _ = client.CreateTransaction(context.Background(), testRequest())
	}

	assert.Equal(t, int32(4), calls.Load())
}
