package paymentgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook(t *testing.T) {
	p, err := ParseWebhook([]byte(`{"event_id":"evt_1","gateway_order_id":"order_gw_1","payment_id":"pay_1","status":"captured","amount":104400}`))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", p.EventID)
	assert.Equal(t, "order_gw_1", p.GatewayOrderID)
	assert.Equal(t, "pay_1", p.PaymentID)
	assert.Equal(t, int64(104400), p.Amount)
	assert.True(t, p.IsCapture())
}

func TestParseWebhook_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "не JSON", body: `not-json`},
		{name: "нет event_id", body: `{"gateway_order_id":"order_gw_1","payment_id":"pay_1","status":"captured"}`},
		{name: "нет payment_id", body: `{"event_id":"evt_1","gateway_order_id":"order_gw_1","status":"captured"}`},
		{name: "неизвестный статус", body: `{"event_id":"evt_1","gateway_order_id":"order_gw_1","payment_id":"pay_1","status":"refunded"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWebhook([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedWebhook)
		})
	}
}

func TestWebhookPayload_IsCapture(t *testing.T) {
	tests := []struct {
		status WebhookStatus
		want   bool
	}{
		{StatusAuthorized, true},
		{StatusCaptured, true},
		{StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, (&WebhookPayload{Status: tt.status}).IsCapture())
		})
	}
}
