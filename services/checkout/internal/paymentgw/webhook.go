package paymentgw

import (
	"encoding/json"
	"errors"
	"fmt"
)

// WebhookStatus — статус платежа в webhook.
type WebhookStatus string

const (
	StatusAuthorized WebhookStatus = "authorized"
	StatusCaptured   WebhookStatus = "captured"
	StatusFailed     WebhookStatus = "failed"
)

// ErrMalformedWebhook — тело webhook не разбирается или неполное.
var ErrMalformedWebhook = errors.New("некорректный webhook")

// WebhookPayload — тело webhook шлюза. Amount в минорных единицах.
type WebhookPayload struct {
	EventID        string        `json:"event_id"`
	GatewayOrderID string        `json:"gateway_order_id"`
	PaymentID      string        `json:"payment_id"`
	Status         WebhookStatus `json:"status"`
	Amount         int64         `json:"amount"`
	ErrorReason    string        `json:"error_reason,omitempty"`
}

// ParseWebhook разбирает тело webhook. Подпись должна быть проверена до вызова.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWebhook, err)
	}
	if p.EventID == "" || p.GatewayOrderID == "" || p.PaymentID == "" {
		return nil, fmt.Errorf("%w: нет event_id, gateway_order_id или payment_id", ErrMalformedWebhook)
	}
	switch p.Status {
	case StatusAuthorized, StatusCaptured, StatusFailed:
	default:
		return nil, fmt.Errorf("%w: неизвестный статус %q", ErrMalformedWebhook, p.Status)
	}
	return &p, nil
}

// IsCapture сообщает, что деньги списаны или заблокированы.
func (p *WebhookPayload) IsCapture() bool {
	return p.Status == StatusCaptured || p.Status == StatusAuthorized
}
