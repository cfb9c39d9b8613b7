// Package paymentgw — адаптер внешнего платёжного шлюза:
// создание транзакции по REST, проверка подписей и разбор webhook.
package paymentgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"example.com/checkout-core/pkg/circuitbreaker"
	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/pkg/tracing"
	"example.com/checkout-core/services/checkout/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 1024
)

// Gateway — операции платёжного шлюза, нужные checkout.
type Gateway interface {
	// CreateTransaction открывает транзакцию на сумму заказа и возвращает её
	// идентификатор в шлюзе. Повтор с тем же IdempotencyKey возвращает ту же транзакцию.
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (string, error)
}

// CreateTransactionRequest — параметры новой транзакции.
// Amount в целых рублях/рупиях, на проводе переводится в минорные единицы.
type CreateTransactionRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Receipt        string // наш order_id
	AttemptNumber  int
}

// Config — конфигурация клиента шлюза.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Client — HTTP клиент шлюза с таймаутом и circuit breaker.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	breaker   *circuitbreaker.Breaker
}

// NewClient создаёт клиент шлюза.
func NewClient(cfg Config, breaker *circuitbreaker.Breaker) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   breaker,
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateTransaction — POST {baseURL}/v1/orders.
// Любой сбой (сеть, таймаут, 5xx, отказ, открытый breaker) возвращается
// как domain.ErrGatewayUnavailable.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (string, error) {
	ctx, span := tracing.Tracer("checkout/paymentgw").Start(ctx, "paymentgw.CreateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.Receipt),
		attribute.Int("payment.attempt", req.AttemptNumber),
	)

	start := time.Now()
	var gatewayOrderID string

	err := c.breaker.Execute(func() error {
		id, err := c.createOrder(ctx, req)
		gatewayOrderID = id
		return err
	})
	metrics.RecordGatewayRequest("create_order", err, time.Since(start))

	if err != nil {
		tracing.RecordError(span, err)
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("breaker_state", c.breaker.State().String()).
			Int("attempt_number", req.AttemptNumber).
			Msg("Платёжный шлюз не создал транзакцию")
		return "", fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}

	span.SetAttributes(attribute.String("gateway.order_id", gatewayOrderID))
	return gatewayOrderID, nil
}

func (c *Client) createOrder(ctx context.Context, req CreateTransactionRequest) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "orders")
	if err != nil {
		return "", circuitbreaker.Permanent(err)
	}

	payload, err := json.Marshal(createOrderRequest{
		Amount:   ToMinorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    map[string]string{"attempt": fmt.Sprint(req.AttemptNumber)},
	})
	if err != nil {
		return "", circuitbreaker.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", circuitbreaker.Permanent(err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(idempotencyHeader, req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("запрос к шлюзу: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("шлюз ответил %d: %s", resp.StatusCode, drainError(resp.Body))
	case resp.StatusCode >= 400:
		return "", circuitbreaker.Permanent(fmt.Errorf("шлюз отклонил запрос %d: %s", resp.StatusCode, drainError(resp.Body)))
	}

	var body createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("ошибка разбора ответа шлюза: %w", err)
	}
	if body.ID == "" {
		return "", errors.New("шлюз не вернул id транзакции")
	}
	if body.Amount != ToMinorUnits(req.Amount) {
		return "", circuitbreaker.Permanent(fmt.Errorf("шлюз создал транзакцию на %d вместо %d", body.Amount, ToMinorUnits(req.Amount)))
	}
	return body.ID, nil
}

// ToMinorUnits переводит целые единицы валюты в минорные (×100).
func ToMinorUnits(amount int64) int64 {
	return amount * 100
}

func drainError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
