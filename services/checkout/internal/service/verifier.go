package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/pkg/tracing"
	"example.com/checkout-core/services/checkout/internal/cache"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// ClientCallback — подтверждение оплаты от клиента после оплаты в виджете шлюза.
type ClientCallback struct {
	UserID           string // владелец заказа, пустой для внутренних вызовов
	AttemptID        string // необязательный
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// WebhookEvent — webhook шлюза в исходном виде.
type WebhookEvent struct {
	RawBody   []byte
	Signature string
}

// VerificationResult — итог обработки подтверждения.
type VerificationResult struct {
	OrderID          string                      `json:"order_id"`
	AttemptID        string                      `json:"attempt_id"`
	GatewayOrderID   string                      `json:"gateway_order_id"`
	GatewayPaymentID string                      `json:"gateway_payment_id,omitempty"`
	OrderStatus      domain.OrderStatus          `json:"order_status"`
	AttemptOutcome   domain.AttemptOutcome       `json:"attempt_outcome"`
	VerifiedVia      *domain.VerificationChannel `json:"verified_via,omitempty"`
	AlreadyVerified  bool                        `json:"already_verified"`
	Superseded       bool                        `json:"superseded"`
}

// ResultStore хранит результаты webhook по event_id.
// Реализуется cache.RedisJSON[VerificationResult].
type ResultStore interface {
	Get(ctx context.Context, key string) (*VerificationResult, error)
	SetNX(ctx context.Context, key string, v *VerificationResult) (bool, error)
}

// confirmation — подтверждение из любого канала в общем виде.
type confirmation struct {
	channel        domain.VerificationChannel
	gatewayOrderID string
	paymentID      string
	attemptID      string
	userID         string
	capture        bool
	reportedAmount *int64 // минорные единицы, только webhook
	failureReason  string
}

// PaymentVerifier принимает подтверждения оплаты из двух независимых каналов
// и переводит заказ не более одного раза.
type PaymentVerifier struct {
	repo    repository.OrderRepository
	machine *StateMachine
	signer  paymentgw.Signer
	results ResultStore
}

// NewPaymentVerifier создаёт PaymentVerifier. results может быть nil.
func NewPaymentVerifier(repo repository.OrderRepository, machine *StateMachine, signer paymentgw.Signer, results ResultStore) *PaymentVerifier {
	return &PaymentVerifier{repo: repo, machine: machine, signer: signer, results: results}
}

// VerifyClientCallback проверяет подпись клиента и подтверждает оплату.
// Сумма в callback не передаётся: подпись связывает платёж с транзакцией,
// открытой на зафиксированную сумму.
func (v *PaymentVerifier) VerifyClientCallback(ctx context.Context, cb ClientCallback) (*VerificationResult, error) {
	ctx, span := tracing.Tracer("checkout/verifier").Start(ctx, "verifier.VerifyClientCallback")
	defer span.End()

	if err := v.signer.VerifyClient(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature); err != nil {
		v.reject(ctx, domain.ChannelClientCallback, cb.GatewayOrderID, err)
		tracing.RecordError(span, err)
		return nil, err
	}

	result, err := v.apply(ctx, confirmation{
		channel:        domain.ChannelClientCallback,
		gatewayOrderID: cb.GatewayOrderID,
		paymentID:      cb.GatewayPaymentID,
		attemptID:      cb.AttemptID,
		userID:         cb.UserID,
		capture:        true,
	})
	if err != nil {
		tracing.RecordError(span, err)
	}
	return result, err
}

// HandleWebhook проверяет подпись webhook и применяет его.
// Повторная доставка того же event_id отдаёт сохранённый результат.
func (v *PaymentVerifier) HandleWebhook(ctx context.Context, ev WebhookEvent) (*VerificationResult, error) {
	ctx, span := tracing.Tracer("checkout/verifier").Start(ctx, "verifier.HandleWebhook")
	defer span.End()

	if err := v.signer.VerifyWebhook(ev.RawBody, ev.Signature); err != nil {
		v.reject(ctx, domain.ChannelWebhook, "", err)
		tracing.RecordError(span, err)
		return nil, err
	}

	payload, err := paymentgw.ParseWebhook(ev.RawBody)
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues(string(domain.ChannelWebhook), "error").Inc()
		tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("webhook.event_id", payload.EventID))

	if cached := v.cachedResult(ctx, payload.EventID); cached != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues(string(domain.ChannelWebhook), "duplicate").Inc()
		return cached, nil
	}

	amount := payload.Amount
	result, err := v.apply(ctx, confirmation{
		channel:        domain.ChannelWebhook,
		gatewayOrderID: payload.GatewayOrderID,
		paymentID:      payload.PaymentID,
		capture:        payload.IsCapture(),
		reportedAmount: &amount,
		failureReason:  payload.ErrorReason,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	v.storeResult(ctx, payload.EventID, result)
	return result, nil
}

// apply — общий обработчик для обоих каналов.
func (v *PaymentVerifier) apply(ctx context.Context, in confirmation) (*VerificationResult, error) {
	log := logger.FromContext(ctx).With().
		Str("channel", string(in.channel)).
		Str("gateway_order_id", in.gatewayOrderID).
		Str("payment_id", in.paymentID).
		Logger()

	order, err := v.repo.GetByGatewayOrderID(ctx, in.gatewayOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownOrder) {
			log.Warn().Msg("Подтверждение по неизвестной транзакции, требуется сверка")
			metrics.PaymentVerificationsTotal.WithLabelValues(string(in.channel), "unknown_order").Inc()
		}
		return nil, err
	}
	if in.userID != "" && !order.IsOwnedBy(in.userID) {
		return nil, domain.ErrForbidden
	}

	ctx = logger.WithOrderID(ctx, order.ID)

	var (
		result  *VerificationResult
		outcome error
		label   string
		reviews []domain.ReviewReason
	)
	_, err = v.machine.Update(ctx, order.ID, func(tx *Tx) error {
		result, outcome, label, reviews = nil, nil, "", nil

		o := tx.Order
		a := o.AttemptByGatewayOrderID(in.gatewayOrderID)
		if a == nil || (in.attemptID != "" && a.ID != in.attemptID) {
			return domain.ErrUnknownOrder
		}

		// Повторная доставка того же платежа не создаёт новую запись сверки.
		flagged := a.Outcome != domain.OutcomeVerified &&
			a.GatewayPaymentID != nil && *a.GatewayPaymentID == in.paymentID
		review := func(reason domain.ReviewReason) {
			if flagged {
				return
			}
			a.RecordPaymentID(in.paymentID, tx.Now())
			tx.Review(a, in.paymentID, reason, in.channel, in.reportedAmount)
			reviews = append(reviews, reason)
		}
		active := a == o.ActiveAttempt()

		switch {
		case in.capture && in.reportedAmount != nil && *in.reportedAmount != paymentgw.ToMinorUnits(o.GrandTotal()):
			// Попытка закрывается, статус заказа не меняется.
			if a.IsPending() {
				if err := a.MarkFailed(string(domain.ReviewAmountMismatch), tx.Now()); err != nil {
					return err
				}
			}
			review(domain.ReviewAmountMismatch)
			tx.Touch()
			outcome, label = domain.ErrAmountMismatch, "amount_mismatch"

		case a.Outcome == domain.OutcomeVerified:
			label = "already_verified"

		case active && (o.Status == domain.OrderStatusFailed || o.Status == domain.OrderStatusCancelled):
			// Заказ уже закрыт (таймаут оплаты или отмена): подтверждение не применяется.
			if in.capture {
				review(domain.ReviewCapturedOnClosedOrder)
				outcome, label = domain.ErrManualReview, "manual_review"
			} else {
				if a.IsPending() {
					if err := a.MarkFailed(in.failureReason, tx.Now()); err != nil {
						return err
					}
				}
				label = "failed"
			}
			tx.Touch()

		case !active || !a.IsPending():
			// Устаревшая или уже закрытая попытка: статус заказа не меняется.
			if a.IsPending() {
				if in.capture {
					a.MarkSuperseded(tx.Now())
				} else if err := a.MarkFailed(in.failureReason, tx.Now()); err != nil {
					return err
				}
			}
			if in.capture {
				review(domain.ReviewStaleAttemptCaptured)
			}
			tx.Touch()
			label = "superseded"
			if active {
				label = "failed"
				// Активная попытка закрыта сверкой суммы, списание ждёт ручной проверки.
				if in.capture {
					outcome, label = domain.ErrManualReview, "manual_review"
				}
			}

		case in.capture:
			if err := a.MarkVerified(in.paymentID, in.channel, tx.Now()); err != nil {
				return err
			}
			if err := tx.Apply(domain.EventPaymentConfirmed, a); err != nil {
				return err
			}
			label = "verified"

		default:
			reason := in.failureReason
			if reason == "" {
				reason = "payment_failed"
			}
			if err := a.MarkFailed(reason, tx.Now()); err != nil {
				return err
			}
			if err := tx.Fail(reason, a); err != nil {
				return err
			}
			label = "failed"
		}

		result = newVerificationResult(o, a)
		result.AlreadyVerified = label == "already_verified"
		result.Superseded = label == "superseded"
		return nil
	})
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues(string(in.channel), "error").Inc()
		log.Error().Err(err).Msg("Ошибка обработки подтверждения оплаты")
		return nil, err
	}

	metrics.PaymentVerificationsTotal.WithLabelValues(string(in.channel), label).Inc()
	for _, reason := range reviews {
		metrics.PaymentReviewsTotal.WithLabelValues(string(reason)).Inc()
		log.Warn().Str("reason", string(reason)).Msg("Платёж отправлен на ручную сверку")
	}

	if outcome != nil {
		return nil, fmt.Errorf("%w: заказ %s", outcome, order.ID)
	}

	log.Info().
		Str("result", label).
		Str("order_status", string(result.OrderStatus)).
		Msg("Подтверждение оплаты обработано")
	return result, nil
}

func (v *PaymentVerifier) reject(ctx context.Context, channel domain.VerificationChannel, gatewayOrderID string, err error) {
	metrics.PaymentVerificationsTotal.WithLabelValues(string(channel), "invalid_signature").Inc()
	logger.Ctx(ctx).Warn().
		Err(err).
		Str("channel", string(channel)).
		Str("gateway_order_id", gatewayOrderID).
		Msg("Отклонено подтверждение с неверной подписью")
}

func (v *PaymentVerifier) cachedResult(ctx context.Context, eventID string) *VerificationResult {
	if v.results == nil {
		return nil
	}
	cached, err := v.results.Get(ctx, eventID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("Кэш результатов webhook недоступен")
		}
		return nil
	}
	return cached
}

func (v *PaymentVerifier) storeResult(ctx context.Context, eventID string, result *VerificationResult) {
	if v.results == nil {
		return
	}
	if _, err := v.results.SetNX(ctx, eventID, result); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("Не удалось сохранить результат webhook")
	}
}

func newVerificationResult(o *domain.Order, a *domain.PaymentAttempt) *VerificationResult {
	r := &VerificationResult{
		OrderID:        o.ID,
		AttemptID:      a.ID,
		GatewayOrderID: a.GatewayOrderID,
		OrderStatus:    o.Status,
		AttemptOutcome: a.Outcome,
		VerifiedVia:    a.VerifiedVia,
	}
	if a.GatewayPaymentID != nil {
		r.GatewayPaymentID = *a.GatewayPaymentID
	}
	return r
}
