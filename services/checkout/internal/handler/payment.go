package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/service"
)

// SignatureHeader — заголовок с подписью тела webhook.
const SignatureHeader = "X-Gateway-Signature"

// maxWebhookBody — ограничение размера тела webhook.
const maxWebhookBody = 1 << 20

// PaymentHandler принимает подтверждения оплаты по обоим каналам.
type PaymentHandler struct {
	verifier PaymentVerifier
}

// NewPaymentHandler создаёт обработчик.
func NewPaymentHandler(verifier PaymentVerifier) *PaymentHandler {
	return &PaymentHandler{verifier: verifier}
}

// Verify — client callback после оплаты в виджете шлюза.
// POST /api/v1/payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	result, err := h.verifier.VerifyClientCallback(c.Request.Context(), service.ClientCallback{
		UserID:           userID,
		AttemptID:        req.AttemptID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		HandleError(c, err, "Verify")
		return
	}

	c.JSON(http.StatusOK, verificationToResponse(result))
}

// Webhook — уведомление шлюза о статусе платежа.
// POST /api/v1/payments/webhook
//
// Подпись считается по телу в исходном виде, поэтому тело читается целиком до разбора.
// Ответ 2xx останавливает повторную доставку, поэтому ошибки, которые повтор
// не исправит (расхождение суммы, ручная сверка), подтверждаются 202.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) == 0 || len(body) > maxWebhookBody {
		invalidRequest(c)
		return
	}

	result, err := h.verifier.HandleWebhook(ctx, service.WebhookEvent{
		RawBody:   body,
		Signature: c.GetHeader(SignatureHeader),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, verificationToResponse(result))
	case errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrManualReview):
		logger.Ctx(ctx).Warn().Err(err).Msg("Webhook принят и передан на ручную сверку")
		c.JSON(http.StatusAccepted, gin.H{"status": "review"})
	default:
		HandleError(c, err, "Webhook")
	}
}
