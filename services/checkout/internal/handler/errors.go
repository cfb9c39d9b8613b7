package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMapping — HTTP ответ для доменной ошибки.
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// verificationFailed — общий ответ для отклонённых подтверждений оплаты.
// Причина не раскрывается клиенту, она есть в логах и метриках.
const verificationFailed = "Не удалось подтвердить платёж"

// errorMappings проверяются по порядку через errors.Is.
// ErrPriceChanged оборачивает ошибку расчёта цены и должна идти первой.
var errorMappings = []errorMapping{
	{domain.ErrPriceChanged, http.StatusConflict, "price_changed", "Цена заказа изменилась, оформите новый заказ"},

	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart", "Корзина пуста"},
	{domain.ErrInvalidCart, http.StatusUnprocessableEntity, "invalid_cart", "Корзина содержит некорректные позиции"},
	{domain.ErrInvalidCoupon, http.StatusUnprocessableEntity, "invalid_coupon", "Купон недействителен"},
	{domain.ErrCouponNotApplicable, http.StatusUnprocessableEntity, "coupon_not_applicable", "Купон не применим к товарам в корзине"},
	{domain.ErrInvalidUserID, http.StatusBadRequest, "invalid_argument", "Некорректный идентификатор пользователя"},

	{domain.ErrOrderNotFound, http.StatusNotFound, "not_found", "Заказ не найден"},
	{domain.ErrUnknownOrder, http.StatusNotFound, "unknown_order", "Транзакция не найдена"},
	{repository.ErrReviewNotFound, http.StatusNotFound, "not_found", "Запись сверки не найдена"},
	{domain.ErrForbidden, http.StatusForbidden, "permission_denied", "Нет доступа к заказу"},

	{domain.ErrNotRetryable, http.StatusConflict, "not_retryable", "Заказ уже оплачен"},
	{domain.ErrIllegalTransition, http.StatusConflict, "illegal_transition", "Действие недоступно в текущем статусе заказа"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update", "Заказ изменён параллельно, повторите запрос"},
	{domain.ErrManualReview, http.StatusConflict, "manual_review", "Платёж передан на ручную проверку"},

	{domain.ErrInvalidSignature, http.StatusBadRequest, "verification_failed", verificationFailed},
	{domain.ErrAmountMismatch, http.StatusBadRequest, "verification_failed", verificationFailed},
	{paymentgw.ErrMalformedWebhook, http.StatusBadRequest, "invalid_request", "Некорректное тело запроса"},

	{domain.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable", "Платёжный шлюз временно недоступен"},
}

// HandleError преобразует ошибку сервисного слоя в HTTP ответ.
// err не должен быть nil.
func HandleError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	if err == nil {
		log.Error().Str("method", method).Msg("HandleError вызван с nil ошибкой")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Внутренняя ошибка сервера"})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				log.Warn().Err(err).Str("method", method).Msg("Зависимость недоступна")
			} else {
				log.Debug().Err(err).Str("method", method).Msg("Запрос отклонён")
			}
			c.JSON(m.status, ErrorResponse{Error: m.code, Message: m.message})
			return
		}
	}

	log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Внутренняя ошибка сервера",
	})
}

func invalidRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Невалидные данные запроса",
	})
}
