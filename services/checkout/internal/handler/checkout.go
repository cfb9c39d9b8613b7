package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/service"
)

// CheckoutHandler — сценарии покупателя: расчёт, заказ, оплата, отмена.
type CheckoutHandler struct {
	checkout     CheckoutService
	gatewayKeyID string
}

// NewCheckoutHandler создаёт обработчик. gatewayKeyID отдаётся клиенту для виджета шлюза.
func NewCheckoutHandler(checkout CheckoutService, gatewayKeyID string) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:     checkout,
		gatewayKeyID: gatewayKeyID,
	}
}

// Quote рассчитывает стоимость текущей корзины.
// POST /api/v1/checkout/quote
func (h *CheckoutHandler) Quote(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req QuoteRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		invalidRequest(c)
		return
	}

	pricing, err := h.checkout.Quote(c.Request.Context(), userID, req.CouponCode)
	if err != nil {
		HandleError(c, err, "Quote")
		return
	}

	c.JSON(http.StatusOK, pricing)
}

// CreateOrder оформляет заказ и открывает транзакцию в шлюзе.
// POST /api/v1/orders
//
// Если шлюз недоступен, заказ остаётся в статусе created и возвращается с 503:
// оплату можно открыть позже через POST /api/v1/orders/:id/payment.
func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Ctx(ctx).Debug().Err(err).Msg("Невалидный запрос на оформление заказа")
		invalidRequest(c)
		return
	}

	result, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		UserID:        userID,
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		if result != nil && result.Order != nil && errors.Is(err, domain.ErrGatewayUnavailable) {
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("order_id", result.Order.ID).
				Msg("Заказ создан, но транзакция не открыта")
			c.JSON(http.StatusServiceUnavailable, CheckoutResponse{Order: orderToResponse(result.Order)})
			return
		}
		HandleError(c, err, "CreateOrder")
		return
	}

	resp := CheckoutResponse{Order: orderToResponse(result.Order)}
	if result.Attempt != nil {
		resp.Payment = paymentToResponse(result.Attempt, h.gatewayKeyID)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", result.Order.ID).
		Int64("grand_total", result.Order.GrandTotal()).
		Msg("Заказ оформлен")

	c.JSON(http.StatusCreated, resp)
}

// GetOrder возвращает заказ с попытками оплаты.
// GET /api/v1/orders/:id
func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleError(c, err, "GetOrder")
		return
	}

	c.JSON(http.StatusOK, orderToResponse(order))
}

// OpenPayment открывает первую транзакцию для заказа или возвращает текущую.
// POST /api/v1/orders/:id/payment
func (h *CheckoutHandler) OpenPayment(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	attempt, err := h.checkout.OpenPayment(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleError(c, err, "OpenPayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(attempt, h.gatewayKeyID))
}

// RetryPayment открывает новую транзакцию для неоплаченного заказа.
// Заказ и сумма остаются прежними.
// POST /api/v1/orders/:id/retry
func (h *CheckoutHandler) RetryPayment(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	attempt, err := h.checkout.RetryPayment(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleError(c, err, "RetryPayment")
		return
	}

	c.JSON(http.StatusOK, paymentToResponse(attempt, h.gatewayKeyID))
}

// CancelOrder отменяет неоплаченный заказ.
// POST /api/v1/orders/:id/cancel
func (h *CheckoutHandler) CancelOrder(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	order, err := h.checkout.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		HandleError(c, err, "CancelOrder")
		return
	}

	c.JSON(http.StatusOK, orderToResponse(order))
}
