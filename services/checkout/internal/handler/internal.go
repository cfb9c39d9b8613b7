package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/logger"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 500
)

// InternalHandler — вызовы из внутренней сети: склад и поддержка.
type InternalHandler struct {
	checkout CheckoutService
	reviews  ReviewStore
	now      func() time.Time
}

// NewInternalHandler создаёт обработчик.
func NewInternalHandler(checkout CheckoutService, reviews ReviewStore) *InternalHandler {
	return &InternalHandler{
		checkout: checkout,
		reviews:  reviews,
		now:      time.Now,
	}
}

// Fulfill отмечает оплаченный заказ выполненным.
// POST /internal/v1/orders/:id/fulfill
func (h *InternalHandler) Fulfill(c *gin.Context) {
	order, err := h.checkout.Fulfill(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err, "Fulfill")
		return
	}

	c.JSON(http.StatusOK, orderToResponse(order))
}

// ListReviews возвращает неразобранные записи ручной сверки.
// GET /internal/v1/reviews?limit=50
func (h *InternalHandler) ListReviews(c *gin.Context) {
	limit := defaultReviewLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			invalidRequest(c)
			return
		}
		limit = min(n, maxReviewLimit)
	}

	reviews, err := h.reviews.ListOpen(c.Request.Context(), limit)
	if err != nil {
		HandleError(c, err, "ListReviews")
		return
	}

	resp := make([]ReviewResponse, len(reviews))
	for i, r := range reviews {
		resp[i] = reviewToResponse(r)
	}
	c.JSON(http.StatusOK, gin.H{"reviews": resp})
}

// ResolveReview закрывает запись сверки.
// POST /internal/v1/reviews/:id/resolve
func (h *InternalHandler) ResolveReview(c *gin.Context) {
	id := c.Param("id")
	if err := h.reviews.Resolve(c.Request.Context(), id, h.now()); err != nil {
		HandleError(c, err, "ResolveReview")
		return
	}

	logger.Ctx(c.Request.Context()).Info().Str("review_id", id).Msg("Запись сверки закрыта")
	c.Status(http.StatusNoContent)
}
