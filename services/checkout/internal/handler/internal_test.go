package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/repository"
)

func setupInternalRouter(h *InternalHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.POST("/internal/v1/orders/:id/fulfill", h.Fulfill)
	r.GET("/internal/v1/reviews", h.ListReviews)
	r.POST("/internal/v1/reviews/:id/resolve", h.ResolveReview)
	return r
}

func TestFulfill(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"оплаченный заказ", nil, http.StatusOK},
		{"неоплаченный заказ", domain.ErrIllegalTransition, http.StatusConflict},
		{"не найден", domain.ErrOrderNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckoutService{
				FulfillFunc: func(_ context.Context, orderID string) (*domain.Order, error) {
					assert.Equal(t, "order-1", orderID)
					if tt.err != nil {
						return nil, tt.err
					}
					return testOrder(domain.OrderStatusFulfilled), nil
				},
			}
			r := setupInternalRouter(NewInternalHandler(svc, &MockReviewStore{}))

			w := doJSON(t, r, http.MethodPost, "/internal/v1/orders/order-1/fulfill", nil)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestListReviews(t *testing.T) {
	reported := int64(900)
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantCode  int
	}{
		{"по умолчанию", "", defaultReviewLimit, http.StatusOK},
		{"явный лимит", "?limit=10", 10, http.StatusOK},
		{"лимит ограничен сверху", "?limit=100000", maxReviewLimit, http.StatusOK},
		{"невалидный лимит", "?limit=abc", 0, http.StatusBadRequest},
		{"нулевой лимит", "?limit=0", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit := 0
			store := &MockReviewStore{
				ListOpenFunc: func(_ context.Context, limit int) ([]*domain.PaymentReview, error) {
					gotLimit = limit
					return []*domain.PaymentReview{{
						ID:             "rev-1",
						OrderID:        "order-1",
						AttemptID:      "attempt-1",
						GatewayOrderID: "gw_1",
						Reason:         domain.ReviewAmountMismatch,
						Channel:        domain.ChannelWebhook,
						ExpectedAmount: 1044,
						ReportedAmount: &reported,
						CreatedAt:      testNow,
					}}, nil
				},
			}
			r := setupInternalRouter(NewInternalHandler(&MockCheckoutService{}, store))

			w := doJSON(t, r, http.MethodGet, "/internal/v1/reviews"+tt.query, nil)

			require.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantLimit, gotLimit)
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp struct {
				Reviews []ReviewResponse `json:"reviews"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Len(t, resp.Reviews, 1)
			assert.Equal(t, "amount_mismatch", resp.Reviews[0].Reason)
			require.NotNil(t, resp.Reviews[0].ReportedAmount)
			assert.Equal(t, int64(900), *resp.Reviews[0].ReportedAmount)
		})
	}
}

func TestResolveReview(t *testing.T) {
	t.Run("успех", func(t *testing.T) {
		store := &MockReviewStore{
			ResolveFunc: func(_ context.Context, id string, at time.Time) error {
				assert.Equal(t, "rev-1", id)
				assert.Equal(t, testNow, at)
				return nil
			},
		}
		h := NewInternalHandler(&MockCheckoutService{}, store)
		h.now = func() time.Time { return testNow }

		w := doJSON(t, setupInternalRouter(h), http.MethodPost, "/internal/v1/reviews/rev-1/resolve", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("не найдена", func(t *testing.T) {
		store := &MockReviewStore{
			ResolveFunc: func(context.Context, string, time.Time) error {
				return repository.ErrReviewNotFound
			},
		}
		h := NewInternalHandler(&MockCheckoutService{}, store)

		w := doJSON(t, setupInternalRouter(h), http.MethodPost, "/internal/v1/reviews/rev-1/resolve", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
