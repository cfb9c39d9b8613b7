package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/services/checkout/internal/middleware"
)

// getUserID достаёт user_id, установленный AuthMiddleware.
// При отсутствии сам пишет ответ и возвращает false.
func getUserID(c *gin.Context) (string, bool) {
	log := logger.FromContext(c.Request.Context())

	value, exists := c.Get(middleware.ContextUserID)
	if !exists {
		log.Warn().Msg("user_id не найден в контексте")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return "", false
	}

	userID, ok := value.(string)
	if !ok || userID == "" {
		log.Error().Interface("user_id", value).Msg("user_id не является строкой, ошибка в middleware")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return "", false
	}

	return userID, true
}

// bindOptionalJSON разбирает тело, пустое тело допустимо.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
