// Package middleware содержит HTTP middleware checkout-сервиса.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/checkout-core/pkg/jwt"
	"example.com/checkout-core/pkg/logger"
)

// Ключи gin.Context, которые выставляет AuthMiddleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// TokenVerifier — проверка access-токена. Реализуется *jwt.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware проверяет Bearer токен покупателя.
// Подпись и срок проверяются локально по публичному ключу, отзыв через blacklist в Redis.
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware создаёт middleware аутентификации.
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handle возвращает Gin handler function для middleware.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		token := ExtractBearerToken(c)
		if token == "" {
			log.Debug().Msg("Отсутствует токен авторизации")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется авторизация",
			})
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		switch {
		case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrTokenRevoked):
			log.Debug().Err(err).Msg("Токен отклонён")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Токен недействителен",
			})
			return
		case err != nil:
			// Blacklist недоступен: отзыв токена проверить нельзя.
			log.Error().Err(err).Msg("Ошибка проверки токена")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "service_unavailable",
				"message": "Сервис временно недоступен",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)

		log.Debug().Str("user_id", claims.UserID).Msg("Пользователь аутентифицирован")
		c.Next()
	}
}

// ExtractBearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
// Префикс регистронезависимый.
func ExtractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
