package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"example.com/checkout-core/pkg/logger"
)

// rateLimitScript — INCR и EXPIRE одной операцией (fixed window).
var rateLimitScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimitConfig — конфигурация rate limiter.
type RateLimitConfig struct {
	Redis  redis.UniversalClient
	Limit  int           // по умолчанию 60
	Window time.Duration // по умолчанию 1 минута
	Prefix string        // префикс ключей, по умолчанию "rate:"
}

// RateLimitMiddleware ограничивает количество запросов на пользователя
// (или на IP для запросов без аутентификации). Счётчики хранятся в Redis.
type RateLimitMiddleware struct {
	redis  redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

// NewRateLimitMiddleware создаёт middleware.
func NewRateLimitMiddleware(cfg RateLimitConfig) *RateLimitMiddleware {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rate:"
	}

	return &RateLimitMiddleware{
		redis:  cfg.Redis,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
	}
}

// Handle возвращает Gin handler function для middleware.
// При недоступности Redis запрос пропускается (fail-open).
func (m *RateLimitMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		subject := "ip:" + c.ClientIP()
		if userID := c.GetString(ContextUserID); userID != "" {
			subject = "user:" + userID
		}

		count, err := rateLimitScript.Run(c.Request.Context(), m.redis, []string{m.prefix + subject}, int(m.window.Seconds())).Int()
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка проверки rate limit")
			c.Next()
			return
		}

		remaining := max(m.limit-count, 0)
		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > m.limit {
			log.Warn().
				Str("subject", subject).
				Int("limit", m.limit).
				Msg("Rate limit превышен")

			seconds := int(m.window.Seconds())
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("Превышен лимит запросов. Попробуйте через %d секунд", seconds),
			})
			return
		}

		c.Next()
	}
}
