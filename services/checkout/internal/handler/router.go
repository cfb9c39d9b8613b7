package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/services/checkout/internal/middleware"
)

const serviceName = "checkout"

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — конфигурация роутера.
type Router struct {
	engine         *gin.Engine
	checkout       CheckoutService
	verifier       PaymentVerifier
	reviews        ReviewStore
	authMW         *middleware.AuthMiddleware
	rateLimitMW    *middleware.RateLimitMiddleware
	gatewayKeyID   string
	internalAPI    bool
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Checkout       CheckoutService
	Verifier       PaymentVerifier
	Reviews        ReviewStore
	AuthMW         *middleware.AuthMiddleware
	RateLimitMW    *middleware.RateLimitMiddleware // nil отключает rate limiting
	GatewayKeyID   string
	InternalAPI    bool     // включает /internal/v1
	CORSOrigins    []string // пустой список отключает CORS
	HSTS           bool
	ReadinessCheck ReadinessChecker // опциональная проверка для /readyz
	Debug          bool
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		engine.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	}
	engine.Use(middleware.SecurityHeaders(cfg.HSTS))
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(metrics.GinMetricsMiddleware(serviceName))
	engine.Use(middleware.RequestContext())

	r := &Router{
		engine:         engine,
		checkout:       cfg.Checkout,
		verifier:       cfg.Verifier,
		reviews:        cfg.Reviews,
		authMW:         cfg.AuthMW,
		rateLimitMW:    cfg.RateLimitMW,
		gatewayKeyID:   cfg.GatewayKeyID,
		internalAPI:    cfg.InternalAPI,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// Health endpoints без auth и rate limiting
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	v1 := r.engine.Group("/api/v1")

	// Webhook шлюза: без JWT и rate limiting, аутентифицируется подписью
	paymentHandler := NewPaymentHandler(r.verifier)
	v1.POST("/payments/webhook", paymentHandler.Webhook)

	// === Покупатель (защищённые) ===
	buyer := v1.Group("")
	if r.authMW != nil {
		buyer.Use(r.authMW.Handle())
	}
	if r.rateLimitMW != nil {
		buyer.Use(r.rateLimitMW.Handle())
	}

	checkoutHandler := NewCheckoutHandler(r.checkout, r.gatewayKeyID)
	buyer.POST("/checkout/quote", checkoutHandler.Quote)
	buyer.POST("/payments/verify", paymentHandler.Verify)

	orders := buyer.Group("/orders")
	{
		orders.POST("", checkoutHandler.CreateOrder)
		orders.GET("/:id", checkoutHandler.GetOrder)
		orders.POST("/:id/payment", checkoutHandler.OpenPayment)
		orders.POST("/:id/retry", checkoutHandler.RetryPayment)
		orders.POST("/:id/cancel", checkoutHandler.CancelOrder)
	}

	// === Внутренняя сеть ===
	if r.internalAPI {
		internalHandler := NewInternalHandler(r.checkout, r.reviews)
		internal := r.engine.Group("/internal/v1")
		{
			internal.POST("/orders/:id/fulfill", internalHandler.Fulfill)
			internal.GET("/reviews", internalHandler.ListReviews)
			internal.POST("/reviews/:id/resolve", internalHandler.ResolveReview)
		}
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
	})
}

// livenessCheck — liveness probe: процесс отвечает.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe: зависимости доступны.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
