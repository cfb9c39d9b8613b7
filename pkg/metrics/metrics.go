// Package metrics предоставляет Prometheus метрики checkout-сервиса
// и HTTP server для /metrics, /healthz и /readyz.
//
//	srv := metrics.NewServer(":9090", "checkout", metrics.WithReadinessCheck(check))
//	go srv.Start()
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/checkout-core/pkg/logger"
)

// =============================================================================
// HTTP метрики
// =============================================================================

var (
	// RequestsTotal — счётчик запросов.
	// PromQL: rate(requests_total{service="checkout"}[5m])
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Общее количество запросов по сервису, методу и статусу",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration — гистограмма latency запросов.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Время выполнения запроса в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)
)

// =============================================================================
// Метрики checkout
// =============================================================================

var (
	// PricingTotal — расчёты цены корзины.
	// result: ok, invalid_coupon, not_applicable, invalid_cart.
	PricingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_pricing_total",
			Help: "Количество расчётов стоимости корзины по результату",
		},
		[]string{"result"},
	)

	// ShippingFallbackTotal — расчёты доставки на запасных правилах.
	// source: last_known, defaults.
	ShippingFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_shipping_fallback_total",
			Help: "Количество расчётов доставки без актуальных правил из хранилища",
		},
		[]string{"source"},
	)

	// GatewayRequestsTotal — запросы к платёжному шлюзу.
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_gateway_requests_total",
			Help: "Количество запросов к платёжному шлюзу по результату",
		},
		[]string{"operation", "result"},
	)

	// GatewayRequestDuration — latency запросов к шлюзу.
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_gateway_request_duration_seconds",
			Help:    "Время запроса к платёжному шлюзу в секундах",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// PaymentVerificationsTotal — проверки платежей.
	// channel: client_callback, webhook.
	// result: verified, already_verified, superseded, failed, invalid_signature,
	// amount_mismatch, manual_review, unknown_order, error.
	PaymentVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_verifications_total",
			Help: "Количество проверок платежей по каналу и результату",
		},
		[]string{"channel", "result"},
	)

	// PaymentReviewsTotal — платежи, отправленные на ручной разбор.
	PaymentReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_reviews_total",
			Help: "Количество платежей, требующих ручного разбора, по причине",
		},
		[]string{"reason"},
	)

	// OrderTransitionsTotal — переходы состояний заказа.
	OrderTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_order_transitions_total",
			Help: "Количество переходов заказа по событию и целевому статусу",
		},
		[]string{"event", "to"},
	)

	// StaleOrdersSweptTotal — заказы, переведённые в failed по таймауту оплаты.
	StaleOrdersSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_stale_orders_swept_total",
			Help: "Количество заказов, закрытых по таймауту ожидания оплаты",
		},
	)

	// OutboxPublishedTotal — события outbox, отправленные в Kafka.
	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outbox_published_total",
			Help: "Количество отправленных событий outbox по результату",
		},
		[]string{"result"},
	)
)

// =============================================================================
// HTTP Server для /metrics endpoint
// =============================================================================

// ReadinessChecker возвращает nil, если сервис готов принимать трафик.
type ReadinessChecker func(ctx context.Context) error

// Server — HTTP сервер для экспорта метрик Prometheus.
type Server struct {
	httpServer     *http.Server
	service        string
	readinessCheck ReadinessChecker
}

// Option — функциональная опция для настройки Server.
type Option func(*Server)

// WithReadinessCheck добавляет проверку готовности для /readyz.
func WithReadinessCheck(checker ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessCheck = checker
	}
}

// NewServer создаёт metrics server.
func NewServer(addr, service string, opts ...Option) *Server {
	s := &Server{service: service}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// liveness: процесс отвечает
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})

	// readiness: MySQL, Redis и Kafka доступны
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if s.readinessCheck == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.readinessCheck(ctx); err != nil {
			// детали ошибки наружу не отдаём
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			logger.Warn().Err(err).Str("service", s.service).Msg("Readiness check failed")
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	return mux
}

// Start запускает HTTP сервер. Блокирующий вызов.
func (s *Server) Start() error {
	logger.Info().Str("service", s.service).Str("addr", s.httpServer.Addr).Msg("Запуск Metrics Server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// Вспомогательные функции
// =============================================================================

// RecordRequest записывает метрики запроса.
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordGatewayRequest записывает результат и latency запроса к шлюзу.
func RecordGatewayRequest(operation string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// GinMetricsMiddleware собирает requests_total и request_duration_seconds.
// Путь берётся по шаблону маршрута, чтобы order_id не раздувал кардинальность.
func GinMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RecordRequest(service, path, status, time.Since(start))
	}
}
