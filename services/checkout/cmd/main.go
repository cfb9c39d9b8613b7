// Checkout Service — расчёт стоимости корзины, оформление заказа и сверка оплаты.
// HTTP API на gin, заказы в MySQL, кэш купонов и результатов webhook в Redis,
// события заказов публикуются в Kafka через outbox.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gorm.io/gorm"

	"example.com/checkout-core/pkg/circuitbreaker"
	"example.com/checkout-core/pkg/config"
	dbpkg "example.com/checkout-core/pkg/db"
	"example.com/checkout-core/pkg/healthcheck"
	"example.com/checkout-core/pkg/jwt"
	"example.com/checkout-core/pkg/kafka"
	"example.com/checkout-core/pkg/logger"
	"example.com/checkout-core/pkg/metrics"
	"example.com/checkout-core/pkg/outbox"
	"example.com/checkout-core/pkg/tracing"
	"example.com/checkout-core/services/checkout/internal/cache"
	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/handler"
	"example.com/checkout-core/services/checkout/internal/middleware"
	"example.com/checkout-core/services/checkout/internal/paymentgw"
	"example.com/checkout-core/services/checkout/internal/pricing"
	"example.com/checkout-core/services/checkout/internal/repository"
	"example.com/checkout-core/services/checkout/internal/service"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:   cfg.App.LogLevel,
		Pretty:  cfg.App.LogPretty,
		Service: serviceName,
	})
	log := logger.Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("version", cfg.App.Version).
		Int("port", cfg.HTTP.Port).
		Msg("Запуск Checkout Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		SampleRatio:    cfg.Jaeger.SampleRatio,
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	if cfg.MySQL.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("Ошибка миграции схемы")
		}
		log.Info().Msg("Схема checkout обновлена")
	}

	rdb, err := dbpkg.ConnectRedis(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()
	log.Info().Msg("Подключение к Redis установлено")

	kafkaEnabled := len(cfg.Kafka.Brokers) > 0

	checks := []healthcheck.Check{
		healthcheck.CheckMySQL(db),
		healthcheck.CheckRedis(rdb),
	}
	if kafkaEnabled {
		checks = append(checks, healthcheck.CheckKafka(cfg.Kafka.Brokers))
	}
	readinessCheck := healthcheck.Composite(checks...)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			serviceName,
			metrics.WithReadinessCheck(readinessCheck),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Бизнес-логика ===

	coupons := cache.NewCoupons(rdb, repository.NewCouponRepository(db), cfg.Checkout.CouponCacheTTL)
	shippingRules := cache.NewShippingRules(rdb, repository.NewSettingsRepository(db), cfg.Shipping.CacheTTL)

	engine := pricing.NewEngine(
		coupons,
		pricing.NewShippingRulesProvider(shippingRules, domain.ShippingRules{
			FreeThreshold: cfg.Shipping.FreeThreshold,
			FlatFee:       cfg.Shipping.FlatFee,
		}),
		pricing.NewCouponValidator(time.Now),
	)

	gateway := paymentgw.NewClient(paymentgw.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	}, circuitbreaker.NewWithSettings("payment-gateway", circuitbreaker.Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      cfg.Gateway.BreakerTimeout,
		FailureRatio: cfg.Gateway.BreakerFailureRatio,
		MinRequests:  cfg.Gateway.BreakerMinRequests,
	}))
	signer := paymentgw.NewSigner(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	orderRepo := repository.NewOrderRepository(db)
	machine := service.NewStateMachine(orderRepo, time.Now)
	payments := service.NewPaymentOrderManager(orderRepo, machine, gateway)
	retry := service.NewRetryCoordinator(orderRepo, payments, engine, cfg.Checkout.RetryReprice)
	checkoutService := service.NewCheckoutService(
		repository.NewCartRepository(db, cfg.Checkout.Currency),
		engine,
		orderRepo,
		machine,
		payments,
		retry,
	)
	verifier := service.NewPaymentVerifier(
		orderRepo,
		machine,
		signer,
		cache.NewRedisJSON[service.VerificationResult](rdb, "webhook:", cfg.Checkout.WebhookResultTTL),
	)

	// Контекст фоновых воркеров
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workersWg sync.WaitGroup

	sweeper := service.NewStalePaymentSweeper(orderRepo, machine, service.SweeperConfig{
		PollInterval: cfg.Checkout.SweepInterval,
		StaleAfter:   cfg.Checkout.StalePaymentAfter,
		BatchSize:    cfg.Checkout.SweepBatchSize,
	})
	runWorker(ctx, &workersWg, "Stale Payment Sweeper", sweeper.Run)

	// === Kafka: outbox и события купонов ===

	var kafkaProducer *kafka.Producer
	var couponConsumer *kafka.Consumer
	if kafkaEnabled {
		kafkaProducer, couponConsumer = startKafka(ctx, &workersWg, cfg, db, coupons)
	} else {
		log.Warn().Msg("Kafka не настроена, события заказов копятся в outbox")
	}

	// === HTTP ===

	verifierJWT, err := jwt.NewVerifier(jwt.Config{
		PublicKeyPath: cfg.JWT.PublicKeyPath,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации проверки JWT")
	}
	verifierJWT.SetBlacklist(jwt.NewBlacklist(rdb))

	var rateLimitMW *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimitMW = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			Redis:  rdb,
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		})
		log.Info().
			Int("limit", cfg.RateLimit.RequestsLimit).
			Dur("window", cfg.RateLimit.Window).
			Msg("Rate limiting включён")
	}

	router := handler.NewRouter(handler.RouterConfig{
		Checkout:       checkoutService,
		Verifier:       verifier,
		Reviews:        repository.NewReviewRepository(db),
		AuthMW:         middleware.NewAuthMiddleware(verifierJWT),
		RateLimitMW:    rateLimitMW,
		GatewayKeyID:   cfg.Gateway.KeyID,
		InternalAPI:    cfg.Checkout.InternalAPIEnabled,
		CORSOrigins:    cfg.HTTP.CORSAllowedOrigins,
		HSTS:           cfg.HTTP.HSTS,
		ReadinessCheck: readinessCheck,
		Debug:          cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// === Graceful Shutdown ===

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Сначала перестаём принимать запросы, затем останавливаем воркеры
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка при остановке HTTP сервера")
	}

	cancel()
	workersWg.Wait()

	if couponConsumer != nil {
		if err := couponConsumer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Consumer")
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Checkout Service остановлен")
}

// startKafka запускает Outbox Worker и consumer событий купонов.
// Ошибка создания consumer не фатальна: кэш купонов истечёт по TTL.
func startKafka(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, db *gorm.DB, coupons *cache.Coupons) (*kafka.Producer, *kafka.Consumer) {
	log := logger.Logger()
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

	topicsCtx, topicsCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := kafka.EnsureTopics(topicsCtx, cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
		log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
	}
	topicsCancel()

	producer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
	}

	worker := outbox.NewWorker(outbox.NewRepository(db, repository.AggregateOrder), producer, outbox.DefaultWorkerConfig())
	runWorker(ctx, wg, "Outbox Worker", worker.Run)

	consumer, err := kafka.NewConsumer(
		kafka.Config{Brokers: cfg.Kafka.Brokers},
		kafka.TopicCouponEvents,
		cfg.Kafka.ConsumerGroup+"-coupons",
	)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка создания Kafka Consumer, инвалидация купонов только по TTL")
		return producer, nil
	}
	consumer.SetDLQProducer(producer)

	couponEvents := service.NewCouponEventsHandler(coupons)
	runWorker(ctx, wg, "Coupon Events Consumer", func(ctx context.Context) {
		if err := consumer.ConsumeWithRetry(ctx, couponEvents.Handle, 3); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Ошибка чтения событий купонов")
		}
	})

	return producer, consumer
}

// runWorker запускает фоновую задачу с восстановлением после паники.
func runWorker(ctx context.Context, wg *sync.WaitGroup, name string, run func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("worker", name).Msg("Паника в фоновом воркере")
			}
		}()
		run(ctx)
	}()
}
