// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию checkout-сервиса.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
	Gateway   GatewayConfig
	Shipping  ShippingConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"checkout-core"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	Version   string `env:"APP_VERSION" envDefault:"1.0.0"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки HTTP сервера.
type HTTPConfig struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	CORSAllowedOrigins []string `env:"HTTP_CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	HSTS               bool     `env:"HTTP_HSTS" envDefault:"false"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"storefront"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"MYSQL_AUTO_MIGRATE" envDefault:"false"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки Kafka.
// Пустой список брокеров отключает outbox publisher и consumer событий купонов.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"checkout-core"`
}

// JWTConfig содержит настройки проверки JWT (RS256).
// Токены выдаёт внешний сервис аутентификации, здесь нужен только публичный ключ.
type JWTConfig struct {
	PublicKeyPath string `env:"JWT_PUBLIC_KEY_PATH,required"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"storefront-auth"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"`

	// SampleRatio — доля записываемых трасс (1.0 — все).
	SampleRatio float64 `env:"JAEGER_SAMPLE_RATIO" envDefault:"1.0"`
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GatewayConfig содержит настройки платёжного шлюза.
// KeySecret подписывает client callback, WebhookSecret подписывает webhook.
type GatewayConfig struct {
	BaseURL       string        `env:"GATEWAY_BASE_URL" envDefault:"https://api.razorpay.com"`
	KeyID         string        `env:"GATEWAY_KEY_ID,required,notEmpty"`
	KeySecret     string        `env:"GATEWAY_KEY_SECRET,required,notEmpty"`
	WebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET,required,notEmpty"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	BreakerTimeout      time.Duration `env:"GATEWAY_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"GATEWAY_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"GATEWAY_BREAKER_MIN_REQUESTS" envDefault:"5"`
}

// ShippingConfig содержит значения доставки по умолчанию.
// Используются, когда store_settings недоступна и последнее известное значение отсутствует.
type ShippingConfig struct {
	FreeThreshold int64         `env:"SHIPPING_FREE_THRESHOLD" envDefault:"1000"`
	FlatFee       int64         `env:"SHIPPING_FLAT_FEE" envDefault:"50"`
	CacheTTL      time.Duration `env:"SHIPPING_CACHE_TTL" envDefault:"5m"`
}

// CheckoutConfig содержит настройки жизненного цикла заказа.
type CheckoutConfig struct {
	Currency           string        `env:"CHECKOUT_CURRENCY" envDefault:"INR"`
	StalePaymentAfter  time.Duration `env:"CHECKOUT_STALE_PAYMENT_AFTER" envDefault:"30m"`
	SweepInterval      time.Duration `env:"CHECKOUT_SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize     int           `env:"CHECKOUT_SWEEP_BATCH_SIZE" envDefault:"50"`
	RetryReprice       bool          `env:"CHECKOUT_RETRY_REPRICE" envDefault:"false"`
	CouponCacheTTL     time.Duration `env:"CHECKOUT_COUPON_CACHE_TTL" envDefault:"10m"`
	WebhookResultTTL   time.Duration `env:"CHECKOUT_WEBHOOK_RESULT_TTL" envDefault:"24h"`
	InternalAPIEnabled bool          `env:"CHECKOUT_INTERNAL_API_ENABLED" envDefault:"true"`
}

// RateLimitConfig содержит настройки ограничения запросов.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsLimit int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, которые env не может проверить тегами.
func (c *Config) Validate() error {
	if c.Shipping.FreeThreshold < 0 || c.Shipping.FlatFee < 0 {
		return fmt.Errorf("параметры доставки не могут быть отрицательными")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT должен быть больше нуля")
	}
	if len(c.Checkout.Currency) != 3 {
		return fmt.Errorf("CHECKOUT_CURRENCY должен быть ISO 4217 кодом: %q", c.Checkout.Currency)
	}
	return nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
