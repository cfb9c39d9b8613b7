// Package healthcheck предоставляет проверки зависимостей для /readyz.
package healthcheck

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"example.com/checkout-core/pkg/kafka"
)

// Check — проверка одной зависимости.
type Check func(ctx context.Context) error

// CheckMySQL проверяет доступность MySQL через GORM.
func CheckMySQL(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("mysql ping: %w", err)
		}
		return nil
	}
}

// CheckRedis проверяет доступность Redis.
func CheckRedis(rdb redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}

// CheckKafka проверяет доступность брокера Kafka.
func CheckKafka(brokers []string) Check {
	return func(ctx context.Context) error {
		return kafka.Ping(ctx, brokers)
	}
}

// Composite возвращает первую ошибку из проверок или nil.
func Composite(checks ...Check) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
