// Package cache содержит read-through кэш поверх Redis для купонов
// и правил доставки, а также хранилище результатов обработки webhook.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/checkout-core/pkg/logger"
)

// ErrCacheMiss — ключа нет в кэше.
var ErrCacheMiss = errors.New("cache miss")

// RedisJSON хранит значения T в Redis в виде JSON.
// К TTL добавляется случайный разброс до 10%, чтобы ключи не истекали одновременно.
type RedisJSON[T any] struct {
	client  redis.UniversalClient
	prefix  string
	baseTTL time.Duration
}

// NewRedisJSON создаёт хранилище с префиксом ключей prefix.
func NewRedisJSON[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisJSON[T] {
	return &RedisJSON[T]{client: client, prefix: prefix, baseTTL: ttl}
}

// Get возвращает значение или ErrCacheMiss.
func (r *RedisJSON[T]) Get(ctx context.Context, key string) (*T, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &v, nil
}

// Set сохраняет значение.
func (r *RedisJSON[T]) Set(ctx context.Context, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// SetNX сохраняет значение, только если ключа ещё нет.
// Возвращает true, если значение записано.
func (r *RedisJSON[T]) SetNX(ctx context.Context, key string, v *T) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal %s: %w", key, err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, data, r.ttl()).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Delete удаляет ключ.
func (r *RedisJSON[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisJSON[T]) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	jitter := r.baseTTL / 10
	if jitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + rand.N(jitter)
}

// =============================================================================
// Read-through
// =============================================================================

// LoadFunc загружает значение из источника при промахе кэша.
type LoadFunc[T any] func(ctx context.Context, key string) (*T, error)

// ReadThrough читает из Redis, а при промахе из источника, и кладёт результат в кэш.
// Недоступность Redis не ломает чтение: запрос уходит в источник.
type ReadThrough[T any] struct {
	store *RedisJSON[T]
	load  LoadFunc[T]
	name  string
}

// NewReadThrough создаёт read-through кэш. name используется в логах.
func NewReadThrough[T any](store *RedisJSON[T], load LoadFunc[T], name string) *ReadThrough[T] {
	return &ReadThrough[T]{store: store, load: load, name: name}
}

// Get возвращает значение из кэша или источника.
// Ошибки источника возвращаются без изменений и не кэшируются.
func (c *ReadThrough[T]) Get(ctx context.Context, key string) (*T, error) {
	log := logger.FromContext(ctx)

	v, err := c.store.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Кэш недоступен, читаем из источника")
	}

	v, err = c.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, v); err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Не удалось сохранить значение в кэш")
	}
	return v, nil
}

// Invalidate удаляет ключ из кэша.
func (c *ReadThrough[T]) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
