package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
)

// Redis — адаптер общего кеша поверх Redis.
// Один Redis разделяется всеми сервисами платформы (auth, post, media),
// изоляция достигается только префиксом ключей
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis подключается к Redis и проверяет соединение
func NewRedis(addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Redis{client: client, prefix: prefix}, nil
}

// Close закрывает соединение с Redis
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get читает запись кеша
func (r *Redis) Get(ctx context.Context, t Type, key string) Result {
	raw, err := r.client.WithContext(ctx).Get(Key(r.prefix, t, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Miss()
		}
		return Fail(fmt.Errorf("redis get: %w", err))
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return Fail(err)
	}

	return Hit(env.Schema, env.Payload)
}

// Set атомарно записывает значение с TTL
func (r *Redis) Set(ctx context.Context, t Type, key, schema string, value any, ttl time.Duration) error {
	data, err := Encode(schema, value)
	if err != nil {
		return err
	}

	if err := r.client.WithContext(ctx).Set(Key(r.prefix, t, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete удаляет запись; возвращает true, если запись существовала
func (r *Redis) Delete(ctx context.Context, t Type, key string) (bool, error) {
	count, err := r.client.WithContext(ctx).Del(Key(r.prefix, t, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}

	return count > 0, nil
}

// Has проверяет наличие ключа
func (r *Redis) Has(ctx context.Context, t Type, key string) (bool, error) {
	count, err := r.client.WithContext(ctx).Exists(Key(r.prefix, t, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}

	return count > 0, nil
}
