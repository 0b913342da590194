package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"github.com/webshopx/fulfillment/internal/config"
)

// New builds the shared client. Call it once in main and inject it.
func New(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

// Ping fails fast at startup when Redis is unreachable.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func Exists(ctx context.Context, rdb redis.UniversalClient, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
