package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

var (
	// ErrMiss: the key does not exist.
	ErrMiss = errors.New("cache miss")
	// ErrTransient marks failures worth retrying (connection, timeout).
	ErrTransient = errors.New("transient cache failure")
)

// Backend is the raw key/value store under Store. Implementations return
// ErrMiss for absent keys and wrap retryable failures with ErrTransient.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// Scan returns one page of keys matching pattern and the next cursor;
	// cursor 0 means the iteration is complete.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
}

type RedisBackend struct {
	rdb redis.UniversalClient
}

func NewRedisBackend(rdb redis.UniversalClient) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, classify(err)
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return classify(b.rdb.Set(ctx, key, value, ttl).Err())
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return classify(b.rdb.Del(ctx, key).Err())
}

func (b *RedisBackend) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	keys, next, err := b.rdb.Scan(ctx, cursor, match, count).Result()
	return keys, next, classify(err)
}

// classify treats server replies (WRONGTYPE, OOM, ...) and caller
// cancellation as final; everything else is a connection-level problem.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
