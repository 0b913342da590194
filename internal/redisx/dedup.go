package redisx

import (
	"context"
	"github.com/redis/go-redis/v9"
	"time"
)

// Deduper remembers handled work items so a redelivered message skips them.
type Deduper struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewDeduper(rdb redis.UniversalClient, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, d.rdb, key)
}

// Mark records key and reports whether this call was the first to do so.
func (d *Deduper) Mark(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
}
