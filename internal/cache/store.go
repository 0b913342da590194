package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/metrics"
	"github.com/webshopx/fulfillment/internal/orders"
	"go.uber.org/zap"
	"time"
)

const scanPageSize = 100

// Entry is one key/value pair returned by ScanByPrefix.
type Entry struct {
	Key   string
	Value string
}

// Store is the cache-aside front for Backend. Reads fail open, writes
// retry transient failures a bounded number of times.
type Store struct {
	b        Backend
	log      *zap.Logger
	attempts int
	delay    time.Duration
}

func NewStore(b Backend, cfg config.CacheConfig, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{b: b, log: log.Named("cache"), attempts: cfg.RetryAttempts, delay: cfg.RetryDelay}
	if s.attempts < 1 {
		s.attempts = 3
	}
	if s.delay < 0 {
		s.delay = 0
	}
	return s
}

// Get never fails: backend errors are logged and reported as a miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	v, err := s.b.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheOpsTotal.WithLabelValues("get", "hit").Inc()
		return v, true
	case errors.Is(err, ErrMiss):
		metrics.CacheOpsTotal.WithLabelValues("get", "miss").Inc()
	default:
		metrics.CacheOpsTotal.WithLabelValues("get", "error").Inc()
		s.log.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
	}
	return "", false
}

// Set writes value with ttl (0 = no expiry). Transient failures are retried
// with a fixed delay; exhausting the attempts yields *orders.CacheTransientError.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.b.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			return backoff.Permanent(err)
		}
		if attempt < s.attempts {
			metrics.CacheOpsTotal.WithLabelValues("set", "retry").Inc()
			s.log.Warn("cache set failed, retrying",
				zap.String("key", key), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), uint64(s.attempts-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		metrics.CacheOpsTotal.WithLabelValues("set", "ok").Inc()
		return nil
	case errors.Is(err, ErrTransient):
		metrics.CacheOpsTotal.WithLabelValues("set", "error").Inc()
		return &orders.CacheTransientError{Op: "set " + key, Err: err}
	default:
		metrics.CacheOpsTotal.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
}

// SetOnce is Set without retries, for bulk writes where a slow cache must
// not hold up the caller.
func (s *Store) SetOnce(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.b.Set(ctx, key, value, ttl)
	switch {
	case err == nil:
		metrics.CacheOpsTotal.WithLabelValues("set", "ok").Inc()
		return nil
	case errors.Is(err, ErrTransient):
		metrics.CacheOpsTotal.WithLabelValues("set", "error").Inc()
		return &orders.CacheTransientError{Op: "set " + key, Err: err}
	default:
		metrics.CacheOpsTotal.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
}

// Remove is best-effort.
func (s *Store) Remove(ctx context.Context, key string) {
	if err := s.b.Del(ctx, key); err != nil {
		metrics.CacheOpsTotal.WithLabelValues("del", "error").Inc()
		s.log.Warn("cache remove failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheOpsTotal.WithLabelValues("del", "ok").Inc()
}

// ScanByPrefix walks every SCAN page until the cursor returns to 0 and
// fetches each key. Keys that vanish between SCAN and GET are skipped, as
// are keys SCAN reports twice.
func (s *Store) ScanByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var (
		out    []Entry
		seen   = make(map[string]struct{})
		cursor uint64
	)
	for {
		keys, next, err := s.b.Scan(ctx, cursor, prefix+"*", scanPageSize)
		if err != nil {
			metrics.CacheOpsTotal.WithLabelValues("scan", "error").Inc()
			if errors.Is(err, ErrTransient) {
				return nil, &orders.CacheTransientError{Op: "scan " + prefix, Err: err}
			}
			return nil, fmt.Errorf("cache scan %s: %w", prefix, err)
		}
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			v, err := s.b.Get(ctx, k)
			if err != nil {
				if !errors.Is(err, ErrMiss) {
					s.log.Warn("cache scan: get failed, skipping", zap.String("key", k), zap.Error(err))
				}
				continue
			}
			out = append(out, Entry{Key: k, Value: v})
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	metrics.CacheOpsTotal.WithLabelValues("scan", "ok").Inc()
	return out, nil
}

// GetJSON decodes the value under key into dst. A miss or an undecodable
// value both report false.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) bool {
	v, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		s.log.Warn("cache value is not valid json", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(b), ttl)
}

func (s *Store) SetJSONOnce(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetOnce(ctx, key, string(b), ttl)
}

// ScanInto decodes every value under prefix into T. Entries that fail to
// decode are logged and skipped.
func ScanInto[T any](ctx context.Context, s *Store, prefix string) ([]T, error) {
	entries, err := s.ScanByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal([]byte(e.Value), &v); err != nil {
			s.log.Warn("skipping undecodable cache entry", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
