package redisx

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

// ErrLockHeld is returned by TryAcquire when another owner holds the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a best-effort mutual exclusion across instances (SET NX PX).
// It expires on its own so a crashed holder cannot wedge the others.
type Lock struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

func NewLock(rdb redis.UniversalClient, name string, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, key: LockKey(name), ttl: ttl}
}

// TryAcquire returns a release func on success.
func (l *Lock) TryAcquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}, nil
}
