package redisx

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "product:42", ProductKey("42"))
	assert.Equal(t, "cart:s-1", CartKey("s-1"))
	assert.Equal(t, "order_status:pay-1", OrderStatusKey("pay-1"))
	assert.Equal(t, "dedup:stock:pay-1:0:A", StockDedupKey("pay-1", 0, "A"))
	assert.NotEqual(t, StockDedupKey("pay-1", 0, "A"), StockDedupKey("pay-1", 1, "A"))
	assert.Equal(t, "lock:warehouse", LockKey("warehouse"))
}

func TestDeduper(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()
	d := NewDeduper(rdb, time.Hour)

	seen, err := d.Seen(ctx, "dedup:stock:p:A")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := d.Mark(ctx, "dedup:stock:p:A")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Mark(ctx, "dedup:stock:p:A")
	require.NoError(t, err)
	assert.False(t, again)

	seen, err = d.Seen(ctx, "dedup:stock:p:A")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("dedup:stock:p:A"))
}

func TestLock(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()
	a := NewLock(rdb, "warehouse", time.Minute)
	b := NewLock(rdb, "warehouse", time.Minute)

	release, err := a.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = b.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("lock:warehouse"))

	releaseB, err := b.TryAcquire(ctx)
	require.NoError(t, err)
	// a stale release must not drop b's lock
	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("lock:warehouse"))
	require.NoError(t, releaseB(ctx))
}

func TestLock_Expires(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()
	l := NewLock(rdb, "refresh", time.Second)

	_, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = l.TryAcquire(ctx)
	assert.NoError(t, err)
}
