package cart

import (
	"context"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webshopx/fulfillment/internal/cache"
	"github.com/webshopx/fulfillment/internal/config"
	"github.com/webshopx/fulfillment/internal/orders"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*miniredis.Miniredis, *Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := cache.NewStore(cache.NewRedisBackend(rdb), config.CacheConfig{RetryAttempts: 1}, nil)
	return mr, NewService(store, nil)
}

func fakeItem(qty int) Item {
	return Item{
		ProductID:   gofakeit.UUID(),
		ProductName: gofakeit.ProductName(),
		Quantity:    qty,
		Price:       gofakeit.IntRange(100, 10000),
	}
}

func TestCart_AddMergesByProduct(t *testing.T) {
	mr, s := newTestService(t)
	ctx := context.Background()
	a, b := fakeItem(1), fakeItem(2)

	_, err := s.Add(ctx, "s1", a)
	require.NoError(t, err)
	_, err = s.Add(ctx, "s1", b)
	require.NoError(t, err)
	items, err := s.Add(ctx, "s1", Item{ProductID: a.ProductID, Quantity: 3})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, a.ProductID, items[0].ProductID, "insertion order kept")
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, a.ProductName, items[0].ProductName)
	assert.Equal(t, items, s.Get(ctx, "s1"))
	assert.Equal(t, 60*time.Minute, mr.TTL("cart:s1"))
}

func TestCart_AddZeroQuantityToExistingSkipsWrite(t *testing.T) {
	mr, s := newTestService(t)
	ctx := context.Background()
	a := fakeItem(1)
	_, err := s.Add(ctx, "s1", a)
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	_, err = s.Add(ctx, "s1", Item{ProductID: a.ProductID})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, mr.TTL("cart:s1"), "ttl not refreshed when nothing changed")
}

func TestCart_Remove(t *testing.T) {
	_, s := newTestService(t)
	ctx := context.Background()
	a, b := fakeItem(1), fakeItem(1)
	_, _ = s.Add(ctx, "s1", a)
	_, _ = s.Add(ctx, "s1", b)

	items, err := s.Remove(ctx, "s1", a.ProductID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, b.ProductID, items[0].ProductID)

	items, err = s.Remove(ctx, "s1", "not-there")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCart_GetMissingOrCorrupt(t *testing.T) {
	mr, s := newTestService(t)
	ctx := context.Background()

	assert.Empty(t, s.Get(ctx, "nobody"))
	assert.NotNil(t, s.Get(ctx, "nobody"))

	require.NoError(t, mr.Set("cart:bad", "{oops"))
	assert.Empty(t, s.Get(ctx, "bad"))
}

func TestCart_Clear(t *testing.T) {
	mr, s := newTestService(t)
	ctx := context.Background()
	_, _ = s.Add(ctx, "s1", fakeItem(1))

	require.NoError(t, s.Clear(ctx, "s1"))
	assert.False(t, mr.Exists("cart:s1"))
}

func TestCart_Validation(t *testing.T) {
	_, s := newTestService(t)
	ctx := context.Background()
	var ve *orders.ValidationError

	_, err := s.Add(ctx, "", fakeItem(1))
	assert.True(t, errors.As(err, &ve))

	_, err = s.Add(ctx, "s1", Item{Quantity: 1})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "productId", ve.Field)

	_, err = s.Add(ctx, "s1", Item{ProductID: "A", Quantity: -1})
	assert.True(t, errors.As(err, &ve))

	assert.True(t, errors.As(s.Clear(ctx, " "), &ve))
}
