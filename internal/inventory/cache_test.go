package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*QuantityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQuantityCache(client, time.Minute), mr
}

func TestQuantityCacheReadThrough(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (int64, error) {
		loads++
		return 42, nil
	}

	qty, err := cache.Get(ctx, 1, 2, loader)
	require.NoError(t, err)
	require.Equal(t, int64(42), qty)
	require.Equal(t, 1, loads)

	qty, err = cache.Get(ctx, 1, 2, loader)
	require.NoError(t, err)
	require.Equal(t, int64(42), qty)
	require.Equal(t, 1, loads)
}

func TestQuantityCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	value := int64(10)
	loader := func(ctx context.Context) (int64, error) { return value, nil }

	qty, err := cache.Get(ctx, 3, 4, loader)
	require.NoError(t, err)
	require.Equal(t, int64(10), qty)

	value = 25
	require.NoError(t, cache.Invalidate(ctx, 3, 4))

	qty, err = cache.Get(ctx, 3, 4, loader)
	require.NoError(t, err)
	require.Equal(t, int64(25), qty)
}

func TestQuantityCacheLoaderErrorNotCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := cache.Get(ctx, 5, 6, func(ctx context.Context) (int64, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	qty, err := cache.Get(ctx, 5, 6, func(ctx context.Context) (int64, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)
}

func TestQuantityCacheNilClientFallsThrough(t *testing.T) {
	var cache *QuantityCache
	qty, err := cache.Get(context.Background(), 1, 1, func(ctx context.Context) (int64, error) { return 9, nil })
	require.NoError(t, err)
	require.Equal(t, int64(9), qty)
}
