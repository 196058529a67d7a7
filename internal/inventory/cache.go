package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuantityCache is a read-through Redis cache for ledger quantities.
// Concurrent misses for the same pair are collapsed via singleflight.
// Invalidation happens after commit, never inside the mutation itself.
type QuantityCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewQuantityCache instantiates the cache helper.
func NewQuantityCache(client *redis.Client, ttl time.Duration) *QuantityCache {
	return &QuantityCache{client: client, ttl: ttl}
}

func quantityKey(warehouseID, productID int64) string {
	return fmt.Sprintf("stock:qty:%d:%d", warehouseID, productID)
}

// Get loads a cached quantity or populates it using the loader. Loader
// errors (including ErrLedgerEntryNotFound) are never cached.
func (c *QuantityCache) Get(ctx context.Context, warehouseID, productID int64, loader func(context.Context) (int64, error)) (int64, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := quantityKey(warehouseID, productID)
	if qty, err := c.client.Get(ctx, key).Int64(); err == nil {
		return qty, nil
	} else if err != redis.Nil {
		return 0, err
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		qty, err := loader(ctx)
		if err != nil {
			return int64(0), err
		}
		if err := c.client.Set(ctx, key, strconv.FormatInt(qty, 10), c.ttl).Err(); err != nil {
			return int64(0), err
		}
		return qty, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int64), nil
}

// Invalidate drops the cached quantity for a pair.
func (c *QuantityCache) Invalidate(ctx context.Context, warehouseID, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, quantityKey(warehouseID, productID)).Err()
}
