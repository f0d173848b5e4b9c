package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-catalog/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderCache is a read-through cache of order details. Entries are keyed by
// the order's write generation: a writer bumps the generation after commit,
// so a reader that loaded pre-commit data can only store it under a
// generation nobody reads again. Postgres stays the source of truth and any
// Redis failure degrades to a miss.
type OrderCache struct {
	rdb redis.Cmdable
	log *zap.Logger
}

func NewOrderCache(rdb redis.Cmdable, log *zap.Logger) *OrderCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderCache{rdb: rdb, log: log}
}

// Get returns the cached detail and the generation it was looked up at. A
// negative generation means Redis is unusable and Set must be skipped.
func (c *OrderCache) Get(ctx context.Context, id int64) (orders.OrderDetail, int64, bool) {
	var d orders.OrderDetail
	ver, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderVersion, id)).Int64()
	if errors.Is(err, redis.Nil) {
		ver, err = 0, nil
	}
	if err != nil {
		c.log.Warn("order cache version", zap.Int64("order_id", id), zap.Error(err))
		return d, -1, false
	}

	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderDetail, id, ver)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("order cache get", zap.Int64("order_id", id), zap.Error(err))
		}
		return d, ver, false
	}
	if err := json.Unmarshal(b, &d); err != nil {
		c.log.Warn("order cache decode", zap.Int64("order_id", id), zap.Error(err))
		return d, ver, false
	}
	if d.Products == nil {
		d.Products = []orders.Product{}
	}
	return d, ver, true
}

func (c *OrderCache) Set(ctx context.Context, d orders.OrderDetail, ver int64) {
	if ver < 0 {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyOrderDetail, d.ID, ver), b, TTLOrderDetail).Err(); err != nil {
		c.log.Warn("order cache set", zap.Int64("order_id", d.ID), zap.Error(err))
	}
}

// Invalidate moves the order to a new generation. Call it only after the
// write committed.
func (c *OrderCache) Invalidate(ctx context.Context, id int64) {
	key := fmt.Sprintf(KeyOrderVersion, id)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, key)
		p.Expire(ctx, key, TTLOrderVersion)
		return nil
	})
	if err != nil {
		c.log.Error("order cache invalidate", zap.Int64("order_id", id), zap.Error(err))
	}
}
