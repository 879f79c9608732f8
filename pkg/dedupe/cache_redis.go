package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFastCache is the best-effort fast path in front of the durable
// dedupe store: a SETNX-with-TTL key per dedupe tuple.
type RedisFastCache struct {
	client *redis.Client
}

func NewRedisFastCache(client *redis.Client) *RedisFastCache {
	return &RedisFastCache{client: client}
}

func cacheRedisKey(key string) string { return "dedupe:seen:" + key }

// CheckAndSet uses SETNX (write-if-absent) with the same TTL the durable
// row carries, so the cache never outlives the row it shadows.
func (c *RedisFastCache) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, cacheRedisKey(key), 1, ttl).Result()
}
