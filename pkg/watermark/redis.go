package watermark

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
)

// member is the single sorted-set member every tenant key carries; the
// score is the watermark. ZADD ... GT on a one-member sorted set turns
// "max(current, v)" into a single atomic Redis command instead of a
// GET-then-SET round trip.
const member = "wm"

func keyFor(tenant string) string { return "watermark:{" + tenant + "}" }

// RedisStore is the production watermark store, for deployments where
// more than one process serves the same tenants.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Current(ctx context.Context, tenant string) (int64, error) {
	score, err := s.client.ZScore(ctx, keyFor(tenant), member).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		logx.WithContext(ctx).Errorf("watermark: redis ZSCORE failed: %v", err)
		return 0, err
	}
	return int64(score), nil
}

func (s *RedisStore) AdvanceAtLeast(ctx context.Context, tenant string, ms int64) (int64, error) {
	key := keyFor(tenant)
	_, err := s.client.ZAddArgs(ctx, key, redis.ZAddArgs{
		GT: true,
		Members: []redis.Z{
			{Score: float64(ms), Member: member},
		},
	}).Result()
	if err != nil {
		logx.WithContext(ctx).Errorf("watermark: redis ZADD GT failed: %v", err)
		return 0, err
	}

	score, err := s.client.ZScore(ctx, key, member).Result()
	if err != nil {
		logx.WithContext(ctx).Errorf("watermark: redis ZSCORE after advance failed: %v", err)
		return 0, err
	}
	return int64(score), nil
}
