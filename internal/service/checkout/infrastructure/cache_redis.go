// internal/service/checkout/infrastructure/cache_redis.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	pkgredis "bazaar/internal/pkg/redis"
	"bazaar/internal/service/checkout/domain"
)

const snapshotKeyPrefix = "checkout:snapshot:"

// RedisSnapshotCache 是 SnapshotCache 的 Redis 实现，多实例部署时使用，
// 保证"先支付后建单"的恢复路径在任意实例上都能拿到快照。
type RedisSnapshotCache struct {
	client *pkgredis.Client
}

func NewRedisSnapshotCache(client *pkgredis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	data, err := c.client.GetClient().Get(ctx, snapshotKeyPrefix+userID).Bytes()
	if err != nil {
		if pkgerrors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to read snapshot from redis")
	}
	var snap domain.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 坏数据当未命中处理，调用方会回退到实时购物车
		return nil, nil
	}
	return &snap, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, userID string, snap *domain.CartSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal snapshot")
	}
	err = c.client.GetClient().Set(ctx, snapshotKeyPrefix+userID, data, ttl).Err()
	return pkgerrors.Wrap(err, "failed to write snapshot to redis")
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, userID string) error {
	err := c.client.GetClient().Del(ctx, snapshotKeyPrefix+userID).Err()
	return pkgerrors.Wrap(err, "failed to invalidate snapshot")
}
