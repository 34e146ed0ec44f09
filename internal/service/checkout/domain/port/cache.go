// internal/service/checkout/domain/port/cache.go
package port

import (
	"context"
	"time"

	"bazaar/internal/service/checkout/domain"
)

// SnapshotCache 是购物车定价快照的短 TTL 缓存端口。
// 用于吸收结算按钮的连击；超过 TTL 的陈旧是可接受的，
// 因为下单事务在提交时无论如何都会重新校验库存。
// 作为显式依赖注入，多实例部署时可替换为分布式实现。
type SnapshotCache interface {
	// Get 返回缓存的快照；未命中返回 (nil, nil)。
	Get(ctx context.Context, userID string) (*domain.CartSnapshot, error)

	Set(ctx context.Context, userID string, snap *domain.CartSnapshot, ttl time.Duration) error

	// Invalidate 在购物车被清空等事件上按用户键失效。
	Invalidate(ctx context.Context, userID string) error
}

// ReferenceLocker 在支付对账期间按 reference 串行化处理，
// 防止网关重试风暴在多个实例上同时触发"先支付后建单"的恢复路径。
type ReferenceLocker interface {
	// Acquire 获取 reference 上的锁，返回释放函数。
	Acquire(ctx context.Context, reference string) (release func(), err error)
}
