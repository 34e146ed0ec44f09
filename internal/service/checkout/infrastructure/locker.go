// internal/service/checkout/infrastructure/locker.go
package infrastructure

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"bazaar/internal/pkg/zookeeper"
)

// MutexReferenceLocker 是 ReferenceLocker 的进程内实现。
// 单实例部署时够用：同一 reference 的对账在本进程内串行。
type MutexReferenceLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func NewMutexReferenceLocker() *MutexReferenceLocker {
	return &MutexReferenceLocker{locks: make(map[string]*refLock)}
}

func (l *MutexReferenceLocker) Acquire(_ context.Context, reference string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[reference]
	if !ok {
		entry = &refLock{}
		l.locks[reference] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, reference)
		}
		l.mu.Unlock()
	}, nil
}

// ZkReferenceLocker 是 ReferenceLocker 的 ZooKeeper 实现。
// 多实例部署时把同一 reference 的对账跨实例串行化，
// 挡住网关 webhook 重试风暴触发的并发恢复。
type ZkReferenceLocker struct {
	conn *zookeeper.Conn
}

func NewZkReferenceLocker(conn *zookeeper.Conn) *ZkReferenceLocker {
	return &ZkReferenceLocker{conn: conn}
}

func (l *ZkReferenceLocker) Acquire(ctx context.Context, reference string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create reference lock")
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to lock reference %s", reference)
	}
	return func() { _ = lock.Unlock() }, nil
}
