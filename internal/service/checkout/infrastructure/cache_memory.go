// internal/service/checkout/infrastructure/cache_memory.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"bazaar/internal/service/checkout/domain"
)

// MemorySnapshotCache 是 SnapshotCache 的进程内实现，适用于单实例部署。
// 过期条目在读取时惰性剔除，后台 sweep 兜底防止无界增长。
type MemorySnapshotCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	snap   *domain.CartSnapshot
	expiry time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	c := &MemorySnapshotCache{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *MemorySnapshotCache) Get(_ context.Context, userID string) (*domain.CartSnapshot, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiry) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, nil
	}
	return entry.snap, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, userID string, snap *domain.CartSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[userID] = memoryEntry{snap: snap, expiry: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

func (c *MemorySnapshotCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemorySnapshotCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
