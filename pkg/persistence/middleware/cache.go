package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/ports"
)

type cacheEntry struct {
	portfolio *domain.Portfolio
	expires   time.Time
}

type cacheMiddleware struct {
	next ports.SnapshotStore
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCacheMiddleware creates a read-through cache in front of a snapshot
// store. Save writes through and refreshes the cache; Load serves cached
// entries until they age out. Useful in front of Redis when the portfolio
// endpoint and the MCP resource poll the same key.
func NewCacheMiddleware(ttl time.Duration) Middleware {
	if ttl <= 0 {
		panic("cache ttl must be positive")
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &cacheMiddleware{
			next:    next,
			ttl:     ttl,
			entries: make(map[string]cacheEntry),
		}
	}
}

func (m *cacheMiddleware) Save(ctx context.Context, key string, p *domain.Portfolio) error {
	if err := m.next.Save(ctx, key, p); err != nil {
		return err
	}
	m.store(key, p)
	return nil
}

func (m *cacheMiddleware) Load(ctx context.Context, key string) (*domain.Portfolio, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && time.Now().Before(entry.expires) {
		return clone(entry.portfolio), nil
	}

	p, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	m.store(key, p)
	return p, nil
}

func (m *cacheMiddleware) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	return m.next.Delete(ctx, key)
}

func (m *cacheMiddleware) store(key string, p *domain.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cacheEntry{
		portfolio: clone(p),
		expires:   time.Now().Add(m.ttl),
	}
}

func clone(p *domain.Portfolio) *domain.Portfolio {
	out := *p
	out.Balances = make(map[string]float64, len(p.Balances))
	for k, v := range p.Balances {
		out.Balances[k] = v
	}
	return &out
}
