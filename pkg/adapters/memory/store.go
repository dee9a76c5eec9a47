// Package memory provides the in-memory SnapshotStore used when no Redis
// backend is configured.
package memory

import (
	"context"
	"sync"

	"github.com/aretw0/marketgate/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.Portfolio
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Portfolio),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, key string, p *domain.Portfolio) error {
	copied := clone(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = copied
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, key string) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}

	// Copy on read so callers can't mutate stored state through the pointer.
	return clone(p), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func clone(p *domain.Portfolio) *domain.Portfolio {
	out := *p
	out.Balances = make(map[string]float64, len(p.Balances))
	for k, v := range p.Balances {
		out.Balances[k] = v
	}
	return &out
}
