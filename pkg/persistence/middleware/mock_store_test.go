package middleware_test

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/marketgate/pkg/domain"
	"github.com/aretw0/marketgate/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware. It counts
// backend reads so tests can prove whether a load was served from cache.
type MockStore struct {
	data  map[string]*domain.Portfolio
	loads atomic.Int64
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Portfolio),
	}
}

func (s *MockStore) Save(ctx context.Context, key string, p *domain.Portfolio) error {
	s.data[key] = p
	return nil
}

func (s *MockStore) Load(ctx context.Context, key string) (*domain.Portfolio, error) {
	s.loads.Add(1)
	p, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return p, nil
}

func (s *MockStore) Delete(ctx context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *MockStore) Loads() int64 {
	return s.loads.Load()
}

var _ ports.SnapshotStore = (*MockStore)(nil)
