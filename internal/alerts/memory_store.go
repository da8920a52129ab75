package alerts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Alert
	order []*Alert // insertion order, newest last
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Alert)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.byID[cp.ID] = &cp
	s.order = append(s.order, &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, status string, offset, limit int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Alert, 0, limit)
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.order[i]
		if status != "" && a.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[a.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = a.Status
	existing.ReviewedAt = a.ReviewedAt
	return nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, a := range s.byID {
		counts[a.Status]++
	}
	return counts, nil
}
