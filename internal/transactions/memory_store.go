package transactions

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Transaction
	byUser map[string][]*Transaction // newest last
	order  []*Transaction            // insertion order, newest last
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Transaction),
		byUser: make(map[string][]*Transaction),
	}
}

func (s *MemoryStore) Save(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[tx.ID]; exists {
		return ErrDuplicate
	}

	cp := *tx
	s.byID[cp.ID] = &cp
	s.byUser[cp.UserID] = append(s.byUser[cp.UserID], &cp)
	s.order = append(s.order, &cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byUser[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	// Newest first
	result := make([]*Transaction, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, offset, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source := s.order
	if userID != "" {
		source = s.byUser[userID]
	}

	result := make([]*Transaction, 0, limit)
	skipped := 0
	for i := len(source) - 1; i >= 0; i-- {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *source[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	var scoreSum float64
	for _, tx := range s.byID {
		stats.TotalTransactions++
		stats.TotalAmount += tx.Amount
		scoreSum += tx.RiskScore
		if tx.IsFraud {
			stats.FraudCount++
		}
		if tx.RiskScore >= 70 {
			stats.HighRiskCount++
		}
	}
	if stats.TotalTransactions > 0 {
		stats.AvgRiskScore = scoreSum / float64(stats.TotalTransactions)
	}
	return stats, nil
}
