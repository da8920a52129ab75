package profile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory profile store with retention-based expiry.
// Expired profiles are hidden from Get immediately and reclaimed by
// DeleteStale, which the refresher runs on a sweep interval.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile
	retention time.Duration
}

// NewMemoryStore creates an in-memory profile store. Profiles older than
// the retention window are treated as absent.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*Profile),
		retention: retention,
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.retention > 0 && time.Since(p.LastUpdated) > s.retention {
		return nil, ErrNotFound
	}
	cp := clone(p)
	return cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = clone(p)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

func (s *MemoryStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, p := range s.profiles {
		if p.LastUpdated.Before(cutoff) {
			delete(s.profiles, userID)
			removed++
		}
	}
	return removed, nil
}

func clone(p *Profile) *Profile {
	cp := *p
	cp.Merchants = make(map[string]int, len(p.Merchants))
	for k, v := range p.Merchants {
		cp.Merchants[k] = v
	}
	cp.Locations = append([]Coordinate(nil), p.Locations...)
	return &cp
}
