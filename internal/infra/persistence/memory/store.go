// Package memory implements the publication ledger in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"foodpantry/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps publications in a slice guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	pubs []ledger.Publication
	ids  map[string]struct{}
}

// NewStore returns an empty ledger.
func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Record appends p.
func (s *Store) Record(_ context.Context, p ledger.Publication) error {
	if err := ledger.Validate(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[p.ID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicate, p.ID)
	}
	s.ids[p.ID] = struct{}{}
	s.pubs = append(s.pubs, p)
	return nil
}

// List returns matching publications, newest first.
func (s *Store) List(_ context.Context, f ledger.Filter) ([]ledger.Publication, error) {
	f = ledger.NormalizeFilter(f)
	s.mu.RLock()
	out := make([]ledger.Publication, 0, len(s.pubs))
	for _, p := range s.pubs {
		if f.State == "" || p.State == f.State {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	ledger.Sort(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
