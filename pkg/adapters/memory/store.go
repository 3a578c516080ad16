// Package memory provides in-process implementations of the storage ports.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Checkpoint),
	}
}

// Save stores a copy of cp.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	copied := clone(cp)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cp.RunID] = copied
	return nil
}

// Load returns a copy so callers cannot mutate the stored checkpoint.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return clone(cp), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func clone(cp *domain.Checkpoint) *domain.Checkpoint {
	c := *cp
	c.History = append([]string(nil), cp.History...)
	return &c
}
