package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
)

// Store resolves templates by state path.
type Store interface {
	// Get returns the template for path, or an error wrapping
	// domain.ErrTemplateNotFound.
	Get(ctx context.Context, path string) (Template, error)
	// List returns every path the store can resolve, sorted.
	List(ctx context.Context) ([]string, error)
}

// NotFound builds the error a Store returns for an absent path.
func NotFound(path string) error {
	return fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, path)
}

// MemoryStore keeps templates in a map.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewMemoryStore creates a store holding templates.
func NewMemoryStore(templates ...Template) *MemoryStore {
	s := &MemoryStore{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		s.templates[t.Path] = t
	}
	return s
}

// Put adds or replaces a template.
func (s *MemoryStore) Put(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Path] = t
}

func (s *MemoryStore) Get(_ context.Context, path string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[path]
	if !ok {
		return Template{}, NotFound(path)
	}
	return t, nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.templates))
	for p := range s.templates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Layered consults stores in order and returns the first template found.
type Layered []Store

func (l Layered) Get(ctx context.Context, path string) (Template, error) {
	for _, s := range l {
		t, err := s.Get(ctx, path)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, domain.ErrTemplateNotFound) {
			return Template{}, err
		}
	}
	return Template{}, NotFound(path)
}

func (l Layered) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, s := range l {
		paths, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Require checks that store resolves every path. It is meant for startup,
// so a missing template fails fast instead of mid-run.
func Require(ctx context.Context, store Store, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := store.Get(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
