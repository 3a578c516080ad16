package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/tot"
)

// Worker is a named task handler that keeps its memory across tasks.
type Worker interface {
	Name() string
	Description() string
	Info() domain.WorkerInfo
	Run(ctx context.Context, task string) (*tot.Result, error)
	Close() error
}

// Registry holds the workers of a process.
// Construct one and share it; registrations are append-only.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
	order   []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register adds a worker. A taken name returns ErrDuplicateWorker.
func (r *Registry) Register(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := w.Name()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateWorker, name)
	}
	r.workers[name] = w
	r.order = append(r.order, name)
	return nil
}

// Get looks up a worker by name.
func (r *Registry) Get(name string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Lookup is like Get but returns ErrUnknownWorker for a missing name.
func (r *Registry) Lookup(name string) (Worker, error) {
	w, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownWorker, name)
	}
	return w, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List describes every worker in registration order.
func (r *Registry) List() []domain.WorkerInfo {
	r.mu.RLock()
	workers := make([]Worker, 0, len(r.order))
	for _, name := range r.order {
		workers = append(workers, r.workers[name])
	}
	r.mu.RUnlock()

	out := make([]domain.WorkerInfo, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Info())
	}
	return out
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Close closes every worker.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.order {
		if err := r.workers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
