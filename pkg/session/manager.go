package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates checkpoint access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
// Manager itself satisfies ports.CheckpointStore.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the default distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Load retrieves a checkpoint.
func (m *Manager) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := m.WithLock(ctx, runKey(runID), func(ctx context.Context) error {
		var err error
		cp, err = m.store.Load(ctx, runID)
		return err
	})
	return cp, err
}

// LoadOrStart loads a checkpoint, creating and persisting an active one if
// the run does not exist yet.
func (m *Manager) LoadOrStart(ctx context.Context, runID, worker, task string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := m.WithLock(ctx, runKey(runID), func(ctx context.Context) error {
		var err error
		cp, err = m.store.Load(ctx, runID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRunNotFound) {
			return fmt.Errorf("failed to check run existence: %w", err)
		}

		cp = domain.NewCheckpoint(runID, worker, task)
		if err := m.store.Save(ctx, cp); err != nil {
			return fmt.Errorf("failed to initialize run: %w", err)
		}
		return nil
	})
	return cp, err
}

// Save persists a checkpoint.
func (m *Manager) Save(ctx context.Context, cp *domain.Checkpoint) error {
	return m.WithLock(ctx, runKey(cp.RunID), func(ctx context.Context) error {
		return m.store.Save(ctx, cp)
	})
}

// Delete removes a checkpoint.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	return m.WithLock(ctx, runKey(runID), func(ctx context.Context) error {
		return m.store.Delete(ctx, runID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// WithLock runs fn while holding the lock for key, using the default TTL.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	return m.WithLockTTL(ctx, key, m.lockTTL, fn)
}

// WithLockTTL runs fn while holding the lock for key. The distributed lock,
// if any, expires after ttl should this process die while holding it.
func (m *Manager) WithLockTTL(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The run may have been canceled; release on a live context.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func runKey(runID string) string {
	return "run:" + runID
}
