package hsm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
)

// Machine drives a tree of states built from a Definition.
// It is not safe for concurrent use; a single orchestrating goroutine owns it.
type Machine struct {
	def     Definition
	root    *State
	index   map[string]*State
	current *State
	history *History

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	runID  string
}

// Option configures a Machine.
type Option func(*machineConfig)

type machineConfig struct {
	callbacks map[string]Callback
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	runID     string
}

// WithCallbacks registers callbacks keyed by hierarchical path.
func WithCallbacks(callbacks map[string]Callback) Option {
	return func(c *machineConfig) {
		for path, cb := range callbacks {
			c.callbacks[path] = cb
		}
	}
}

// WithCallback registers a single callback for path.
func WithCallback(path string, cb Callback) Option {
	return func(c *machineConfig) {
		c.callbacks[path] = cb
	}
}

// WithLifecycleHooks registers observability hooks fired on enter and exit.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *machineConfig) {
		c.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *machineConfig) {
		c.logger = logger
	}
}

// WithRunID tags emitted events with a correlation ID.
func WithRunID(id string) Option {
	return func(c *machineConfig) {
		c.runID = id
	}
}

// New validates def, builds the state tree and positions the machine on the
// initial state. Callbacks are resolved once here; states without one get NopCallback.
// Registering a callback for a path that does not exist is a DefinitionError.
func New(def Definition, opts ...Option) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	cfg := &machineConfig{
		callbacks: make(map[string]Callback),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Machine{
		def:     def,
		index:   make(map[string]*State),
		history: newHistory(),
		hooks:   cfg.hooks,
		logger:  cfg.logger,
		runID:   cfg.runID,
	}

	m.root = &State{name: Root, path: Root, transitions: make(map[string]*State), callback: NopCallback{}}
	m.index[Root] = m.root

	var build func(parent *State, specs []StateSpec)
	build = func(parent *State, specs []StateSpec) {
		for _, spec := range specs {
			s := &State{
				name:        spec.Name,
				path:        JoinPath(parent.path, spec.Name),
				parent:      parent,
				transitions: make(map[string]*State),
				callback:    NopCallback{},
			}
			if cb, ok := cfg.callbacks[s.path]; ok && cb != nil {
				s.callback = cb
			}
			parent.children = append(parent.children, s)
			m.index[s.path] = s
			build(s, spec.Children)
		}
	}
	build(m.root, def.States)

	for path := range cfg.callbacks {
		if _, ok := m.index[path]; !ok {
			return nil, &DefinitionError{Definition: def.Name, Reason: fmt.Sprintf("callback registered for unknown state %q", path)}
		}
	}

	for _, e := range def.Edges {
		dest := m.index[e.Dest]
		for _, src := range e.Sources {
			m.index[src].transitions[e.Trigger] = dest
		}
	}

	m.current = m.index[def.Initial]
	return m, nil
}

// Name returns the definition name.
func (m *Machine) Name() string { return m.def.Name }

// Definition returns the definition the machine was built from.
func (m *Machine) Definition() Definition { return m.def }

// Current returns the active state.
func (m *Machine) Current() *State { return m.current }

// History returns the append-only transition log.
func (m *Machine) History() *History { return m.history }

// Lookup finds a state by hierarchical path.
func (m *Machine) Lookup(path string) (*State, bool) {
	s, ok := m.index[path]
	return s, ok
}

// Can reports whether trigger resolves from the current state.
func (m *Machine) Can(trigger string) bool {
	_, ok := m.current.lookup(trigger)
	return ok
}

// Available lists every trigger resolvable from the current state, sorted.
func (m *Machine) Available() []string {
	seen := make(map[string]bool)
	for cur := m.current; cur != nil; cur = cur.parent {
		for t := range cur.transitions {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Transition moves the machine along trigger.
//
// In order: the current state's OnExit runs with vars, the current state is
// appended to history, the machine advances, then the new state's OnEnter runs
// with the same vars. An unresolved trigger returns a *TransitionError and
// leaves the machine where it was.
func (m *Machine) Transition(ctx context.Context, trigger string, vars Vars) (*State, error) {
	from := m.current
	dest, ok := from.lookup(trigger)
	if !ok {
		return nil, &TransitionError{
			Machine:   m.def.Name,
			Path:      from.path,
			Trigger:   trigger,
			Available: m.Available(),
		}
	}

	from.callback.OnExit(ctx, from, vars)
	if m.hooks.OnStateExit != nil {
		m.hooks.OnStateExit(ctx, m.event(ctx, domain.EventStateExit, from.path, trigger))
	}

	m.history.record(from.path, trigger, vars)
	from.data = nil

	m.current = dest
	dest.data = nil

	m.logger.Debug("transition", "machine", m.def.Name, "from", from.path, "trigger", trigger, "to", dest.path)

	dest.callback.OnEnter(ctx, dest, vars)
	if m.hooks.OnStateEnter != nil {
		m.hooks.OnStateEnter(ctx, m.event(ctx, domain.EventStateEnter, dest.path, trigger))
	}

	return dest, nil
}

// Reset positions the machine on path without running callbacks and clears
// the history. It is used when restoring a machine from a checkpoint.
func (m *Machine) Reset(path string) error {
	s, ok := m.index[path]
	if !ok || s.IsRoot() {
		return &DefinitionError{Definition: m.def.Name, Reason: fmt.Sprintf("cannot reset to unknown state %q", path)}
	}
	m.current.data = nil
	m.current = s
	m.history.reset()
	return nil
}

// event tags with the machine's run ID, or the one carried by ctx.
func (m *Machine) event(ctx context.Context, t domain.EventType, path, trigger string) *domain.StateEvent {
	runID := m.runID
	if runID == "" {
		runID, _ = domain.RunIDFromContext(ctx)
	}
	return &domain.StateEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t, RunID: runID},
		Path:      path,
		Trigger:   trigger,
	}
}
