package hsm

// State is a node in the machine's tree.
// A state is owned by its parent and never outlives it.
type State struct {
	name        string
	path        string
	parent      *State
	children    []*State
	transitions map[string]*State
	callback    Callback

	// data is transient scratch space, cleared on every transition.
	data map[string]any
}

// Name returns the local identifier of the state.
func (s *State) Name() string { return s.name }

// Path returns the hierarchical path, which is unique within the machine.
func (s *State) Path() string { return s.path }

// Parent returns the owning state, or nil for the synthetic root.
func (s *State) Parent() *State { return s.parent }

// Children returns the direct children in declaration order.
func (s *State) Children() []*State { return s.children }

// IsRoot reports whether s is the synthetic root.
func (s *State) IsRoot() bool { return s.parent == nil }

// Triggers returns the triggers declared locally on s.
func (s *State) Triggers() []string {
	out := make([]string, 0, len(s.transitions))
	for t := range s.transitions {
		out = append(out, t)
	}
	return out
}

// Set stashes a transient value on the state. It is dropped on the next transition.
func (s *State) Set(key string, value any) {
	if s.data == nil {
		s.data = make(map[string]any)
	}
	s.data[key] = value
}

// Get reads a transient value stashed with Set.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// lookup resolves a trigger locally, then on each ancestor.
func (s *State) lookup(trigger string) (*State, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if dest, ok := cur.transitions[trigger]; ok {
			return dest, true
		}
	}
	return nil, false
}
