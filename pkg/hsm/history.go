package hsm

import "maps"

// Snapshot records one transition: the state that was left, the trigger that
// moved the machine and the variables active at that moment.
type Snapshot struct {
	Seq     int
	Path    string
	Trigger string
	Vars    Vars
}

// History is an append-only log of visited states.
// Paths are interned once in an arena; entries refer to them by index so
// recording a transition never copies the state tree.
type History struct {
	arena   []string
	ids     map[string]int
	entries []entry
}

type entry struct {
	pathID  int
	trigger string
	vars    Vars
}

func newHistory() *History {
	return &History{ids: make(map[string]int)}
}

func (h *History) intern(path string) int {
	if id, ok := h.ids[path]; ok {
		return id
	}
	id := len(h.arena)
	h.arena = append(h.arena, path)
	h.ids[path] = id
	return id
}

func (h *History) record(path, trigger string, vars Vars) {
	h.entries = append(h.entries, entry{
		pathID:  h.intern(path),
		trigger: trigger,
		vars:    maps.Clone(vars),
	})
}

// Len returns the number of recorded transitions.
func (h *History) Len() int { return len(h.entries) }

// Paths returns the visited state paths, oldest first.
func (h *History) Paths() []string {
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = h.arena[e.pathID]
	}
	return out
}

// Snapshots returns the versioned transition log, oldest first.
func (h *History) Snapshots() []Snapshot {
	out := make([]Snapshot, len(h.entries))
	for i, e := range h.entries {
		out[i] = Snapshot{
			Seq:     i + 1,
			Path:    h.arena[e.pathID],
			Trigger: e.trigger,
			Vars:    e.vars,
		}
	}
	return out
}

// Visited reports whether path appears anywhere in the history.
func (h *History) Visited(path string) bool {
	id, ok := h.ids[path]
	if !ok {
		return false
	}
	for _, e := range h.entries {
		if e.pathID == id {
			return true
		}
	}
	return false
}

func (h *History) reset() {
	h.entries = nil
}
