package hsm

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Root is the name of the synthetic root state.
// Edges sourced at Root are inherited by every state in the machine.
const Root = "root"

// PathSeparator joins a parent's path to a child's name.
const PathSeparator = "_"

// StateSpec declares a state and its children.
type StateSpec struct {
	Name     string      `yaml:"name" json:"name"`
	Children []StateSpec `yaml:"children,omitempty" json:"children,omitempty"`
}

// Edge declares that Trigger moves any of Sources to Dest.
// Sources and Dest are hierarchical paths.
type Edge struct {
	Trigger string   `yaml:"trigger" json:"trigger"`
	Sources []string `yaml:"sources" json:"sources"`
	Dest    string   `yaml:"dest" json:"dest"`
}

// Definition is the declarative description of a machine.
type Definition struct {
	Name    string      `yaml:"name" json:"name"`
	Initial string      `yaml:"initial" json:"initial"`
	States  []StateSpec `yaml:"states" json:"states"`
	Edges   []Edge      `yaml:"edges" json:"edges"`
}

// DefinitionError reports an inconsistent definition.
type DefinitionError struct {
	Definition string
	Reason     string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid definition %q: %s", e.Definition, e.Reason)
}

// ParseDefinition decodes a YAML definition and validates it.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// JoinPath computes the hierarchical path of a child named name under parentPath.
// The synthetic root is elided.
func JoinPath(parentPath, name string) string {
	if parentPath == "" || parentPath == Root {
		return name
	}
	return parentPath + PathSeparator + name
}

// Paths returns every state path in depth-first declaration order.
func (d Definition) Paths() []string {
	var paths []string
	var walk func(parent string, specs []StateSpec)
	walk = func(parent string, specs []StateSpec) {
		for _, s := range specs {
			p := JoinPath(parent, s.Name)
			paths = append(paths, p)
			walk(p, s.Children)
		}
	}
	walk(Root, d.States)
	return paths
}

// Validate checks names, sibling uniqueness and that every edge endpoint exists.
func (d Definition) Validate() error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Definition: d.Name, Reason: fmt.Sprintf(format, args...)}
	}

	known := map[string]bool{Root: true}
	var walk func(parent string, specs []StateSpec) error
	walk = func(parent string, specs []StateSpec) error {
		siblings := make(map[string]bool, len(specs))
		for _, s := range specs {
			if s.Name == "" {
				return fail("state under %q has an empty name", parent)
			}
			if s.Name == Root || strings.Contains(s.Name, PathSeparator) {
				return fail("state name %q is reserved or contains %q", s.Name, PathSeparator)
			}
			if siblings[s.Name] {
				return fail("duplicate state %q under %q", s.Name, parent)
			}
			siblings[s.Name] = true

			p := JoinPath(parent, s.Name)
			known[p] = true
			if err := walk(p, s.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(Root, d.States); err != nil {
		return err
	}

	if len(d.States) == 0 {
		return fail("no states declared")
	}
	if d.Initial == "" {
		return fail("initial state is required")
	}
	if !known[d.Initial] || d.Initial == Root {
		return fail("initial state %q does not exist", d.Initial)
	}

	seen := make(map[[2]string]bool)
	for _, e := range d.Edges {
		if e.Trigger == "" {
			return fail("edge to %q has an empty trigger", e.Dest)
		}
		if !known[e.Dest] || e.Dest == Root {
			return fail("edge %q targets unknown state %q", e.Trigger, e.Dest)
		}
		if len(e.Sources) == 0 {
			return fail("edge %q has no sources", e.Trigger)
		}
		for _, src := range e.Sources {
			if !known[src] {
				return fail("edge %q has unknown source %q", e.Trigger, src)
			}
			key := [2]string{src, e.Trigger}
			if seen[key] {
				return fail("trigger %q is declared twice on %q", e.Trigger, src)
			}
			seen[key] = true
		}
	}
	return nil
}
