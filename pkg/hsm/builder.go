package hsm

// Builder assembles a Definition fluently.
type Builder struct {
	def Definition
}

// Define starts a new definition named name.
func Define(name string) *Builder {
	return &Builder{def: Definition{Name: name}}
}

// Initial sets the initial state path.
func (b *Builder) Initial(path string) *Builder {
	b.def.Initial = path
	return b
}

// States declares leaf states directly under the root.
func (b *Builder) States(names ...string) *Builder {
	for _, n := range names {
		b.def.States = append(b.def.States, StateSpec{Name: n})
	}
	return b
}

// Group declares a parent state under the root with the given children.
func (b *Builder) Group(name string, children ...StateSpec) *Builder {
	b.def.States = append(b.def.States, StateSpec{Name: name, Children: children})
	return b
}

// Leaf is a convenience for a childless StateSpec.
func Leaf(name string) StateSpec {
	return StateSpec{Name: name}
}

// Node is a convenience for a StateSpec with children.
func Node(name string, children ...StateSpec) StateSpec {
	return StateSpec{Name: name, Children: children}
}

// On starts an edge for trigger.
func (b *Builder) On(trigger string) *EdgeBuilder {
	return &EdgeBuilder{builder: b, edge: Edge{Trigger: trigger}}
}

// Build validates and returns the definition.
func (b *Builder) Build() (Definition, error) {
	if err := b.def.Validate(); err != nil {
		return Definition{}, err
	}
	return b.def, nil
}

// MustBuild is like Build but panics on an invalid definition.
// It is intended for package-level definitions that are fixed at compile time.
func (b *Builder) MustBuild() Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// EdgeBuilder collects the sources and destination of one edge.
type EdgeBuilder struct {
	builder *Builder
	edge    Edge
}

// From sets the source paths. Use Root to make the edge inherited everywhere.
func (e *EdgeBuilder) From(sources ...string) *EdgeBuilder {
	e.edge.Sources = append(e.edge.Sources, sources...)
	return e
}

// To sets the destination and returns the parent builder.
func (e *EdgeBuilder) To(dest string) *Builder {
	e.edge.Dest = dest
	e.builder.def.Edges = append(e.builder.def.Edges, e.edge)
	return e.builder
}
