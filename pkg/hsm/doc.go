/*
Package hsm implements a hierarchical state machine.

States form a tree. Each state is identified by its hierarchical path: its own name
when its parent is the synthetic root, otherwise the parent's path joined with "_".
Transitions are keyed by trigger strings local to a source state; a trigger that
misses locally is looked up on the parent, then the grandparent, up to the root.
This lets a child inherit transitions from an ancestor unless it overrides them.

Machines are built from a declarative Definition (in Go via Define, or from YAML
via ParseDefinition) plus a path-keyed map of callbacks:

	def, err := hsm.Define("router").
		Initial("AwaitTask").
		States("AwaitTask", "RouteAction", "CreateWorker", "AssignWorker").
		On("Route").From("AwaitTask").To("RouteAction").
		Build()

	m, err := hsm.New(def, hsm.WithCallback("RouteAction", cb))
	next, err := m.Transition(ctx, "Route", vars)

An unknown trigger is a structural error (*TransitionError wrapping
domain.ErrInvalidTrigger) and never a silent no-op.
*/
package hsm
