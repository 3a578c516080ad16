package hsm

import "context"

// Vars is the snapshot of orchestration variables passed to callbacks.
type Vars map[string]any

// Callback is invoked when a state is entered or exited.
type Callback interface {
	OnEnter(ctx context.Context, s *State, vars Vars)
	OnExit(ctx context.Context, s *State, vars Vars)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	Enter func(ctx context.Context, s *State, vars Vars)
	Exit  func(ctx context.Context, s *State, vars Vars)
}

func (c CallbackFuncs) OnEnter(ctx context.Context, s *State, vars Vars) {
	if c.Enter != nil {
		c.Enter(ctx, s, vars)
	}
}

func (c CallbackFuncs) OnExit(ctx context.Context, s *State, vars Vars) {
	if c.Exit != nil {
		c.Exit(ctx, s, vars)
	}
}

// NopCallback is used for every state without a registered callback.
type NopCallback struct{}

func (NopCallback) OnEnter(context.Context, *State, Vars) {}
func (NopCallback) OnExit(context.Context, *State, Vars)  {}
