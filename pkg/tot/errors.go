package tot

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned when the run's context was canceled.
	// The run is finalized as failed; it is not a fault.
	ErrInterrupted = errors.New("run interrupted")

	// ErrStepLimit is returned when a run exceeds Config.MaxSteps.
	ErrStepLimit = errors.New("step limit reached")

	// ErrUnparsableImplementation is returned when the chosen implementation
	// holds no fenced code block.
	ErrUnparsableImplementation = errors.New("implementation has no fenced code block")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("worker closed")
)

// StateError locates a fatal failure in the workflow graph.
type StateError struct {
	Path string
	Op   string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}
