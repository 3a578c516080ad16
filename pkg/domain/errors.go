package domain

import "errors"

// Structural errors. They indicate a broken deployment and are never retried.
var (
	// ErrInvalidTrigger is returned when a trigger is not defined for the current state
	// or any of its ancestors.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrTemplateNotFound is returned when no prompt template exists for a state path.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrConfig is returned for missing or invalid required configuration.
	ErrConfig = errors.New("invalid configuration")

	// ErrUnknownWorker is returned when a routing decision names a worker that is not registered.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrDuplicateWorker is returned when registering a worker whose name is taken.
	ErrDuplicateWorker = errors.New("duplicate worker")
)

// ErrRunNotFound is returned when a run ID cannot be found in the checkpoint store.
var ErrRunNotFound = errors.New("run not found")
