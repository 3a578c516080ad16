package domain

import (
	"context"
	"time"
)

// RunStatus describes the lifecycle of a single task run.
type RunStatus string

const (
	RunActive    RunStatus = "active"    // Workflow is driving its state machine
	RunSucceeded RunStatus = "succeeded" // Reached Done
	RunFailed    RunStatus = "failed"    // Interrupted, step limit or fatal error
)

// Checkpoint is the durable snapshot of a run.
// It is written after every transition so a crash leaves a locatable trail.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Worker    string    `json:"worker"`
	Task      string    `json:"task"`
	StatePath string    `json:"state_path"`
	StepNum   int       `json:"step_num"`
	Status    RunStatus `json:"status"`
	History   []string  `json:"history"`
	Artifact  string    `json:"artifact,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckpoint creates an active checkpoint for a fresh run.
func NewCheckpoint(runID, worker, task string) *Checkpoint {
	return &Checkpoint{
		RunID:     runID,
		Worker:    worker,
		Task:      task,
		Status:    RunActive,
		History:   []string{},
		UpdatedAt: time.Now().UTC(),
	}
}

type runIDKey struct{}

// ContextWithRunID asks the workflow to use id for the run started with ctx.
// Callers use it to hand out a run ID before the run begins.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID stored by ContextWithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
