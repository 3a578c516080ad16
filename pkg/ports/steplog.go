package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// StepLog is an append-only transcript of runs. Every call must be durable
// before it returns, so a crash preserves the steps already closed.
type StepLog interface {
	// Begin records the start of a run.
	Begin(ctx context.Context, cp *domain.Checkpoint) error
	// AppendStep records a closed step.
	AppendStep(ctx context.Context, runID string, step *domain.Step) error
	// End records the final status and any operator note.
	End(ctx context.Context, runID string, status domain.RunStatus, note string) error
}

// FeedbackSink stages clarified feedback.
type FeedbackSink interface {
	Stage(ctx context.Context, exp domain.Experience) error
}
