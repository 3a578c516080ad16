package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/canopy/pkg/domain"
)

// LogHooks returns lifecycle hooks that log every event on logger.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_enter", "run_id", e.RunID, "path", e.Path, "trigger", e.Trigger)
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_exit", "run_id", e.RunID, "path", e.Path, "trigger", e.Trigger)
		},
		OnGenerate: func(ctx context.Context, e *domain.GenerateEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "generate", "attempt", e.Attempt, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "generate", "attempt", e.Attempt, "duration", e.Duration)
		},
		OnStepClosed: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_closed", "run_id", e.RunID, "step", e.Step.Number, "failed", e.Step.Failed())
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			logger.InfoContext(ctx, "run_end", "run_id", e.RunID, "status", e.Status)
		},
	}
}
