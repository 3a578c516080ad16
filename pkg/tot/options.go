package tot

import (
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/executor"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/prompt"
)

// Option configures a Worker.
type Option func(*Worker)

// WithConfig sets the fan-out sizes.
func WithConfig(cfg Config) Option {
	return func(w *Worker) {
		w.cfg = cfg
	}
}

// WithTemplates sets the prompt store. Defaults to prompt.Defaults().
func WithTemplates(store prompt.Store) Option {
	return func(w *Worker) {
		w.templates = store
	}
}

// WithExecutor hands an executor to the worker, which takes ownership of it.
func WithExecutor(e *executor.Executor) Option {
	return func(w *Worker) {
		w.exec = e
	}
}

// WithWorkDir sets the directory under which the worker's executor session
// is created. Defaults to the system temp directory.
func WithWorkDir(dir string) Option {
	return func(w *Worker) {
		w.workDir = dir
	}
}

// WithInterpreters allows extra languages in the executor the worker creates.
func WithInterpreters(cfgs ...executor.InterpreterConfig) Option {
	return func(w *Worker) {
		w.interpreters = append(w.interpreters, cfgs...)
	}
}

// WithConsole mirrors executed code output to out.
func WithConsole(out io.Writer) Option {
	return func(w *Worker) {
		w.console = out
	}
}

// WithCheckpointStore persists a checkpoint after every transition.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(w *Worker) {
		w.store = store
	}
}

// WithStepLog writes a transcript of every closed step.
func WithStepLog(log ports.StepLog) Option {
	return func(w *Worker) {
		w.stepLog = log
	}
}

// WithArtifactsDir enables the condensed code artifact of each run under
// dir/<worker>/run-<k>/.
func WithArtifactsDir(dir string) Option {
	return func(w *Worker) {
		w.artifactsDir = dir
	}
}

// WithFeedback collects operator feedback after a successful run.
func WithFeedback(c FeedbackCollector) Option {
	return func(w *Worker) {
		w.feedback = c
	}
}

// WithRepairer sets the structured text repairer used on ballots.
// Defaults to one backed by the worker's dispatcher.
func WithRepairer(r *parse.Repairer) Option {
	return func(w *Worker) {
		w.repairer = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(w *Worker) {
		w.hooks = hooks
	}
}

// WithCallbacks attaches state callbacks keyed by state path.
func WithCallbacks(callbacks map[string]hsm.Callback) Option {
	return func(w *Worker) {
		w.callbacks = callbacks
	}
}

// WithRand sets the source used to shuffle candidates for voters.
func WithRand(r *rand.Rand) Option {
	return func(w *Worker) {
		w.rng = r
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}
