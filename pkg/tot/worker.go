package tot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/executor"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/vote"
)

// FeedbackCollector gathers operator feedback about a finished run.
// A nil Experience means the operator gave none.
type FeedbackCollector interface {
	Collect(ctx context.Context, cp *domain.Checkpoint, steps []domain.Step) (*domain.Experience, error)
}

// Result summarizes a run.
type Result struct {
	RunID      string
	Status     domain.RunStatus
	Steps      []domain.Step
	Artifact   string
	Experience *domain.Experience
}

// Worker drives tasks through the tree-of-thought workflow.
//
// A worker keeps its conversation memory and its execution context across
// tasks. Runs on one worker are serialized.
type Worker struct {
	name        string
	description string

	cfg          Config
	dispatcher   *llm.Dispatcher
	templates    prompt.Store
	renderer     *prompt.Renderer
	repairer     *parse.Repairer
	planVote     vote.Strategy
	proposeVote  vote.Strategy
	exec         *executor.Executor
	workDir      string
	interpreters []executor.InterpreterConfig
	console      io.Writer
	language     string

	store        ports.CheckpointStore
	stepLog      ports.StepLog
	artifactsDir string
	feedback     FeedbackCollector

	hooks     domain.LifecycleHooks
	callbacks map[string]hsm.Callback
	rng       *rand.Rand
	logger    *slog.Logger

	machine *hsm.Machine
	runMu   sync.Mutex

	mu     sync.Mutex
	memory []domain.Message
	tasks  []string
	closed bool
}

// New builds a worker named name on top of dispatcher.
// Missing templates and invalid configuration are reported here, before any
// task runs.
func New(ctx context.Context, name, description string, dispatcher *llm.Dispatcher, opts ...Option) (*Worker, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: worker name is required", domain.ErrConfig)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", domain.ErrConfig)
	}

	w := &Worker{
		name:        name,
		description: description,
		cfg:         DefaultConfig(),
		dispatcher:  dispatcher,
		templates:   prompt.Defaults(),
		console:     io.Discard,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", name)

	if err := w.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := prompt.Require(ctx, w.templates, TemplatePaths...); err != nil {
		return nil, err
	}
	w.renderer = prompt.NewRenderer(w.templates)
	if w.repairer == nil {
		w.repairer = parse.NewRepairer(llm.GeneratorFunc(dispatcher.GenerateOne), parse.WithLogger(w.logger))
	}

	strategy, err := vote.StrategyByName(w.cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	w.planVote = strategy
	w.proposeVote = strategy
	if _, ok := strategy.(vote.Category); ok {
		w.proposeVote = vote.Category{Omit: []string{"specificity"}}
	}

	machine, err := hsm.New(Definition(),
		hsm.WithCallbacks(w.callbacks),
		hsm.WithLifecycleHooks(w.hooks),
		hsm.WithLogger(w.logger),
	)
	if err != nil {
		return nil, err
	}
	w.machine = machine

	if w.exec == nil {
		dir, err := os.MkdirTemp(w.workDir, "canopy-"+name+"-")
		if err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		w.exec, err = executor.New(dir,
			executor.WithConsole(w.console),
			executor.WithInterpreters(w.interpreters...),
			executor.WithLogger(w.logger),
		)
		if err != nil {
			return nil, err
		}
	}

	w.language = w.cfg.Language
	if w.language == "" {
		w.language = w.exec.Primary()
	}
	if !w.exec.Supports(w.language) {
		_ = w.exec.Close()
		return nil, fmt.Errorf("%w: language %q is not served by the executor", domain.ErrConfig, w.language)
	}
	return w, nil
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Description returns the worker's specialty.
func (w *Worker) Description() string { return w.description }

// Machine exposes the state machine, e.g. for graph overlays.
func (w *Worker) Machine() *hsm.Machine { return w.machine }

// Info describes the worker and the tasks it has received.
func (w *Worker) Info() domain.WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.WorkerInfo{
		Name:        w.name,
		Description: w.description,
		Tasks:       append([]string(nil), w.tasks...),
	}
}

// Memory returns a copy of the conversation memory.
func (w *Worker) Memory() []domain.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Message(nil), w.memory...)
}

// Close tears down the execution context once the current run, if any,
// has finished. It is safe to call more than once.
func (w *Worker) Close() error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.exec.Close()
}

// Run drives task to Done.
//
// Canceling ctx stops the run between stages; the fan-out in flight is
// allowed to finish first. An interrupted run is finalized as failed and
// returns ErrInterrupted. Any other fatal failure is a *StateError.
func (w *Worker) Run(ctx context.Context, task string) (*Result, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	w.tasks = append(w.tasks, task)
	w.mu.Unlock()

	runID, ok := domain.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = domain.ContextWithRunID(ctx, runID)
	}
	r := &run{
		cp:   domain.NewCheckpoint(runID, w.name, task),
		step: &domain.Step{Number: 1},
	}
	logger := w.logger.With("run_id", r.cp.RunID)
	logger.Info("run started", "task", task)

	if err := w.rewind(ctx); err != nil {
		return w.fail(ctx, r, &StateError{Path: w.machine.Current().Path(), Op: "restart", Err: err})
	}
	if w.stepLog != nil {
		if err := w.stepLog.Begin(ctx, r.cp); err != nil {
			return w.fail(ctx, r, &StateError{Path: StatePlan, Op: "begin step log", Err: err})
		}
	}
	w.checkpoint(ctx, r)

	for w.machine.Current().Path() != StateDone {
		path := w.machine.Current().Path()
		if ctx.Err() != nil {
			logger.Info("run interrupted", "state", path)
			return w.fail(ctx, r, ErrInterrupted)
		}
		if w.cfg.MaxSteps > 0 && r.step.Number > w.cfg.MaxSteps {
			return w.fail(ctx, r, &StateError{Path: path, Op: "next step", Err: ErrStepLimit})
		}

		trigger, err := w.handle(ctx, r, path)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				logger.Info("run interrupted", "state", path)
				return w.fail(ctx, r, ErrInterrupted)
			}
			return w.fail(ctx, r, err)
		}

		vars := hsm.Vars{"run_id": r.cp.RunID, "task": task, "step": r.step.Number}
		if _, err := w.machine.Transition(ctx, trigger, vars); err != nil {
			return w.fail(ctx, r, &StateError{Path: path, Op: "transition", Err: err})
		}
		w.checkpoint(ctx, r)
	}

	return w.finish(ctx, r, domain.RunSucceeded, nil)
}

// rewind positions the machine on Plan for a new task.
func (w *Worker) rewind(ctx context.Context) error {
	switch w.machine.Current().Path() {
	case StatePlan:
		return nil
	case StateDone:
		_, err := w.machine.Transition(ctx, TriggerRestart, nil)
		return err
	default:
		return w.machine.Reset(StatePlan)
	}
}

func (w *Worker) checkpoint(ctx context.Context, r *run) {
	if w.store == nil {
		return
	}
	r.cp.StatePath = w.machine.Current().Path()
	r.cp.StepNum = r.step.Number
	r.cp.History = w.machine.History().Paths()
	r.cp.UpdatedAt = time.Now().UTC()
	if err := w.store.Save(context.WithoutCancel(ctx), r.cp); err != nil {
		w.logger.Warn("failed to save checkpoint", "run_id", r.cp.RunID, "err", err)
	}
}
