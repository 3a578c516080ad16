// Package router decides whether a task goes to an existing worker or to a
// newly created one.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/session"
	"github.com/aretw0/canopy/pkg/tot"
)

// Router states. Triggers share the name of their destination.
const (
	StateAwaitTask    = "AwaitTask"
	StateRouteAction  = "RouteAction"
	StateCreateWorker = "CreateWorker"
	StateAssignWorker = "AssignWorker"
)

// DefaultCreateTemperature is the temperature used to name new workers.
const DefaultCreateTemperature = 0.7

// DefaultRunLockTTL bounds a worker lock held across replicas.
const DefaultRunLockTTL = 30 * time.Minute

// Definition returns the router's state machine definition.
func Definition() hsm.Definition {
	return hsm.Define("router").
		Initial(StateAwaitTask).
		States(StateAwaitTask, StateRouteAction, StateCreateWorker, StateAssignWorker).
		On(StateRouteAction).From(StateAwaitTask).To(StateRouteAction).
		On(StateCreateWorker).From(StateRouteAction).To(StateCreateWorker).
		On(StateAssignWorker).From(StateRouteAction, StateCreateWorker).To(StateAssignWorker).
		On(StateAwaitTask).From(StateAssignWorker).To(StateAwaitTask).
		MustBuild()
}

// Factory builds the worker for a newly created name.
type Factory func(ctx context.Context, name, description string) (registry.Worker, error)

// TotFactory returns a Factory building tree-of-thought workers.
func TotFactory(d *llm.Dispatcher, opts ...tot.Option) Factory {
	return func(ctx context.Context, name, description string) (registry.Worker, error) {
		return tot.New(ctx, name, description, d, opts...)
	}
}

// Assignment is a routing decision.
type Assignment struct {
	Worker  registry.Worker
	Created bool
}

// Outcome is a routed and completed task.
type Outcome struct {
	Worker  string
	Created bool
	Result  *tot.Result
}

// Router routes tasks to the workers of a registry.
type Router struct {
	registry   *registry.Registry
	factory    Factory
	dispatcher *llm.Dispatcher
	templates  prompt.Store
	renderer   *prompt.Renderer
	repairer   *parse.Repairer
	sessions   *session.Manager
	machine    *hsm.Machine

	createTemperature float64
	lockTTL           time.Duration
	hooks             domain.LifecycleHooks
	logger            *slog.Logger

	mu sync.Mutex
}

// Option configures a Router.
type Option func(*Router)

// WithTemplates sets the prompt store. Defaults to prompt.Defaults().
func WithTemplates(store prompt.Store) Option {
	return func(r *Router) {
		r.templates = store
	}
}

// WithSessions sets the manager holding per-worker run locks.
func WithSessions(m *session.Manager) Option {
	return func(r *Router) {
		r.sessions = m
	}
}

// WithCreateTemperature sets the temperature used to name new workers.
func WithCreateTemperature(t float64) Option {
	return func(r *Router) {
		r.createTemperature = t
	}
}

// WithRunLockTTL sets how long a worker lock survives a crashed holder.
func WithRunLockTTL(ttl time.Duration) Option {
	return func(r *Router) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithRepairer sets the structured text repairer.
func WithRepairer(p *parse.Repairer) Option {
	return func(r *Router) {
		r.repairer = p
	}
}

// WithLifecycleHooks registers observability hooks on the router machine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Router) {
		r.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a Router over reg. New workers are built with factory.
func New(ctx context.Context, reg *registry.Registry, factory Factory, d *llm.Dispatcher, opts ...Option) (*Router, error) {
	if reg == nil || factory == nil || d == nil {
		return nil, fmt.Errorf("%w: router needs a registry, a factory and a dispatcher", domain.ErrConfig)
	}
	r := &Router{
		registry:          reg,
		factory:           factory,
		dispatcher:        d,
		templates:         prompt.Defaults(),
		createTemperature: DefaultCreateTemperature,
		lockTTL:           DefaultRunLockTTL,
		logger:            logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := prompt.Require(ctx, r.templates, StateRouteAction, StateCreateWorker); err != nil {
		return nil, err
	}
	r.renderer = prompt.NewRenderer(r.templates)
	if r.repairer == nil {
		r.repairer = parse.NewRepairer(llm.GeneratorFunc(d.GenerateOne), parse.WithLogger(r.logger))
	}
	if r.sessions == nil {
		r.sessions = session.NewManager(memory.NewStore(), session.WithLogger(r.logger))
	}

	m, err := hsm.New(Definition(), hsm.WithLifecycleHooks(r.hooks), hsm.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.machine = m
	return r, nil
}

// Registry returns the worker registry.
func (r *Router) Registry() *registry.Registry { return r.registry }

// Machine exposes the router state machine.
func (r *Router) Machine() *hsm.Machine { return r.machine }

// Route picks or creates the worker for task. Calls are serialized.
// A new worker is registered before Route returns it.
func (r *Router) Route(ctx context.Context, task string) (Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.route(ctx, task)
	if err != nil {
		_ = r.machine.Reset(StateAwaitTask)
		return Assignment{}, err
	}
	return a, nil
}

func (r *Router) route(ctx context.Context, task string) (Assignment, error) {
	var (
		name    string
		created bool
		a       Assignment
	)

	if err := r.fire(ctx, StateRouteAction); err != nil {
		return a, err
	}

	for {
		path := r.machine.Current().Path()
		switch path {
		case StateRouteAction:
			var err error
			name, err = r.decide(ctx, task)
			if err != nil {
				return a, &tot.StateError{Path: path, Op: "route task", Err: err}
			}
			next := StateAssignWorker
			if name == "" {
				next = StateCreateWorker
			}
			if err := r.fire(ctx, next); err != nil {
				return a, err
			}

		case StateCreateWorker:
			var err error
			name, err = r.create(ctx, task)
			if err != nil {
				return a, &tot.StateError{Path: path, Op: "create worker", Err: err}
			}
			created = true
			if err := r.fire(ctx, StateAssignWorker); err != nil {
				return a, err
			}

		case StateAssignWorker:
			w, err := r.registry.Lookup(name)
			if err != nil {
				return a, &tot.StateError{Path: path, Op: "assign worker", Err: err}
			}
			r.logger.Info("task routed", "worker", name, "created", created)
			if err := r.fire(ctx, StateAwaitTask); err != nil {
				return a, err
			}
			return Assignment{Worker: w, Created: created}, nil

		default:
			return a, &tot.StateError{Path: path, Op: "route task", Err: fmt.Errorf("unexpected state")}
		}
	}
}

func (r *Router) fire(ctx context.Context, trigger string) error {
	from := r.machine.Current().Path()
	if _, err := r.machine.Transition(ctx, trigger, nil); err != nil {
		return &tot.StateError{Path: from, Op: "transition", Err: err}
	}
	return nil
}

// decide asks which worker should take task. Empty means a new one.
func (r *Router) decide(ctx context.Context, task string) (string, error) {
	fields, err := r.ask(ctx, StateRouteAction, prompt.Vars{
		"Workers": Listing(r.registry.List()),
		"Task":    task,
	}, 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(parse.String(fields, "name")), nil
}

// create names a new worker, builds it and registers it.
func (r *Router) create(ctx context.Context, task string) (string, error) {
	names := r.registry.Names()
	fields, err := r.ask(ctx, StateCreateWorker, prompt.Vars{
		"Task":  task,
		"Names": names,
	}, r.createTemperature)
	if err != nil {
		return "", err
	}

	name := uniqueName(slug(parse.String(fields, "name")), names)
	description := strings.TrimSpace(parse.String(fields, "description"))

	w, err := r.factory(ctx, name, description)
	if err != nil {
		return "", fmt.Errorf("failed to build worker %q: %w", name, err)
	}
	if err := r.registry.Register(w); err != nil {
		_ = w.Close()
		return "", err
	}
	r.logger.Info("worker created", "worker", name, "description", description)
	return name, nil
}

func (r *Router) ask(ctx context.Context, path string, vars prompt.Vars, temperature float64) (map[string]any, error) {
	turn, err := r.renderer.Render(ctx, path, vars)
	if err != nil {
		return nil, err
	}
	text, err := r.dispatcher.GenerateOne(ctx, llm.Request{
		System: turn.System,
		Messages: []domain.Message{
			domain.UserMessage(turn.User),
			domain.AssistantMessage(turn.Prefill),
		},
		Stop:        turn.Stop,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return r.repairer.Parse(ctx, text)
}

// Handle routes task and runs it on the chosen worker. Runs on one worker
// are serialized through the session manager, across replicas when it has
// a distributed locker.
func (r *Router) Handle(ctx context.Context, task string) (*Outcome, error) {
	a, err := r.Route(ctx, task)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Worker: a.Worker.Name(), Created: a.Created}
	err = r.sessions.WithLockTTL(ctx, "worker:"+a.Worker.Name(), r.lockTTL, func(ctx context.Context) error {
		var runErr error
		out.Result, runErr = a.Worker.Run(ctx, task)
		return runErr
	})
	return out, err
}

// Listing renders workers as the XML fragment the routing prompt expects.
func Listing(workers []domain.WorkerInfo) string {
	var sb strings.Builder
	for i, w := range workers {
		fmt.Fprintf(&sb, "<worker idx=\"%d\">\n", i)
		fmt.Fprintf(&sb, "<name>%s</name>\n", parse.Escape(w.Name))
		fmt.Fprintf(&sb, "<description>%s</description>\n", parse.Escape(w.Description))
		sb.WriteString("<tasks>\n")
		for _, t := range w.Tasks {
			fmt.Fprintf(&sb, "<task>%s</task>\n", parse.Escape(t))
		}
		sb.WriteString("</tasks>\n</worker>\n")
	}
	return sb.String()
}

// slug lowercases name and replaces anything but letters and digits with '_'.
func slug(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	s := strings.Trim(sb.String(), "_")
	if s == "" {
		return "worker"
	}
	return s
}

func uniqueName(name string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
	return candidate
}
