package canopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/adapters/file"
	loamAdapter "github.com/aretw0/canopy/pkg/adapters/loam"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/adapters/redis"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/executor"
	"github.com/aretw0/canopy/pkg/feedback"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/llm/anthropic"
	"github.com/aretw0/canopy/pkg/llm/openai"
	"github.com/aretw0/canopy/pkg/observability"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/persistence/middleware"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/session"
	"github.com/aretw0/canopy/pkg/tot"
)

// Version is stamped at build time with -ldflags "-X github.com/aretw0/canopy.Version=...".
var Version = "dev"

// Engine is the high-level entry point. It assembles the dispatcher, the
// stores and the router from a Config.
type Engine struct {
	Config     *config.Config
	Dispatcher *llm.Dispatcher
	Templates  prompt.Store
	Store      ports.CheckpointStore
	Sessions   *session.Manager
	Registry   *registry.Registry
	Router     *router.Router
	Metrics    *observability.Metrics

	logger  *slog.Logger
	closers []func() error
}

type options struct {
	generator  llm.Generator
	registerer prometheus.Registerer
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	console    io.Writer
	source     feedback.Source
}

// Option defines a functional option for configuring the Engine.
type Option func(*options)

// WithGenerator replaces the configured provider.
func WithGenerator(gen llm.Generator) Option {
	return func(o *options) {
		o.generator = gen
	}
}

// WithRegisterer registers engine metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithLifecycleHooks adds observability hooks next to metrics and logging.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConsole tees step stdout to w while runs execute.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// WithFeedbackSource asks source for feedback after successful runs.
// It only takes effect when feedback is enabled in the configuration.
func WithFeedbackSource(source feedback.Source) Option {
	return func(o *options) {
		o.source = source
	}
}

// New assembles an Engine from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := &options{
		registerer: prometheus.DefaultRegisterer,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{Config: cfg, logger: o.logger}
	if err := e.build(ctx, o); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context, o *options) error {
	cfg := e.Config

	gen := o.generator
	if gen == nil {
		var err error
		if gen, err = NewGenerator(cfg.LLM); err != nil {
			return err
		}
	}

	e.Metrics = observability.NewMetrics(o.registerer)
	hooks := e.Metrics.Hooks().Merge(observability.LogHooks(e.logger)).Merge(o.hooks)

	dopts := []llm.DispatcherOption{
		llm.WithConcurrency(cfg.LLM.Concurrency),
		llm.WithRetryConfig(cfg.LLM.Retry),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithLifecycleHooks(hooks),
		llm.WithLogger(e.logger),
	}
	if cfg.LLM.RateLimit > 0 {
		dopts = append(dopts, llm.WithRateLimit(rate.Limit(cfg.LLM.RateLimit), cfg.LLM.Burst))
	}
	e.Dispatcher = llm.NewDispatcher(gen, dopts...)

	e.Templates = prompt.Defaults()
	if dir := cfg.Workspace.Templates; dir != "" {
		overrides, err := loamAdapter.Open(dir)
		if err != nil {
			return fmt.Errorf("open templates %s: %w", dir, err)
		}
		e.Templates = prompt.Layered{overrides, e.Templates}
	}

	var locker ports.DistributedLocker
	switch cfg.Store.Backend {
	case "file":
		e.Store = file.New(cfg.Store.Dir)
	case "redis":
		var ropts []redis.Option
		if cfg.Store.TTL > 0 {
			ropts = append(ropts, redis.WithTTL(cfg.Store.TTL))
		}
		rs := redis.New(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, ropts...)
		e.closers = append(e.closers, rs.Close)
		e.Store = rs
		locker = redis.NewLocker(rs.Client(), "canopy:lock:")
	default:
		e.Store = memory.NewStore()
	}
	secured, err := secureStore(e.Store, cfg.Store)
	if err != nil {
		return err
	}
	e.Store = secured

	sopts := []session.Option{session.WithLogger(e.logger)}
	if locker != nil {
		sopts = append(sopts, session.WithLocker(locker))
	}
	e.Sessions = session.NewManager(e.Store, sopts...)

	repairer := parse.NewRepairer(llm.GeneratorFunc(e.Dispatcher.GenerateOne),
		parse.WithMaxDepth(cfg.LLM.MaxRepairDepth),
		parse.WithLogger(e.logger),
	)

	topts := []tot.Option{
		tot.WithConfig(cfg.ToT),
		tot.WithTemplates(e.Templates),
		tot.WithWorkDir(cfg.Workspace.WorkDir),
		tot.WithCheckpointStore(e.Store),
		tot.WithStepLog(file.NewStepLog(cfg.Workspace.StepLogDir)),
		tot.WithArtifactsDir(cfg.Workspace.ArtifactsDir),
		tot.WithRepairer(repairer),
		tot.WithLifecycleHooks(hooks),
		tot.WithLogger(e.logger),
	}
	if path := cfg.Workspace.Interpreters; path != "" {
		interpreters, err := executor.LoadInterpreters(path)
		if err != nil {
			return err
		}
		topts = append(topts, tot.WithInterpreters(interpreters...))
	}
	if o.console != nil {
		topts = append(topts, tot.WithConsole(o.console))
	}
	if cfg.Feedback.Enabled {
		fopts := []feedback.Option{
			feedback.WithTemplates(e.Templates),
			feedback.WithLogger(e.logger),
			feedback.WithSink(feedback.NewHTTPSink(cfg.Feedback.URL, cfg.Feedback.APIKey, feedback.WithSinkLogger(e.logger))),
		}
		if o.source != nil {
			fopts = append(fopts, feedback.WithSource(o.source))
		}
		collector, err := feedback.NewCollector(ctx, e.Dispatcher, fopts...)
		if err != nil {
			return err
		}
		topts = append(topts, tot.WithFeedback(collector))
	}

	e.Registry = registry.NewRegistry()
	e.closers = append([]func() error{e.Registry.Close}, e.closers...)

	rt, err := router.New(ctx, e.Registry, router.TotFactory(e.Dispatcher, topts...), e.Dispatcher,
		router.WithTemplates(e.Templates),
		router.WithSessions(e.Sessions),
		router.WithCreateTemperature(cfg.Router.CreateTemperature),
		router.WithRunLockTTL(cfg.Router.RunLockTTL),
		router.WithRepairer(repairer),
		router.WithLifecycleHooks(hooks),
		router.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	e.Router = rt
	return nil
}

// NewGenerator builds the provider client named by cfg.Provider.
func NewGenerator(cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case "anthropic":
		var opts []anthropic.Option
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.APIKey, opts...)
	case "openai":
		var opts []openai.Option
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrConfig, cfg.Provider)
	}
}

// Handle routes task to a worker and runs it.
func (e *Engine) Handle(ctx context.Context, task string) (*router.Outcome, error) {
	return e.Router.Handle(ctx, task)
}

// Close releases workers and backend connections.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// secureStore layers redaction and encryption over the checkpoint backend.
func secureStore(store ports.CheckpointStore, cfg config.StoreConfig) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactPatterns) > 0 {
		mw, err := middleware.NewRedactMiddleware(cfg.RedactPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		active, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, err
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return middleware.Chain(store, mws...), nil
}
