package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Dispatcher fans requests out to a Generator.
type Dispatcher struct {
	gen         Generator
	concurrency int
	limiter     *rate.Limiter
	retry       RetryConfig
	maxTokens   int
	echo        bool
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds the number of in-flight completions per batch.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithMaxTokens sets the completion bound for requests that leave it unset.
func WithMaxTokens(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTokens = n
		}
	}
}

// WithRateLimit shares a request rate across every batch.
func WithRateLimit(limit rate.Limit, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithRetryConfig sets the retry policy.
func WithRetryConfig(cfg RetryConfig) DispatcherOption {
	return func(d *Dispatcher) {
		d.retry = cfg
	}
}

// WithPrefillEcho prepends the request prefill to each completion.
// Use it with providers that return only the continuation.
func WithPrefillEcho(enabled bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.echo = enabled
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over gen.
func NewDispatcher(gen Generator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gen:         gen,
		concurrency: 8,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		retry:       DefaultRetryConfig(),
		maxTokens:   DefaultMaxTokens,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate requests n completions of req concurrently and returns them in
// completion-slot order. The batch is joined before returning.
//
// Cancellation of ctx is honoured only before the batch starts: once
// dispatched, the batch runs to completion on a context detached from ctx.
func (d *Dispatcher) Generate(ctx context.Context, req Request, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	reqs := make([]Request, n)
	for i := range reqs {
		reqs[i] = req
	}
	return d.Batch(ctx, reqs)
}

// Batch requests one completion per request concurrently. Results are in
// request order. It follows the cancellation rules of Generate.
func (d *Dispatcher) Batch(ctx context.Context, reqs []Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batchCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(d.concurrency)

	out := make([]string, len(reqs))
	for i, req := range reqs {
		if req.MaxTokens <= 0 {
			req.MaxTokens = d.maxTokens
		}
		g.Go(func() error {
			text, err := d.generateOne(gctx, req)
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateOne requests a single completion.
func (d *Dispatcher) GenerateOne(ctx context.Context, req Request) (string, error) {
	out, err := d.Generate(ctx, req, 1)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

func (d *Dispatcher) generateOne(ctx context.Context, req Request) (string, error) {
	var (
		text     string
		attempts int
	)

	op := func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter error: %w", err))
		}
		attempts++
		start := time.Now()
		res, err := d.gen.Generate(ctx, req)
		d.emit(ctx, attempts, time.Since(start), err)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		text = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("generation failed, retrying", "attempt", attempts, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(d.retry.BackOff(), ctx), notify); err != nil {
		if IsTransient(err) {
			return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		return "", err
	}

	if d.echo {
		text = req.Prefill() + text
	}
	return text, nil
}

func (d *Dispatcher) emit(ctx context.Context, attempt int, dur time.Duration, err error) {
	if d.hooks.OnGenerate == nil {
		return
	}
	runID, _ := domain.RunIDFromContext(ctx)
	d.hooks.OnGenerate(ctx, &domain.GenerateEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventGenerate,
			RunID:     runID,
		},
		Attempt:  attempt,
		Duration: dur,
		Err:      err,
	})
}
