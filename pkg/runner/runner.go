package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/presentation/tui"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/tot"
)

// TaskHandler runs one task to completion.
type TaskHandler interface {
	Handle(ctx context.Context, task string) (*router.Outcome, error)
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// Runner reads tasks and runs them one at a time.
type Runner struct {
	handler    TaskHandler
	in         io.Reader
	out        io.Writer
	renderer   ContentRenderer
	headless   bool
	interrupts <-chan struct{}
	logger     *slog.Logger

	mu    sync.Mutex
	lines <-chan inputResult
}

type inputResult struct {
	text string
	err  error
}

// New creates a Runner over handler reading Stdin and writing Stdout.
func New(handler TaskHandler, opts ...Option) *Runner {
	r := &Runner{
		handler: handler,
		in:      os.Stdin,
		out:     os.Stdout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until EOF, "exit", an idle interrupt or cancellation of ctx.
// Per-task failures are reported and do not end the loop.
func (r *Runner) Run(ctx context.Context) error {
	signals := NewSignalManager(ctx)
	defer signals.Stop()

	stop := make(chan struct{})
	defer close(stop)
	lines := r.pump(stop)
	r.mu.Lock()
	r.lines = lines
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.lines = nil
		r.mu.Unlock()
	}()
	for {
		if !r.headless {
			fmt.Fprint(r.out, "task> ")
		}

		var text string
		select {
		case <-signals.Context().Done():
			fmt.Fprintln(r.out)
			return nil
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case in, ok := <-lines:
			if !ok {
				return nil
			}
			if in.err != nil {
				signals.CheckRace()
				if signals.Context().Err() != nil {
					return nil
				}
				return fmt.Errorf("read task: %w", in.err)
			}
			text = in.text
		}

		task, err := SanitizeInput(text)
		if err != nil {
			fmt.Fprintf(r.out, "rejected: %v\n", err)
			continue
		}
		switch task {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		r.runTask(signals, task)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Ask reads one answer about a finished run from the task input. It lets a
// feedback source share the input while a task runs. Outside Run it answers
// empty, which skips feedback.
func (r *Runner) Ask(ctx context.Context, cp *domain.Checkpoint) (string, error) {
	r.mu.Lock()
	lines := r.lines
	r.mu.Unlock()
	if lines == nil {
		return "", nil
	}

	fmt.Fprintf(r.out, "How did %q go? (empty to skip) > ", cp.Task)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case in, ok := <-lines:
		if !ok {
			return "", nil
		}
		if in.err != nil {
			return "", in.err
		}
		return SanitizeInput(in.text)
	}
}

func (r *Runner) runTask(signals *SignalManager, task string) {
	ctx, cancel := context.WithCancel(signals.Context())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.interrupts:
			cancel()
		case <-done:
		}
	}()

	out, err := r.handler.Handle(ctx, task)
	if signals.Interrupted() {
		// Re-arm so the next SIGINT targets the next run, not the loop.
		signals.Reset()
		r.logger.Debug("run interrupted by signal", "interrupts", signals.Interrupts())
	}
	r.report(out, err)
}

func (r *Runner) report(out *router.Outcome, err error) {
	if out != nil {
		origin := "existing"
		if out.Created {
			origin = "new"
		}
		fmt.Fprintf(r.out, "worker: %s (%s)\n", out.Worker, origin)
	}

	switch {
	case errors.Is(err, tot.ErrInterrupted), errors.Is(err, context.Canceled):
		fmt.Fprintln(r.out, tui.Status("interrupted"))
	case err != nil:
		r.logger.Error("task failed", "err", err)
		fmt.Fprintf(r.out, "%s: %v\n", tui.Status("failed"), err)
	}

	if out == nil || out.Result == nil {
		return
	}
	res := out.Result
	fmt.Fprintf(r.out, "run %s %s after %d steps\n", res.RunID, tui.Status(string(res.Status)), len(res.Steps))
	if res.Artifact == "" {
		return
	}

	content := "```\n" + strings.TrimRight(res.Artifact, "\n") + "\n```\n"
	if r.renderer != nil {
		if rendered, rerr := r.renderer(content); rerr == nil {
			content = rendered
		} else {
			r.logger.Warn("render failed", "err", rerr)
		}
	}
	fmt.Fprint(r.out, content)
}

// pump reads lines in the background so the loop can select on signals.
// A read blocked in the reader outlives stop until the reader returns.
func (r *Runner) pump(stop <-chan struct{}) <-chan inputResult {
	ch := make(chan inputResult)
	reader := bufio.NewReader(r.in)
	send := func(in inputResult) bool {
		select {
		case ch <- in:
			return true
		case <-stop:
			return false
		}
	}
	go func() {
		defer close(ch)
		for {
			text, err := reader.ReadString('\n')
			if text != "" && !send(inputResult{text: text}) {
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					send(inputResult{err: err})
				}
				return
			}
		}
	}()
	return ch
}
