package runner

import (
	"io"
	"log/slog"
)

// Option configures a Runner.
type Option func(*Runner)

// WithIO sets the task source and the output sink.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *Runner) {
		if in != nil {
			r.in = in
		}
		if out != nil {
			r.out = out
		}
	}
}

// WithRenderer configures the content renderer for run artifacts.
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.renderer = renderer
	}
}

// WithHeadless suppresses the input prompt.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.headless = headless
	}
}

// WithInterruptSource sets a channel that interrupts the current run, or
// ends the loop when no run is in progress.
func WithInterruptSource(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.interrupts = ch
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}
