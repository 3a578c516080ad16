package feedback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/parse"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/prompt"
)

// TemplatePath is the prompt template used to clarify feedback.
const TemplatePath = "ClarifyFeedback"

// Source asks the operator about a run. An empty answer skips feedback.
type Source interface {
	Ask(ctx context.Context, cp *domain.Checkpoint) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, cp *domain.Checkpoint) (string, error)

func (f SourceFunc) Ask(ctx context.Context, cp *domain.Checkpoint) (string, error) {
	return f(ctx, cp)
}

// LineSource prompts on out and reads one line from in.
type LineSource struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLineSource creates a LineSource.
func NewLineSource(in io.Reader, out io.Writer) *LineSource {
	return &LineSource{in: bufio.NewReader(in), out: out}
}

func (s *LineSource) Ask(ctx context.Context, cp *domain.Checkpoint) (string, error) {
	fmt.Fprintf(s.out, "How did %q go? (empty to skip) > ", cp.Task)
	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Collector clarifies feedback through one generation turn and stages it.
type Collector struct {
	dispatcher  *llm.Dispatcher
	renderer    *prompt.Renderer
	repairer    *parse.Repairer
	source      Source
	sink        ports.FeedbackSink
	temperature float64
	logger      *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithSource sets where raw feedback comes from. Without one Collect is a no-op.
func WithSource(s Source) Option {
	return func(c *Collector) {
		c.source = s
	}
}

// WithSink sets where clarified feedback is staged.
func WithSink(s ports.FeedbackSink) Option {
	return func(c *Collector) {
		c.sink = s
	}
}

// WithTemplates sets the prompt store. Defaults to prompt.Defaults().
func WithTemplates(store prompt.Store) Option {
	return func(c *Collector) {
		c.renderer = prompt.NewRenderer(store)
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a Collector on top of d.
func NewCollector(ctx context.Context, d *llm.Dispatcher, opts ...Option) (*Collector, error) {
	c := &Collector{
		dispatcher: d,
		renderer:   prompt.NewRenderer(prompt.Defaults()),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := prompt.Require(ctx, c.renderer.Store(), TemplatePath); err != nil {
		return nil, err
	}
	c.repairer = parse.NewRepairer(llm.GeneratorFunc(d.GenerateOne), parse.WithLogger(c.logger))
	return c, nil
}

// Collect asks for feedback on a finished run, clarifies it and stages it.
// It returns nil when the operator gave none.
func (c *Collector) Collect(ctx context.Context, cp *domain.Checkpoint, steps []domain.Step) (*domain.Experience, error) {
	if c.source == nil {
		return nil, nil
	}
	raw, err := c.source.Ask(ctx, cp)
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	exp, err := c.Clarify(ctx, cp, raw)
	if err != nil {
		return nil, err
	}
	exp.Steps = len(steps)

	if c.sink != nil {
		if err := c.sink.Stage(ctx, *exp); err != nil {
			return exp, fmt.Errorf("failed to stage feedback: %w", err)
		}
	}
	return exp, nil
}

// Clarify turns raw feedback about cp into an Experience.
func (c *Collector) Clarify(ctx context.Context, cp *domain.Checkpoint, raw string) (*domain.Experience, error) {
	turn, err := c.renderer.Render(ctx, TemplatePath, prompt.Vars{
		"Task":     cp.Task,
		"Status":   string(cp.Status),
		"Feedback": raw,
	})
	if err != nil {
		return nil, err
	}
	text, err := c.dispatcher.GenerateOne(ctx, llm.Request{
		System: turn.System,
		Messages: []domain.Message{
			domain.UserMessage(turn.User),
			domain.AssistantMessage(turn.Prefill),
		},
		Stop:        turn.Stop,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clarify feedback: %w", err)
	}
	fields, err := c.repairer.Parse(ctx, text)
	if err != nil {
		return nil, err
	}

	return &domain.Experience{
		RunID:      cp.RunID,
		Worker:     cp.Worker,
		Task:       cp.Task,
		Status:     cp.Status,
		Rating:     strings.ToLower(strings.TrimSpace(parse.String(fields, "rating"))),
		Summary:    strings.TrimSpace(parse.String(fields, "summary")),
		Suggestion: strings.TrimSpace(parse.String(fields, "suggestion")),
		Raw:        raw,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
