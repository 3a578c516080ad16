package parse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
)

// ErrRepairExhausted is returned when a fragment still fails to parse after MaxDepth repairs.
var ErrRepairExhausted = errors.New("structured text repair exhausted")

// DefaultMaxRepairDepth bounds the number of repair attempts.
const DefaultMaxRepairDepth = 3

// DefaultRepairSystem instructs the generator how to fix a fragment.
const DefaultRepairSystem = `You are an expert in the field of programming, and are especially good at finding mistakes in XML files.
Make sure there are no mistakes in the XML file, such as invalid characters, missing or unclosed tags.
Make sure the tag pairs that were given remain and are balanced.
If there are unclosed tags used as section titles, you should close them.
Escape any literal "<" or "&" that is not part of a tag.`

// Repairer parses fragments and asks a generator to fix those that do not parse.
type Repairer struct {
	gen         llm.Generator
	maxDepth    int
	system      string
	temperature float64
	logger      *slog.Logger
}

// RepairOption configures a Repairer.
type RepairOption func(*Repairer)

// WithMaxDepth bounds the number of repair attempts. Zero disables repair.
func WithMaxDepth(n int) RepairOption {
	return func(r *Repairer) {
		if n >= 0 {
			r.maxDepth = n
		}
	}
}

// WithRepairSystem replaces the repair instructions.
func WithRepairSystem(system string) RepairOption {
	return func(r *Repairer) {
		r.system = system
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) RepairOption {
	return func(r *Repairer) {
		r.logger = logger
	}
}

// NewRepairer creates a Repairer. A nil generator disables repair.
func NewRepairer(gen llm.Generator, opts ...RepairOption) *Repairer {
	r := &Repairer{
		gen:         gen,
		maxDepth:    DefaultMaxRepairDepth,
		system:      DefaultRepairSystem,
		temperature: 0.7,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse decodes text with ToMap, repairing it when malformed.
func (r *Repairer) Parse(ctx context.Context, text string) (map[string]any, error) {
	current := text
	for depth := 0; ; depth++ {
		m, err := ToMap(current)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrMalformed) {
			return nil, err
		}
		if r.gen == nil || depth >= r.maxDepth {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRepairExhausted, depth, err)
		}

		r.logger.Warn("malformed fragment, attempting repair", "depth", depth+1, "err", err)
		fixed, genErr := r.gen.Generate(ctx, r.request(current))
		if genErr != nil {
			return nil, fmt.Errorf("repair request failed: %w", genErr)
		}
		current = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(fixed), "<"+RootTag+">"), "</"+RootTag+">")
	}
}

func (r *Repairer) request(text string) llm.Request {
	wrapped := "<" + RootTag + ">" + strings.TrimSpace(text) + "</" + RootTag + ">"
	return llm.Request{
		System: r.system,
		Messages: []domain.Message{
			domain.UserMessage("Fix the following XML file according to the given instructions:\n" + wrapped + "\n"),
			domain.AssistantMessage("<" + RootTag + ">"),
		},
		Stop:        []string{"</" + RootTag + ">"},
		Temperature: r.temperature,
	}
}
