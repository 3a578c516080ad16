package llm

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// DefaultMaxTokens bounds a completion when the request leaves it unset.
const DefaultMaxTokens = 4000

// Request describes a single completion.
// A trailing assistant message is a prefill: the model continues from it.
type Request struct {
	Model       string           `json:"model,omitempty"`
	System      string           `json:"system,omitempty"`
	Messages    []domain.Message `json:"messages"`
	Stop        []string         `json:"stop,omitempty"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// Prefill returns the trailing assistant message, if any.
func (r Request) Prefill() string {
	if n := len(r.Messages); n > 0 && r.Messages[n-1].Role == domain.RoleAssistant {
		return r.Messages[n-1].Content
	}
	return ""
}

// LastUser returns the content of the last user message, if any.
func (r Request) LastUser() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == domain.RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Generator produces one completion.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
