package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type redactMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks matches of the patterns in a checkpoint's task,
// artifact and error before it reaches the store. Loads are untouched, so
// redaction is one-way.
func NewRedactMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	for _, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: redact pattern %q: %v", domain.ErrConfig, p, err)
		}
		patterns = append(patterns, re)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	// Copy so the caller's in-memory checkpoint keeps the real values.
	cloned := *cp
	cloned.History = append([]string(nil), cp.History...)
	cloned.Task = m.mask(cp.Task)
	cloned.Artifact = m.mask(cp.Artifact)
	cloned.Error = m.mask(cp.Error)
	return m.next.Save(ctx, &cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, runID)
}

func (m *redactMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
