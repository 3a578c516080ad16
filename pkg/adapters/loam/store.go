// Package loam stores prompt templates as Markdown documents in a Loam repository.
//
// A document named after a state path (e.g. Plan.md) holds the system prompt,
// prefill and stop markers in its frontmatter and the user template in its body:
//
//	---
//	system: You are a careful planner.
//	prefill: "<step_{{.StepNum}}><plan>"
//	stop: ["</plan>"]
//	---
//	Plan step {{.StepNum}} of {{.Task}}.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/canopy/pkg/prompt"
	"github.com/aretw0/loam"
)

// Store adapts a Loam repository to prompt.Store.
type Store struct {
	Repo *loam.TypedRepository[TemplateMetadata]
}

// New creates a new Loam template store.
func New(repo *loam.TypedRepository[TemplateMetadata]) *Store {
	return &Store{Repo: repo}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template dir: %w", err)
	}
	repo, err := loam.Init(abs, loam.WithStrict(true), loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open template repository %s: %w", abs, err)
	}
	return New(loam.NewTypedRepository[TemplateMetadata](repo)), nil
}

// Get resolves a template by state path.
func (s *Store) Get(ctx context.Context, path string) (prompt.Template, error) {
	doc, err := s.Repo.Get(ctx, path)
	if err == nil {
		return toTemplate(path, doc.Data, doc.Content), nil
	}

	// The path may be declared in frontmatter rather than in the file name.
	docs, listErr := s.Repo.List(ctx)
	if listErr != nil {
		return prompt.Template{}, fmt.Errorf("loam get failed for %s: %w", path, err)
	}
	for _, d := range docs {
		if documentPath(d.ID, d.Data) == path {
			return toTemplate(path, d.Data, d.Content), nil
		}
	}
	return prompt.Template{}, prompt.NotFound(path)
}

// List returns every template path in the repository.
func (s *Store) List(ctx context.Context) ([]string, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		p := documentPath(doc.ID, doc.Data)
		if existing, ok := seen[p]; ok {
			return nil, fmt.Errorf("collision detected: template '%s' is defined in both '%s' and '%s'", p, existing, doc.ID)
		}
		seen[p] = doc.ID
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func toTemplate(path string, meta TemplateMetadata, body string) prompt.Template {
	return prompt.Template{
		Path:    path,
		System:  strings.TrimSpace(meta.System),
		User:    strings.TrimSpace(body),
		Prefill: meta.Prefill,
		Stop:    meta.Stop,
	}
}

func documentPath(docID string, meta TemplateMetadata) string {
	if meta.Path != "" {
		return meta.Path
	}
	return trimExtension(docID)
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
