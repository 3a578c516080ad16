package prompt

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// RenderError reports a template that failed to parse or execute.
type RenderError struct {
	Path  string
	Field string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s.%s: %v", e.Path, e.Field, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

var funcs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"trim": strings.TrimSpace,
	"join": strings.Join,
}

// Renderer renders templates from a Store.
type Renderer struct {
	store Store
}

// NewRenderer creates a renderer over store.
func NewRenderer(store Store) *Renderer {
	return &Renderer{store: store}
}

// Store returns the underlying store.
func (r *Renderer) Store() Store { return r.store }

// Render resolves path and interpolates every field with vars.
func (r *Renderer) Render(ctx context.Context, path string, vars Vars) (Turn, error) {
	t, err := r.store.Get(ctx, path)
	if err != nil {
		return Turn{}, err
	}

	var turn Turn
	fields := []struct {
		name string
		src  string
		dst  *string
	}{
		{"system", t.System, &turn.System},
		{"user", t.User, &turn.User},
		{"prefill", t.Prefill, &turn.Prefill},
	}
	for _, f := range fields {
		out, err := execute(path, f.name, f.src, vars)
		if err != nil {
			return Turn{}, err
		}
		*f.dst = out
	}
	for i, s := range t.Stop {
		out, err := execute(path, fmt.Sprintf("stop[%d]", i), s, vars)
		if err != nil {
			return Turn{}, err
		}
		turn.Stop = append(turn.Stop, out)
	}
	return turn, nil
}

func execute(path, field, src string, vars Vars) (string, error) {
	if src == "" {
		return "", nil
	}
	tmpl, err := template.New(path + "." + field).Funcs(funcs).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", &RenderError{Path: path, Field: field, Err: err}
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, map[string]any(vars)); err != nil {
		return "", &RenderError{Path: path, Field: field, Err: err}
	}
	return sb.String(), nil
}
