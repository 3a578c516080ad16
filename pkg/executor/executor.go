package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/canopy/internal/logging"
)

// PriorCodeName is the base name of the condensed code file.
const PriorCodeName = "prior_code"

var (
	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("executor is closed")

	// ErrStepNotFound is returned when executing a step that was never written.
	ErrStepNotFound = errors.New("step file not found")

	// ErrUnsupportedLanguage is returned when no runtime serves a language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

var stepFilePattern = regexp.MustCompile(`^step_(\d+)(\.[A-Za-z0-9]+)$`)

// Executor owns a session directory and the execution contexts for one workflow run.
type Executor struct {
	dir      string
	console  io.Writer
	primary  string
	runtimes map[string]Runtime
	logger   *slog.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Option configures an Executor.
type Option func(*Executor)

// WithConsole sets where step stdout is mirrored live (default: io.Discard).
func WithConsole(w io.Writer) Option {
	return func(e *Executor) {
		e.console = w
	}
}

// WithInterpreters enables allow-listed external interpreters.
func WithInterpreters(cfgs ...InterpreterConfig) Option {
	return func(e *Executor) {
		for _, c := range cfgs {
			rt := NewInterpreter(c, e.dir)
			e.runtimes[rt.Language()] = rt
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates the session directory and a persistent Lua context.
func New(dir string, opts ...Option) (*Executor, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	lrt, err := NewLuaRuntime()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	e := &Executor{
		dir:      dir,
		console:  io.Discard,
		primary:  lrt.Language(),
		runtimes: map[string]Runtime{lrt.Language(): lrt},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dir returns the session directory.
func (e *Executor) Dir() string { return e.dir }

// Primary returns the language of the persistent runtime.
func (e *Executor) Primary() string { return e.primary }

// Supports reports whether a runtime serves lang.
func (e *Executor) Supports(lang string) bool {
	_, ok := e.runtimes[normalize(lang)]
	return ok
}

// Languages lists the served languages, sorted.
func (e *Executor) Languages() []string {
	out := make([]string, 0, len(e.runtimes))
	for l := range e.runtimes {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// WriteStep stores code for step n in the primary language.
func (e *Executor) WriteStep(code string, n int) error {
	return e.WriteStepAs(e.primary, code, n)
}

// WriteStepAs stores code for step n in lang, replacing any previous file for n.
func (e *Executor) WriteStepAs(lang, code string, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	rt, ok := e.runtimes[normalize(lang)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	if old, err := e.stepPath(n); err == nil {
		_ = os.Remove(old)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("step_%d%s", n, rt.Ext()))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("failed to write step %d: %w", n, err)
	}
	return nil
}

// ExecuteStep evaluates step n and returns its captured stdout and stderr.
// Stdout is mirrored to the console as it is produced. Failures of the code
// itself are rendered into stderr; err is reserved for structural problems.
func (e *Executor) ExecuteStep(ctx context.Context, n int) (stdout, stderr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", "", ErrClosed
	}

	path, err := e.stepPath(n)
	if err != nil {
		return "", "", err
	}
	rt := e.runtimeForExt(filepath.Ext(path))
	if rt == nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filepath.Ext(path))
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read step %d: %w", n, err)
	}

	var outBuf, errBuf bytes.Buffer
	out := io.MultiWriter(&outBuf, e.console)

	if runErr := rt.Run(ctx, path, string(code), out, &errBuf); runErr != nil {
		if errBuf.Len() == 0 {
			errBuf.WriteString(runErr.Error())
		}
		e.logger.Debug("step raised", "step", n, "language", rt.Language(), "err", runErr)
	}

	return outBuf.String(), errBuf.String(), nil
}

// Condense appends every pending step file to prior_code<ext>, in ascending
// step order and grouped by language, under a comment header holding task.
// The step files are deleted. It returns the condensed sections by language.
// With no pending step files it changes nothing and returns nil.
func (e *Executor) Condense(task string) ([]Condensed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	pending, err := e.pendingSteps()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	byExt := make(map[string][]stepFile)
	for _, s := range pending {
		byExt[s.ext] = append(byExt[s.ext], s)
	}
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	var out []Condensed
	for _, ext := range exts {
		rt := e.runtimeForExt(ext)
		comment := "#"
		lang := strings.TrimPrefix(ext, ".")
		if rt != nil {
			comment = rt.Comment()
			lang = rt.Language()
		}

		var sb strings.Builder
		for _, line := range strings.Split(strings.TrimRight(task, "\n"), "\n") {
			fmt.Fprintf(&sb, "%s %s\n", comment, line)
		}
		for _, s := range byExt[ext] {
			code, err := os.ReadFile(s.path)
			if err != nil {
				return out, fmt.Errorf("failed to read step %d: %w", s.num, err)
			}
			fmt.Fprintf(&sb, "%s <step_%d>\n", comment, s.num)
			sb.WriteString(strings.TrimSpace(string(code)))
			sb.WriteString("\n")
			fmt.Fprintf(&sb, "%s </step_%d>\n\n", comment, s.num)
		}

		target := filepath.Join(e.dir, PriorCodeName+ext)
		f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return out, fmt.Errorf("failed to open %s: %w", target, err)
		}
		if _, err := f.WriteString(sb.String()); err != nil {
			_ = f.Close()
			return out, fmt.Errorf("failed to append %s: %w", target, err)
		}
		if err := f.Close(); err != nil {
			return out, fmt.Errorf("failed to close %s: %w", target, err)
		}

		for _, s := range byExt[ext] {
			if err := os.Remove(s.path); err != nil {
				return out, fmt.Errorf("failed to remove step %d: %w", s.num, err)
			}
		}

		out = append(out, Condensed{Language: lang, Ext: ext, Path: target, Section: sb.String()})
	}
	return out, nil
}

// Condensed describes the code folded for one language by Condense.
type Condensed struct {
	Language string
	Ext      string
	Path     string
	Section  string
}

// Close releases every runtime and removes the session directory.
// Only the first call does any work; later calls return the same result.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true

		var errs []error
		for _, rt := range e.runtimes {
			if err := rt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := os.RemoveAll(e.dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove session directory: %w", err))
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

type stepFile struct {
	num  int
	ext  string
	path string
}

// pendingSteps lists step files sorted by numeric step, not by name.
func (e *Executor) pendingSteps() ([]stepFile, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}
	var steps []stepFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := stepFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		steps = append(steps, stepFile{num: n, ext: m[2], path: filepath.Join(e.dir, entry.Name())})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].num < steps[j].num })
	return steps, nil
}

func (e *Executor) stepPath(n int) (string, error) {
	matches, err := filepath.Glob(filepath.Join(e.dir, fmt.Sprintf("step_%d.*", n)))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: step %d in %s", ErrStepNotFound, n, e.dir)
	}
	return matches[0], nil
}

func (e *Executor) runtimeForExt(ext string) Runtime {
	for _, rt := range e.runtimes {
		if rt.Ext() == ext {
			return rt
		}
	}
	return nil
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
