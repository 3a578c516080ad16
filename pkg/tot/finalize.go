package tot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

const runDirPrefix = "run-"

func nowUTC() time.Time { return time.Now().UTC() }

func (w *Worker) fail(ctx context.Context, r *run, cause error) (*Result, error) {
	return w.finish(ctx, r, domain.RunFailed, cause)
}

// finish condenses the run's code, persists the final checkpoint, collects
// feedback and closes the step log. It runs on a context detached from
// cancellation so an interrupted run is still finalized.
//
// The Result is returned even when the run failed.
func (w *Worker) finish(ctx context.Context, r *run, status domain.RunStatus, cause error) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	logger := w.logger.With("run_id", r.cp.RunID)
	errs := []error{cause}

	artifact, err := w.condense(r)
	if err != nil {
		logger.Error("failed to condense run code", "err", err)
		errs = append(errs, &StateError{Path: w.machine.Current().Path(), Op: "condense", Err: err})
	}

	r.cp.Status = status
	r.cp.Artifact = artifact
	if cause != nil {
		r.cp.Error = cause.Error()
	}

	res := &Result{
		RunID:    r.cp.RunID,
		Status:   status,
		Steps:    r.closed,
		Artifact: artifact,
	}

	note := r.cp.Error
	if status == domain.RunSucceeded && w.feedback != nil {
		exp, err := w.feedback.Collect(ctx, r.cp, r.closed)
		switch {
		case err != nil:
			logger.Warn("failed to collect feedback", "err", err)
		case exp != nil:
			res.Experience = exp
			note = describe(exp)
		}
	}

	w.checkpoint(ctx, r)
	if w.stepLog != nil {
		if err := w.stepLog.End(ctx, r.cp.RunID, status, note); err != nil {
			logger.Warn("failed to close step log", "err", err)
		}
	}
	if w.hooks.OnRunEnd != nil {
		w.hooks.OnRunEnd(ctx, &domain.RunEvent{
			EventBase: domain.EventBase{Timestamp: nowUTC(), Type: domain.EventRunEnd, RunID: r.cp.RunID},
			Status:    status,
		})
	}

	logger.Info("run finished", "status", status, "steps", len(r.closed), "artifact", artifact)
	return res, errors.Join(errs...)
}

// condense folds the run's step files and, when artifacts are enabled,
// copies the condensed code into a fresh run directory.
func (w *Worker) condense(r *run) (string, error) {
	sections, err := w.exec.Condense(r.cp.Task)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 || w.artifactsDir == "" {
		return "", nil
	}

	dir, err := nextRunDir(filepath.Join(w.artifactsDir, w.name))
	if err != nil {
		return "", err
	}
	for _, s := range sections {
		target := filepath.Join(dir, filepath.Base(s.Path))
		if err := os.WriteFile(target, []byte(s.Section), 0o644); err != nil {
			return dir, fmt.Errorf("failed to write artifact: %w", err)
		}
	}
	return dir, nil
}

// nextRunDir creates base/run-<k> with k one past the highest existing run.
func nextRunDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("failed to list artifacts directory: %w", err)
	}
	k := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runDirPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), runDirPrefix)); err == nil && n > k {
			k = n
		}
	}
	for {
		k++
		dir := filepath.Join(base, runDirPrefix+strconv.Itoa(k))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
	}
}

func describe(exp *domain.Experience) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "feedback (%s): %s", exp.Rating, strings.TrimSpace(exp.Summary))
	if s := strings.TrimSpace(exp.Suggestion); s != "" {
		fmt.Fprintf(&sb, "\nsuggestion: %s", s)
	}
	return sb.String()
}
