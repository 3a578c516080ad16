package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

// StepLog implements ports.StepLog as one Markdown transcript per run.
// Every append is fsynced before returning.
type StepLog struct {
	BasePath string

	mu sync.Mutex
}

// NewStepLog creates a step log rooted at basePath.
// If basePath is empty, it defaults to ".canopy/logs".
func NewStepLog(basePath string) *StepLog {
	if basePath == "" {
		basePath = filepath.Join(".canopy", "logs")
	}
	return &StepLog{BasePath: basePath}
}

// Path returns the transcript file of a run.
func (l *StepLog) Path(runID string) string {
	return filepath.Join(l.BasePath, runID+".md")
}

// Begin writes the run header.
func (l *StepLog) Begin(ctx context.Context, cp *domain.Checkpoint) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", cp.RunID)
	fmt.Fprintf(&sb, "- worker: %s\n", cp.Worker)
	fmt.Fprintf(&sb, "- started: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	sb.WriteString("## Task\n\n")
	sb.WriteString(quote(cp.Task))
	sb.WriteString("\n")
	return l.append(cp.RunID, sb.String())
}

// AppendStep writes one closed step.
func (l *StepLog) AppendStep(ctx context.Context, runID string, step *domain.Step) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Step %d\n\n", step.Number)
	sb.WriteString("### Plan\n\n")
	sb.WriteString(strings.TrimSpace(step.Plan))
	sb.WriteString("\n\n### Implementation\n\n")
	sb.WriteString(strings.TrimSpace(step.Implementation))
	sb.WriteString("\n\n### Stdout\n\n")
	sb.WriteString(block(step.Stdout))
	sb.WriteString("\n### Stderr\n\n")
	sb.WriteString(block(step.Stderr))
	if len(step.ExecBallots) > 0 {
		fmt.Fprintf(&sb, "\n_verification: complete %.2f, error %.2f_\n", step.CompleteRatio, step.ErrorRatio)
	}
	return l.append(runID, sb.String())
}

// End writes the final status and an optional note.
func (l *StepLog) End(ctx context.Context, runID string, status domain.RunStatus, note string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Result: %s\n", status)
	if note = strings.TrimSpace(note); note != "" {
		sb.WriteString("\n")
		sb.WriteString(quote(note))
	}
	return l.append(runID, sb.String())
}

func (l *StepLog) append(runID, text string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure log directory: %w", err)
	}
	f, err := os.OpenFile(l.Path(runID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open step log: %w", err)
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append step log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync step log: %w", err)
	}
	return f.Close()
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n") + "\n"
}

func block(s string) string {
	if s == "" {
		return "_(empty)_\n"
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return "```text\n" + s + "```\n"
}
