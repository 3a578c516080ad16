package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/canopy/pkg/adapters/file"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, domain.NewCheckpoint("run", "w", "t")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.json", entries[0].Name())
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "absent"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_EmptyRunID(t *testing.T) {
	store := file.New(t.TempDir())
	assert.Error(t, store.Save(context.Background(), &domain.Checkpoint{}))
	_, err := store.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestStepLog_Transcript(t *testing.T) {
	log := file.NewStepLog(t.TempDir())
	ctx := context.Background()

	cp := domain.NewCheckpoint("r1", "coder", "print hello")
	require.NoError(t, log.Begin(ctx, cp))
	require.NoError(t, log.AppendStep(ctx, "r1", &domain.Step{
		Number:         1,
		Plan:           "Print a greeting.",
		Implementation: "```lua\nprint(\"hello\")\n```",
		Stdout:         "hello\n",
		ExecBallots:    []string{"<complete>yes</complete>"},
		CompleteRatio:  1,
	}))
	require.NoError(t, log.End(ctx, "r1", domain.RunSucceeded, "great\nwork"))

	data, err := os.ReadFile(log.Path("r1"))
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "# Run r1")
	assert.Contains(t, text, "> print hello")
	assert.Contains(t, text, "## Step 1")
	assert.Contains(t, text, "```text\nhello\n```")
	assert.Contains(t, text, "_(empty)_")
	assert.Contains(t, text, "complete 1.00, error 0.00")
	assert.Contains(t, text, "## Result: succeeded")
	assert.Contains(t, text, "> great\n> work")

	assert.Less(t, strings.Index(text, "## Step 1"), strings.Index(text, "## Result"))
}
