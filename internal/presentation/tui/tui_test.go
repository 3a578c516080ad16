package tui

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|    |___/")
}

func TestStatus(t *testing.T) {
	assert.Contains(t, Status("succeeded"), "succeeded")
	assert.Contains(t, Status("failed"), "failed")
}

func TestRendererFor_NonTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsInteractive(f))
	out, err := RendererFor(f)("# Step 1")
	require.NoError(t, err)
	assert.Equal(t, "# Step 1", out)
}

func TestNewRenderer(t *testing.T) {
	out, err := NewRenderer()("**bold**")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
}
