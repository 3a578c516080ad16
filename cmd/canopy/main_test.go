package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestGraphCommand(t *testing.T) {
	assert.Contains(t, execute(t, "graph"), "Plan((\"Plan\"))")
	assert.Contains(t, execute(t, "graph", "router"), "AwaitTask((\"AwaitTask\"))")
}

func TestGraphCommand_RejectsUnknown(t *testing.T) {
	rootCmd.SetArgs([]string{"graph", "nope"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "canopy version dev\n", execute(t, "version"))
}

func TestSetup_FlagOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	require.NoError(t, runCmd.ParseFlags([]string{"--log-format", "json", "--log-level", "debug"}))
	t.Cleanup(func() {
		for _, name := range []string{"log-format", "log-level"} {
			f := runCmd.Flags().Lookup(name)
			_ = f.Value.Set("")
			f.Changed = false
		}
	})

	cfg, logger, err := setup(runCmd)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NotNil(t, logger)
}

func TestSetup_InvalidFormat(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	require.NoError(t, runCmd.ParseFlags([]string{"--log-format", "xml"}))
	t.Cleanup(func() {
		f := runCmd.Flags().Lookup("log-format")
		_ = f.Value.Set("")
		f.Changed = false
	})

	_, _, err := setup(runCmd)
	assert.Error(t, err)
}
