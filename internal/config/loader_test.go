package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canopy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 4000, cfg.LLM.MaxTokens)
	assert.Equal(t, 8, cfg.LLM.Concurrency)
	assert.Equal(t, 3, cfg.LLM.MaxRepairDepth)
	assert.Equal(t, 3, cfg.ToT.Plans)
	assert.Equal(t, 3, cfg.ToT.Proposals)
	assert.Equal(t, 3, cfg.ToT.Voters)
	assert.Equal(t, 0.0, cfg.ToT.Temperature)
	assert.Equal(t, 25, cfg.ToT.MaxSteps)
	assert.Equal(t, "pairwise", cfg.ToT.Strategy)
	assert.Equal(t, 0.7, cfg.Router.CreateTemperature)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
llm:
  provider: openai
  model: gpt-4o
  api_key: from-file
  retry:
    max_attempts: 5
    backoff_base: 100ms
tot:
  plans: 5
  strategy: category
store:
  backend: redis
  redis_addr: localhost:6379
  ttl: 1h
`)
	t.Setenv("CANOPY_LLM_API_KEY", "from-env")
	t.Setenv("CANOPY_TOT_MAX_STEPS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.LLM.Retry.BackoffBase)
	assert.Equal(t, 5, cfg.ToT.Plans)
	assert.Equal(t, 3, cfg.ToT.Voters)
	assert.Equal(t, 7, cfg.ToT.MaxSteps)
	assert.Equal(t, "category", cfg.ToT.Strategy)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log format", "log:\n  format: xml\n"},
		{"provider", "llm:\n  provider: local\n"},
		{"backend", "store:\n  backend: sqlite\n"},
		{"redis without addr", "store:\n  backend: redis\n"},
		{"negative fan-out", "tot:\n  voters: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestLoad_UnboundedSteps(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, "tot:\n  max_steps: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.ToT.MaxSteps)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "llm.api_key", envKey("CANOPY_LLM_API_KEY"))
	assert.Equal(t, "tot.max_steps", envKey("CANOPY_TOT_MAX_STEPS"))
	assert.Equal(t, "debug", envKey("CANOPY_DEBUG"))
}
