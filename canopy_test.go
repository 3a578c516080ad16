package canopy_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/llm/llmtest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Workspace.WorkDir = dir
	cfg.Workspace.ArtifactsDir = filepath.Join(dir, "artifacts")
	cfg.Workspace.StepLogDir = filepath.Join(dir, "logs")
	return cfg
}

func routing(req llm.Request) bool  { return strings.Contains(req.System, "You route tasks") }
func creating(req llm.Request) bool { return strings.Contains(req.System, "You create new workers") }

func helloGenerator() *llmtest.Scripted {
	return llmtest.New().
		On(routing, "<name></name>").
		On(creating, "<name>greeter</name><description>Greets people.</description>").
		On(llmtest.Prefill("<step_1><plan>"), "Print hello.").
		On(llmtest.Prefill("<step_1><implementation>"), "\nprint(\"hello\")\n").
		On(llmtest.User("Is the whole task complete"), "<complete>yes</complete><error>no</error>")
}

func TestEngine_HandleEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()

	e, err := canopy.New(context.Background(), cfg,
		canopy.WithGenerator(helloGenerator()),
		canopy.WithRegisterer(reg),
	)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Handle(context.Background(), "print hello")
	require.NoError(t, err)

	assert.True(t, out.Created)
	assert.Equal(t, "greeter", out.Worker)
	require.NotNil(t, out.Result)
	assert.Equal(t, domain.RunSucceeded, out.Result.Status)
	assert.Contains(t, out.Result.Artifact, "print(\"hello\")")

	cp, err := e.Store.Load(context.Background(), out.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "greeter", cp.Worker)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.Runs.WithLabelValues("succeeded")))
	assert.Equal(t, []string{"greeter"}, e.Registry.Names())

	entries, err := os.ReadDir(cfg.Workspace.StepLogDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEngine_FileStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "file"
	cfg.Store.Dir = filepath.Join(t.TempDir(), "runs")

	e, err := canopy.New(context.Background(), cfg,
		canopy.WithGenerator(helloGenerator()),
		canopy.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Handle(context.Background(), "print hello")
	require.NoError(t, err)

	ids, err := e.Store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{out.Result.RunID}, ids)
}

func TestNewGenerator(t *testing.T) {
	_, err := canopy.NewGenerator(config.LLMConfig{Provider: "local"})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = canopy.NewGenerator(config.LLMConfig{Provider: "anthropic"})
	assert.Error(t, err)

	gen, err := canopy.NewGenerator(config.LLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestNew_MissingProviderKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	_, err := canopy.New(context.Background(), cfg, canopy.WithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestEngine_EncryptedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "file"
	cfg.Store.Dir = filepath.Join(t.TempDir(), "runs")
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	e, err := canopy.New(context.Background(), cfg,
		canopy.WithGenerator(helloGenerator()),
		canopy.WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Handle(context.Background(), "print hello")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, out.Result.RunID+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "print hello")

	cp, err := e.Store.Load(context.Background(), out.Result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "print hello", cp.Task)
}

func TestNew_BadEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.EncryptionKey = "short"

	_, err := canopy.New(context.Background(), cfg,
		canopy.WithGenerator(helloGenerator()),
		canopy.WithRegisterer(prometheus.NewRegistry()),
	)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
