package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/tot"
)

// EnvPrefix marks the environment variables read by Load.
const EnvPrefix = "CANOPY_"

const maxConfigFileSize = 1024 * 1024

// Load reads configuration from the YAML file at path (skipped when empty),
// then overrides it with CANOPY_ environment variables.
//
// Variables map onto a section and a field, split on the first underscore
// after the prefix:
//
//	CANOPY_LLM_API_KEY     -> llm.api_key
//	CANOPY_TOT_MAX_STEPS   -> tot.max_steps
//	CANOPY_STORE_BACKEND   -> store.backend
//
// Provider keys fall back to ANTHROPIC_API_KEY or OPENAI_API_KEY.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = llm.DefaultMaxTokens
	}
	if cfg.LLM.Concurrency == 0 {
		cfg.LLM.Concurrency = 8
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.MaxRepairDepth == 0 {
		cfg.LLM.MaxRepairDepth = 3
	}
	retry := llm.DefaultRetryConfig()
	if cfg.LLM.Retry.MaxAttempts == 0 {
		cfg.LLM.Retry.MaxAttempts = retry.MaxAttempts
	}
	if cfg.LLM.Retry.BackoffBase == 0 {
		cfg.LLM.Retry.BackoffBase = retry.BackoffBase
	}
	if cfg.LLM.Retry.BackoffMultiplier == 0 {
		cfg.LLM.Retry.BackoffMultiplier = retry.BackoffMultiplier
	}
	if cfg.LLM.Retry.MaxBackoff == 0 {
		cfg.LLM.Retry.MaxBackoff = retry.MaxBackoff
	}

	def := tot.DefaultConfig()
	if cfg.ToT.Plans == 0 {
		cfg.ToT.Plans = def.Plans
	}
	if cfg.ToT.Proposals == 0 {
		cfg.ToT.Proposals = def.Proposals
	}
	if cfg.ToT.Voters == 0 {
		cfg.ToT.Voters = def.Voters
	}
	if cfg.ToT.MaxSteps == 0 {
		cfg.ToT.MaxSteps = def.MaxSteps
	}
	if cfg.ToT.Strategy == "" {
		cfg.ToT.Strategy = def.Strategy
	}

	if cfg.Router.CreateTemperature == 0 {
		cfg.Router.CreateTemperature = 0.7
	}
	if cfg.Router.RunLockTTL == 0 {
		cfg.Router.RunLockTTL = 30 * time.Minute
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = ".canopy/runs"
	}

	if cfg.Workspace.ArtifactsDir == "" {
		cfg.Workspace.ArtifactsDir = "artifacts"
	}
	if cfg.Workspace.StepLogDir == "" {
		cfg.Workspace.StepLogDir = ".canopy/logs"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}
