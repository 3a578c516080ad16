// Package config loads canopy configuration from a YAML file and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	"github.com/aretw0/canopy/pkg/tot"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	ToT       tot.Config      `koanf:"tot"`
	Router    RouterConfig    `koanf:"router"`
	Store     StoreConfig     `koanf:"store"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Server    ServerConfig    `koanf:"server"`
	Feedback  FeedbackConfig  `koanf:"feedback"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

// LLMConfig selects the completion provider and the dispatcher limits.
type LLMConfig struct {
	Provider       string          `koanf:"provider"` // anthropic or openai
	Model          string          `koanf:"model"`
	APIKey         string          `koanf:"api_key"`
	BaseURL        string          `koanf:"base_url"`
	MaxTokens      int             `koanf:"max_tokens"`
	Concurrency    int             `koanf:"concurrency"`
	RateLimit      float64         `koanf:"rate_limit"` // requests per second, 0 for unlimited
	Burst          int             `koanf:"burst"`
	MaxRepairDepth int             `koanf:"max_repair_depth"`
	Retry          llm.RetryConfig `koanf:"retry"`
}

// RouterConfig tunes worker creation and run locking.
type RouterConfig struct {
	CreateTemperature float64       `koanf:"create_temperature"`
	RunLockTTL        time.Duration `koanf:"run_lock_ttl"`
}

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	Backend       string        `koanf:"backend"` // memory, file or redis
	Dir           string        `koanf:"dir"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`

	// EncryptionKey is a base64 AES-256 key sealing checkpoints at rest.
	EncryptionKey  string   `koanf:"encryption_key"`
	FallbackKeys   []string `koanf:"fallback_keys"`
	RedactPatterns []string `koanf:"redact_patterns"`
}

// WorkspaceConfig locates step files, artifacts, logs and templates.
type WorkspaceConfig struct {
	WorkDir      string `koanf:"work_dir"`
	ArtifactsDir string `koanf:"artifacts_dir"`
	StepLogDir   string `koanf:"step_log_dir"`
	Templates    string `koanf:"templates"`    // loam repository overriding the built-in prompts
	Interpreters string `koanf:"interpreters"` // YAML allow-list of external interpreters
}

// ServerConfig configures `canopy serve`.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// FeedbackConfig configures experience collection.
type FeedbackConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	APIKey  string `koanf:"api_key"`
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format %q (must be text or json)", domain.ErrConfig, c.Log.Format)
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("%w: invalid llm provider %q (must be anthropic or openai)", domain.ErrConfig, c.LLM.Provider)
	}
	if c.LLM.Concurrency < 1 {
		return fmt.Errorf("%w: llm concurrency must be positive", domain.ErrConfig)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("%w: llm rate limit must not be negative", domain.ErrConfig)
	}
	if c.LLM.MaxRepairDepth < 0 {
		return fmt.Errorf("%w: max repair depth must not be negative", domain.ErrConfig)
	}

	if err := c.ToT.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: redis backend requires store.redis_addr", domain.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: invalid store backend %q (must be memory, file or redis)", domain.ErrConfig, c.Store.Backend)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", domain.ErrConfig)
	}
	return nil
}
