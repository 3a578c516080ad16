package llm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry configuration for generation requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per completion.
	MaxAttempts int `koanf:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `koanf:"backoff_base"`

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration `koanf:"max_backoff"`
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// BackOff builds the backoff policy for one completion.
func (c RetryConfig) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.BackoffBase > 0 {
		b.InitialInterval = c.BackoffBase
	}
	if c.BackoffMultiplier > 0 {
		b.Multiplier = c.BackoffMultiplier
	}
	if c.MaxBackoff > 0 {
		b.MaxInterval = c.MaxBackoff
	}
	b.MaxElapsedTime = 0

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}
