package tot

import (
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// Config sizes the fan-outs of a worker.
type Config struct {
	// Plans is the number of plan candidates generated per step.
	Plans int `koanf:"plans"`
	// Proposals is the number of implementation candidates per step.
	Proposals int `koanf:"proposals"`
	// Voters is the number of ballots per vote.
	Voters int `koanf:"voters"`
	// Temperature is the exploration temperature of every fan-out.
	Temperature float64 `koanf:"temperature"`
	// MaxSteps bounds the steps of one run. Zero or a negative value
	// disables the bound; config loading turns zero into the default,
	// so files disable it with -1.
	MaxSteps int `koanf:"max_steps"`
	// Strategy names the vote.Strategy ("pairwise" or "category").
	Strategy string `koanf:"strategy"`
	// Language is the fenced language implementations are requested in.
	// Empty selects the executor's persistent runtime.
	Language string `koanf:"language"`
}

// DefaultConfig returns the stock fan-out sizes.
func DefaultConfig() Config {
	return Config{
		Plans:       3,
		Proposals:   3,
		Voters:      3,
		Temperature: 0.0,
		MaxSteps:    25,
		Strategy:    "pairwise",
	}
}

// Validate rejects non-positive fan-outs.
func (c Config) Validate() error {
	if c.Plans < 1 || c.Proposals < 1 || c.Voters < 1 {
		return fmt.Errorf("%w: plans, proposals and voters must be positive (got %d, %d, %d)",
			domain.ErrConfig, c.Plans, c.Proposals, c.Voters)
	}
	return nil
}
