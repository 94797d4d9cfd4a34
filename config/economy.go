package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FundingPolicyBootstrap = "bootstrap"
	FundingPolicyStrict    = "strict"
)

// Economy holds the game-balance tunables.
type Economy struct {
	FundingPolicy          string        `yaml:"funding_policy"`
	BootstrapBonus         int64         `yaml:"bootstrap_bonus"`
	WarExpiry              time.Duration `yaml:"war_expiry"`
	MiniWarDuration        time.Duration `yaml:"mini_war_duration"`
	MiniWarMaxParticipants int           `yaml:"mini_war_max_participants"`
	ParticipationPercent   int64         `yaml:"participation_percent"`
	MilestoneMultiplier    int64         `yaml:"milestone_multiplier"`
	CompletionPoints       int64         `yaml:"completion_points"`
	StartingBalance        int64         `yaml:"starting_balance"`
}

// DefaultEconomy returns the production defaults.
func DefaultEconomy() Economy {
	return Economy{
		FundingPolicy:          FundingPolicyBootstrap,
		BootstrapBonus:         50,
		WarExpiry:              24 * time.Hour,
		MiniWarDuration:        2 * time.Hour,
		MiniWarMaxParticipants: 8,
		ParticipationPercent:   10,
		MilestoneMultiplier:    2,
		CompletionPoints:       10,
		StartingBalance:        100,
	}
}

// LoadEconomy overlays the YAML file at path on the defaults. An empty path
// yields the defaults.
func LoadEconomy(path string) (Economy, error) {
	eco := DefaultEconomy()
	if path == "" {
		return eco, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return eco, fmt.Errorf("failed to read economy config: %w", err)
	}
	if err := yaml.Unmarshal(data, &eco); err != nil {
		return eco, fmt.Errorf("failed to parse economy config: %w", err)
	}
	if err := eco.Validate(); err != nil {
		return eco, err
	}
	return eco, nil
}

// Validate rejects values the engine cannot run with.
func (e Economy) Validate() error {
	switch e.FundingPolicy {
	case FundingPolicyBootstrap, FundingPolicyStrict:
	default:
		return fmt.Errorf("funding_policy must be %q or %q, got %q", FundingPolicyBootstrap, FundingPolicyStrict, e.FundingPolicy)
	}
	if e.BootstrapBonus < 0 {
		return fmt.Errorf("bootstrap_bonus must be >= 0")
	}
	if e.WarExpiry <= 0 || e.MiniWarDuration <= 0 {
		return fmt.Errorf("war_expiry and mini_war_duration must be positive")
	}
	if e.MiniWarMaxParticipants < 2 || e.MiniWarMaxParticipants > 8 {
		return fmt.Errorf("mini_war_max_participants must be between 2 and 8")
	}
	if e.ParticipationPercent < 0 || e.ParticipationPercent > 100 {
		return fmt.Errorf("participation_percent must be between 0 and 100")
	}
	if e.MilestoneMultiplier < 1 || e.CompletionPoints < 1 {
		return fmt.Errorf("milestone_multiplier and completion_points must be positive")
	}
	if e.StartingBalance < 0 {
		return fmt.Errorf("starting_balance must be >= 0")
	}
	return nil
}
