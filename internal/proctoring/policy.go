package proctoring

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinMaxAttempts = 1
	MaxMaxAttempts = 50
)

var ErrInvalidMaxAttempts = fmt.Errorf("maxAttempts must be between %d and %d", MinMaxAttempts, MaxMaxAttempts)

// Policy holds the enforcement thresholds. Exact numbers are configuration,
// not contract; DefaultPolicy documents the shipped values.
type Policy struct {
	DefaultMaxAttempts     int                             `yaml:"default_max_attempts"`
	HistoryLimit           int                             `yaml:"history_limit"`
	PreserveHistoryOnReset bool                            `yaml:"preserve_history_on_reset"`
	DefaultCooldown        time.Duration                   `yaml:"default_cooldown"`
	Cooldowns              map[DetectionType]time.Duration `yaml:"cooldowns"`
	Tiers                  map[DetectionType]Tier          `yaml:"tiers"`
	LaneIdleTimeout        time.Duration                   `yaml:"lane_idle_timeout"`
}

// DefaultPolicy: 10 attempts, last 50 history entries, history cleared on
// reset, 20s cooldown with 30s for speech and audio signals.
func DefaultPolicy() Policy {
	return Policy{
		DefaultMaxAttempts:     10,
		HistoryLimit:           50,
		PreserveHistoryOnReset: false,
		DefaultCooldown:        20 * time.Second,
		Cooldowns: map[DetectionType]time.Duration{
			SpeakingDetected: 30 * time.Second,
			LoudNoise:        30 * time.Second,
			AudioDetection:   30 * time.Second,
			MouthMovement:    30 * time.Second,
		},
		Tiers:           map[DetectionType]Tier{},
		LaneIdleTimeout: time.Minute,
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.DefaultMaxAttempts < MinMaxAttempts || p.DefaultMaxAttempts > MaxMaxAttempts {
		errs = append(errs, fmt.Errorf("default_max_attempts: %w", ErrInvalidMaxAttempts))
	}
	if p.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}
	if p.DefaultCooldown < 0 {
		errs = append(errs, errors.New("default_cooldown must not be negative"))
	}
	for t, d := range p.Cooldowns {
		if d < 0 {
			errs = append(errs, fmt.Errorf("cooldowns.%s must not be negative", t))
		}
	}
	for t, tier := range p.Tiers {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("tiers.%s: unknown tier %q", t, tier))
		}
	}
	if p.LaneIdleTimeout <= 0 {
		errs = append(errs, errors.New("lane_idle_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Cooldown returns the debounce window for t.
func (p Policy) Cooldown(t DetectionType) time.Duration {
	if d, ok := p.Cooldowns[t]; ok {
		return d
	}
	return p.DefaultCooldown
}

// Classify applies tier overrides on top of the built-in catalog.
func (p Policy) Classify(t DetectionType, confidence *float64) (Severity, Tenths) {
	if tier, ok := p.Tiers[t]; ok {
		return tierCost(tier)
	}
	return Classify(t, confidence)
}
