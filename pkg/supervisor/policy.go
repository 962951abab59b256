package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/core-tools/hsu-deploy/pkg/errors"
)

// RestartPolicy decides whether an exited service may be restarted now
type RestartPolicy interface {
	// Allow reports whether service may be restarted at now; when it may
	// not, the remaining wait is returned.
	Allow(service string, now time.Time) (bool, time.Duration)

	// Restarted records a restart of service at now
	Restarted(service string, now time.Time)
}

// ImmediateRestartPolicy restarts on the first tick that sees an exit.
// There is no backoff, no crash-loop detection and no restart limit.
type ImmediateRestartPolicy struct{}

func (ImmediateRestartPolicy) Allow(service string, now time.Time) (bool, time.Duration) {
	return true, 0
}

func (ImmediateRestartPolicy) Restarted(service string, now time.Time) {}

// BackoffConfig configures the opt-in exponential restart backoff
type BackoffConfig struct {
	Enabled         bool          `yaml:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	Multiplier      float64       `yaml:"multiplier,omitempty"`

	// ResetAfter is how long a restarted service must stay up before its
	// backoff starts over; defaults to MaxInterval.
	ResetAfter time.Duration `yaml:"reset_after,omitempty"`
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2,
	}
}

// ValidateBackoffConfig validates backoff settings
func ValidateBackoffConfig(config BackoffConfig) error {
	if config.InitialInterval <= 0 {
		return errors.NewValidationError("backoff initial_interval must be positive", nil)
	}
	if config.MaxInterval < config.InitialInterval {
		return errors.NewValidationError("backoff max_interval cannot be less than initial_interval", nil)
	}
	if config.Multiplier < 1 {
		return errors.NewValidationError("backoff multiplier must be at least 1", nil)
	}
	if config.ResetAfter < 0 {
		return errors.NewValidationError("backoff reset_after cannot be negative", nil)
	}
	return nil
}

// BackoffRestartPolicy spaces out restarts of a crash-looping service with an
// exponential backoff kept per service name. The first restart is immediate.
type BackoffRestartPolicy struct {
	config   BackoffConfig
	services map[string]*backoffState
}

type backoffState struct {
	backoff     *backoff.ExponentialBackOff
	lastRestart time.Time
	nextAllowed time.Time
}

func NewBackoffRestartPolicy(config BackoffConfig) (*BackoffRestartPolicy, error) {
	if err := ValidateBackoffConfig(config); err != nil {
		return nil, err
	}
	if config.ResetAfter == 0 {
		config.ResetAfter = config.MaxInterval
	}
	return &BackoffRestartPolicy{
		config:   config,
		services: make(map[string]*backoffState),
	}, nil
}

func (p *BackoffRestartPolicy) Allow(service string, now time.Time) (bool, time.Duration) {
	state, ok := p.services[service]
	if !ok {
		return true, 0
	}
	if now.Sub(state.lastRestart) >= p.config.ResetAfter {
		state.backoff.Reset()
		return true, 0
	}
	if now.Before(state.nextAllowed) {
		return false, state.nextAllowed.Sub(now)
	}
	return true, 0
}

func (p *BackoffRestartPolicy) Restarted(service string, now time.Time) {
	state, ok := p.services[service]
	if !ok {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.config.InitialInterval
		b.MaxInterval = p.config.MaxInterval
		b.Multiplier = p.config.Multiplier
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()

		state = &backoffState{backoff: b}
		p.services[service] = state
	}
	state.lastRestart = now
	state.nextAllowed = now.Add(state.backoff.NextBackOff())
}
