package ser

import (
	"fmt"
	"math"
)

// Params holds the scalar run parameters. They are fixed for the run.
type Params struct {
	// Steps is the total number of snapshots produced (n_steps).
	Steps int `json:"steps" yaml:"steps"`

	// Transient is the number of leading snapshots discarded before
	// recording starts (thermalization).
	Transient int `json:"transient" yaml:"transient"`

	// SpontaneousProb is the per-step probability that a Quiescent node
	// activates on its own (ri).
	SpontaneousProb float64 `json:"ri" yaml:"ri"`

	// RecoveryProb is the per-step probability that a Refractory node
	// returns to Quiescent (rf).
	RecoveryProb float64 `json:"rf" yaml:"rf"`

	// PropActive is the fraction of nodes that start Excited.
	PropActive float64 `json:"prop_active" yaml:"prop_active"`

	// Threshold is the weighted Excited input a Quiescent node must exceed
	// to be driven into the Excited state (T).
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Seed seeds the run's generator.
	Seed int64 `json:"seed" yaml:"seed"`
}

// RecordedSteps returns the number of rows a run with these parameters
// produces.
func (p Params) RecordedSteps() int {
	return p.Steps - p.Transient
}

// Validate checks the parameter ranges. Every failure wraps ErrConfig.
func (p Params) Validate() error {
	if p.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d: %w", p.Steps, ErrConfig)
	}
	if p.Transient < 0 {
		return fmt.Errorf("transient must be non-negative, got %d: %w", p.Transient, ErrConfig)
	}
	if p.Transient >= p.Steps {
		return fmt.Errorf("transient (%d) must be smaller than steps (%d): %w", p.Transient, p.Steps, ErrConfig)
	}
	for _, pr := range []struct {
		name string
		v    float64
	}{
		{"ri", p.SpontaneousProb},
		{"rf", p.RecoveryProb},
		{"prop_active", p.PropActive},
	} {
		if math.IsNaN(pr.v) || pr.v < 0 || pr.v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v: %w", pr.name, pr.v, ErrConfig)
		}
	}
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("threshold must be finite, got %v: %w", p.Threshold, ErrConfig)
	}
	return nil
}
