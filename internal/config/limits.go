package config

import "fmt"

// CascadeLimits bounds the size and risk tolerance of a single cascade.
type CascadeLimits struct {
	// MaxCascadeSize caps the number of artifacts a preview may touch
	// before it is flagged CascadeTooLarge instead of executed.
	MaxCascadeSize int `yaml:"max_cascade_size" json:"max_cascade_size"`
	// MaxCascadeDepth caps the number of waves in a single cascade.
	MaxCascadeDepth int `yaml:"max_cascade_depth" json:"max_cascade_depth"`
	// MaxConsecutiveLowConfidence escalates a cascade to human review,
	// pausing it, once this many waves in a row fail to clear the
	// confidence gate.
	MaxConsecutiveLowConfidence int `yaml:"max_consecutive_low_confidence" json:"max_consecutive_low_confidence"`
	// MinWaveConfidence is the gate a wave's confidence score must clear
	// before the next wave is allowed to start.
	MinWaveConfidence float64 `yaml:"min_wave_confidence" json:"min_wave_confidence"`
	// MaxConcurrentRegenerations caps in-flight agent calls within a wave.
	MaxConcurrentRegenerations int `yaml:"max_concurrent_regenerations" json:"max_concurrent_regenerations"`
}

// DefaultCascadeLimits returns the default cascade risk envelope.
func DefaultCascadeLimits() CascadeLimits {
	return CascadeLimits{
		MaxCascadeSize:              50,
		MaxCascadeDepth:             5,
		MaxConsecutiveLowConfidence: 2,
		MinWaveConfidence:           0.7,
		MaxConcurrentRegenerations:  4,
	}
}

// Validate checks that cascade limits are within acceptable ranges.
func (l CascadeLimits) Validate() error {
	if l.MaxCascadeSize < 1 {
		return fmt.Errorf("max_cascade_size must be >= 1")
	}
	if l.MaxCascadeDepth < 1 {
		return fmt.Errorf("max_cascade_depth must be >= 1")
	}
	if l.MaxConsecutiveLowConfidence < 1 {
		return fmt.Errorf("max_consecutive_low_confidence must be >= 1")
	}
	if l.MinWaveConfidence < 0 || l.MinWaveConfidence > 1 {
		return fmt.Errorf("min_wave_confidence must be in [0,1]")
	}
	if l.MaxConcurrentRegenerations < 1 {
		return fmt.Errorf("max_concurrent_regenerations must be >= 1")
	}
	return nil
}
