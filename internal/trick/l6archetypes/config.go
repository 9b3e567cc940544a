package l6archetypes

import "github.com/banshee-data/trick.report/internal/config"

// Config holds the rule thresholds.
type Config struct {
	Limit                 int
	RotationDeltaDeg      float64 // chest rotation error, degrees
	TimingThresholdMs     float64
	AsymmetryThreshold    float64 // drop in left/right ankle coordination
	PopDeficitThreshold   float64 // hip peak velocity shortfall, fraction of reference
	StiffnessThreshold    float64 // knee flexion shortfall, fraction of reference
	ArmFlailThreshold     float64 // wrist smoothness shortfall
	CoordinationThreshold float64
	PrematurePeakFraction float64 // peak before this fraction of the phase counts as early
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Limit:                 cfg.GetArchetypeLimit(),
		RotationDeltaDeg:      cfg.GetRotationDeltaThresholdDeg(),
		TimingThresholdMs:     cfg.GetTimingThresholdMs(),
		AsymmetryThreshold:    cfg.GetAsymmetryThreshold(),
		PopDeficitThreshold:   cfg.GetPopDeficitThreshold(),
		StiffnessThreshold:    cfg.GetStiffnessThreshold(),
		ArmFlailThreshold:     cfg.GetArmFlailThreshold(),
		CoordinationThreshold: cfg.GetCoordinationThreshold(),
		PrematurePeakFraction: 1.0 / 3,
	}
}
