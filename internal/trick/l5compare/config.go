package l5compare

import "github.com/banshee-data/trick.report/internal/config"

// Config holds comparison thresholds.
type Config struct {
	ResampleCount         int
	MagnitudeThreshold    float64 // position delta as a fraction of the reference peak
	TimingThresholdMs     float64
	CoordinationThreshold float64 // absolute change in Pearson coordination
	MismatchThreshold     float64
	PartWeights           map[string]float64 // missing parts weigh 1
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ResampleCount:         cfg.GetResampleCount(),
		MagnitudeThreshold:    cfg.GetMagnitudeThreshold(),
		TimingThresholdMs:     cfg.GetTimingThresholdMs(),
		CoordinationThreshold: cfg.GetCoordinationThreshold(),
		MismatchThreshold:     cfg.GetMismatchThreshold(),
		PartWeights:           cfg.GetPartWeights(),
	}
}

func (c Config) weight(part string) float64 {
	if w, ok := c.PartWeights[part]; ok {
		return w
	}
	return 1
}
