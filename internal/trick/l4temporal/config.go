package l4temporal

import "github.com/banshee-data/trick.report/internal/config"

// Config controls smoothing of the derivative curves.
type Config struct {
	SmoothingWindow    int
	SmoothingOrder     int
	MinJointConfidence float64
	// Ground is the clip-level snow height. When nil, the lowest ankle
	// height inside the extracted range is used.
	Ground *float64
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SmoothingWindow:    cfg.GetSmoothingWindow(),
		SmoothingOrder:     cfg.GetSmoothingOrder(),
		MinJointConfidence: cfg.GetMinJointConfidence(),
	}
}
