package l1signals

import (
	"github.com/banshee-data/trick.report/internal/config"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Config holds the signal derivation thresholds.
type Config struct {
	Stance pose.Stance
	Trick  pose.TrickType

	MinJointConfidence       float64 // joints below this are ignored
	MaxInvalidFraction       float64 // over this fraction invalid fails a required signal
	EdgeDeadbandDeg          float64 // |edge angle| inside this band keeps the current edge
	TakeoffClearanceFraction float64 // ankle clearance / leg length at which the ratio reaches 1
	GroundPercentile         float64 // ankle height percentile taken as the ground
	ArmReachThreshold        float64 // reach (shoulder widths) past which arms point toward nose/tail
	FormVarianceWindow       int     // trailing window for form variance
}

// DefaultConfig returns the built-in defaults for a regular-stance straight air.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig(), pose.Regular, pose.StraightAir)
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig, stance pose.Stance, trick pose.TrickType) Config {
	return Config{
		Stance:                   stance,
		Trick:                    trick,
		MinJointConfidence:       cfg.GetMinJointConfidence(),
		MaxInvalidFraction:       cfg.GetMaxInvalidFraction(),
		EdgeDeadbandDeg:          cfg.GetEdgeDeadbandDeg(),
		TakeoffClearanceFraction: cfg.GetTakeoffClearanceFraction(),
		GroundPercentile:         cfg.GetGroundPercentile(),
		ArmReachThreshold:        cfg.GetArmReachThreshold(),
		FormVarianceWindow:       cfg.GetFormVarianceWindow(),
	}
}
