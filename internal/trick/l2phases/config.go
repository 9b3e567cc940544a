package l2phases

import (
	"github.com/banshee-data/trick.report/internal/config"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Config holds the segmentation thresholds.
type Config struct {
	Trick pose.TrickType

	EdgeDeadbandDeg       float64 // heel/toe classification band
	EdgeSmoothingWindow   int     // Savitzky-Golay window for the edge angle
	EdgeChangeBandDeg     float64 // |smoothed edge| inside this band belongs to the edge change
	MinAirFrames          int     // sustained frames above ratio 1.0 for a takeoff candidate
	MaxCrossingGap        int     // invalid ratio samples a crossing may span
	TakeoffDominanceRatio float64 // longest run / runner-up needed to resolve several candidates
	WindUpDeclineDeg      float64 // rotation drop that ends the wind-up search
	ArmTrendMin           float64 // reach change over two frames that counts as trending
	GrabProximity         float64 // wrist-to-board distance in leg lengths
	MinGrabFrames         int
	LandingImpactFactor   float64 // impact |acc| relative to the median |acc|
	LandingImpactWindow   int     // frames either side of the landing frame searched for impact
	RideAwayThreshold     float64 // form variance below which the rider is stable
	RideAwayStableFrames  int
	SnapSweetspotMin      float64 // deg/s
	SnapSweetspotMax      float64 // deg/s
}

// DefaultConfig returns the built-in defaults for a straight air.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig(), pose.StraightAir)
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig, trick pose.TrickType) Config {
	return Config{
		Trick:                 trick,
		EdgeDeadbandDeg:       cfg.GetEdgeDeadbandDeg(),
		EdgeSmoothingWindow:   cfg.GetEdgeSmoothingWindow(),
		EdgeChangeBandDeg:     cfg.GetEdgeChangeBandDeg(),
		MinAirFrames:          cfg.GetMinAirFrames(),
		MaxCrossingGap:        cfg.GetMaxCrossingGapFrames(),
		TakeoffDominanceRatio: cfg.GetTakeoffDominanceRatio(),
		WindUpDeclineDeg:      cfg.GetWindUpDeclineDeg(),
		ArmTrendMin:           cfg.GetArmTrendMin(),
		GrabProximity:         cfg.GetGrabProximityFraction(),
		MinGrabFrames:         cfg.GetMinGrabFrames(),
		LandingImpactFactor:   cfg.GetLandingImpactFactor(),
		LandingImpactWindow:   cfg.GetLandingImpactWindow(),
		RideAwayThreshold:     cfg.GetRideAwayStabilityThreshold(),
		RideAwayStableFrames:  cfg.GetRideAwayStableFrames(),
		SnapSweetspotMin:      cfg.GetSnapSweetspotMinDegPerSec(),
		SnapSweetspotMax:      cfg.GetSnapSweetspotMaxDegPerSec(),
	}
}
