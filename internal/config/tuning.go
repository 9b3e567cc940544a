package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// The Get* accessors below return the same values when a field is unset,
// so an empty TuningConfig behaves exactly like the defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds every threshold used by the analysis layers.
// The schema matches the /api/config endpoint so the same JSON can be
// used for startup configuration and for inspection.
type TuningConfig struct {
	// Signal deriver
	MinJointConfidence       *float64 `json:"min_joint_confidence,omitempty"`
	MaxInvalidFraction       *float64 `json:"max_invalid_fraction,omitempty"`
	EdgeDeadbandDeg          *float64 `json:"edge_deadband_deg,omitempty"`
	TakeoffClearanceFraction *float64 `json:"takeoff_clearance_fraction,omitempty"`
	GroundPercentile         *float64 `json:"ground_percentile,omitempty"`
	ArmReachThreshold        *float64 `json:"arm_reach_threshold,omitempty"`
	FormVarianceWindow       *int     `json:"form_variance_window,omitempty"`

	// Phase segmenter
	EdgeSmoothingWindow         *int     `json:"edge_smoothing_window,omitempty"`
	EdgeChangeBandDeg           *float64 `json:"edge_change_band_deg,omitempty"`
	MinAirFrames                *int     `json:"min_air_frames,omitempty"`
	MaxCrossingGapFrames        *int     `json:"max_crossing_gap_frames,omitempty"`
	TakeoffDominanceRatio       *float64 `json:"takeoff_dominance_ratio,omitempty"`
	WindUpDeclineDeg            *float64 `json:"windup_decline_deg,omitempty"`
	ArmTrendMin                 *float64 `json:"arm_trend_min,omitempty"`
	GrabProximityFraction       *float64 `json:"grab_proximity_fraction,omitempty"`
	MinGrabFrames               *int     `json:"min_grab_frames,omitempty"`
	LandingImpactFactor         *float64 `json:"landing_impact_factor,omitempty"`
	LandingImpactWindow         *int     `json:"landing_impact_window,omitempty"`
	RideAwayStabilityThreshold  *float64 `json:"ride_away_stability_threshold,omitempty"`
	RideAwayStableFrames        *int     `json:"ride_away_stable_frames,omitempty"`
	SnapSweetspotMinDegPerSec   *float64 `json:"snap_sweetspot_min_deg_per_sec,omitempty"`
	SnapSweetspotMaxDegPerSec   *float64 `json:"snap_sweetspot_max_deg_per_sec,omitempty"`
	TakeoffComparisonHalfWindow *int     `json:"takeoff_comparison_half_window,omitempty"`

	// Temporal signal extractor
	SmoothingWindow *int `json:"smoothing_window,omitempty"`
	SmoothingOrder  *int `json:"smoothing_order,omitempty"`

	// Comparison engine
	ResampleCount         *int               `json:"resample_count,omitempty"`
	MagnitudeThreshold    *float64           `json:"magnitude_threshold,omitempty"`
	TimingThresholdMs     *float64           `json:"timing_threshold_ms,omitempty"`
	CoordinationThreshold *float64           `json:"coordination_threshold,omitempty"`
	MismatchThreshold     *float64           `json:"mismatch_threshold,omitempty"`
	PartWeights           map[string]float64 `json:"part_weights,omitempty"`

	// Archetype detector
	ArchetypeLimit            *int     `json:"archetype_limit,omitempty"`
	RotationDeltaThresholdDeg *float64 `json:"rotation_delta_threshold_deg,omitempty"`
	AsymmetryThreshold        *float64 `json:"asymmetry_threshold,omitempty"`
	PopDeficitThreshold       *float64 `json:"pop_deficit_threshold,omitempty"`
	StiffnessThreshold        *float64 `json:"stiffness_threshold,omitempty"`
	ArmFlailThreshold         *float64 `json:"arm_flail_threshold,omitempty"`

	// Pipeline
	AnalysisTimeout *string `json:"analysis_timeout,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Every Get* accessor falls back to its built-in default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/trick/l1signals/
		"../../../../" + DefaultConfigPath, // from internal/trick/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	fractions := []struct {
		name string
		v    *float64
	}{
		{"min_joint_confidence", c.MinJointConfidence},
		{"max_invalid_fraction", c.MaxInvalidFraction},
		{"ground_percentile", c.GroundPercentile},
		{"magnitude_threshold", c.MagnitudeThreshold},
		{"coordination_threshold", c.CoordinationThreshold},
	}
	for _, f := range fractions {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, *f.v)
		}
	}

	positives := []struct {
		name string
		v    *float64
	}{
		{"takeoff_clearance_fraction", c.TakeoffClearanceFraction},
		{"grab_proximity_fraction", c.GrabProximityFraction},
		{"landing_impact_factor", c.LandingImpactFactor},
		{"ride_away_stability_threshold", c.RideAwayStabilityThreshold},
		{"mismatch_threshold", c.MismatchThreshold},
		{"rotation_delta_threshold_deg", c.RotationDeltaThresholdDeg},
		{"asymmetry_threshold", c.AsymmetryThreshold},
		{"pop_deficit_threshold", c.PopDeficitThreshold},
		{"stiffness_threshold", c.StiffnessThreshold},
		{"arm_flail_threshold", c.ArmFlailThreshold},
	}
	for _, p := range positives {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	if c.TakeoffDominanceRatio != nil && *c.TakeoffDominanceRatio < 1 {
		return fmt.Errorf("takeoff_dominance_ratio must be at least 1, got %f", *c.TakeoffDominanceRatio)
	}

	if c.SmoothingWindow != nil {
		if w := *c.SmoothingWindow; w < 5 || w%2 == 0 {
			return fmt.Errorf("smoothing_window must be odd and at least 5, got %d", w)
		}
	}
	if c.EdgeSmoothingWindow != nil {
		if w := *c.EdgeSmoothingWindow; w < 5 || w%2 == 0 {
			return fmt.Errorf("edge_smoothing_window must be odd and at least 5, got %d", w)
		}
	}
	if c.SmoothingOrder != nil && (*c.SmoothingOrder < 1 || *c.SmoothingOrder >= c.GetSmoothingWindow()) {
		return fmt.Errorf("smoothing_order must be in [1, smoothing_window), got %d", *c.SmoothingOrder)
	}

	counts := []struct {
		name string
		v    *int
		min  int
	}{
		{"form_variance_window", c.FormVarianceWindow, 2},
		{"min_air_frames", c.MinAirFrames, 1},
		{"max_crossing_gap_frames", c.MaxCrossingGapFrames, 0},
		{"min_grab_frames", c.MinGrabFrames, 1},
		{"landing_impact_window", c.LandingImpactWindow, 0},
		{"ride_away_stable_frames", c.RideAwayStableFrames, 1},
		{"takeoff_comparison_half_window", c.TakeoffComparisonHalfWindow, 1},
		{"resample_count", c.ResampleCount, 2},
		{"archetype_limit", c.ArchetypeLimit, 1},
	}
	for _, n := range counts {
		if n.v != nil && *n.v < n.min {
			return fmt.Errorf("%s must be at least %d, got %d", n.name, n.min, *n.v)
		}
	}

	if c.GetSnapSweetspotMinDegPerSec() > c.GetSnapSweetspotMaxDegPerSec() {
		return fmt.Errorf("snap sweetspot band is inverted: [%f, %f]",
			c.GetSnapSweetspotMinDegPerSec(), c.GetSnapSweetspotMaxDegPerSec())
	}

	for part, w := range c.PartWeights {
		if w < 0 {
			return fmt.Errorf("part_weights[%q] must be non-negative, got %f", part, w)
		}
	}

	if c.AnalysisTimeout != nil && *c.AnalysisTimeout != "" {
		if _, err := time.ParseDuration(*c.AnalysisTimeout); err != nil {
			return fmt.Errorf("invalid analysis_timeout '%s': %w", *c.AnalysisTimeout, err)
		}
	}

	return nil
}

// GetMinJointConfidence returns the per-joint confidence cutoff.
func (c *TuningConfig) GetMinJointConfidence() float64 {
	if c.MinJointConfidence == nil {
		return 0.3
	}
	return *c.MinJointConfidence
}

// GetMaxInvalidFraction returns the fraction of invalid frames a required signal may carry.
func (c *TuningConfig) GetMaxInvalidFraction() float64 {
	if c.MaxInvalidFraction == nil {
		return 0.4
	}
	return *c.MaxInvalidFraction
}

func (c *TuningConfig) GetEdgeDeadbandDeg() float64 {
	if c.EdgeDeadbandDeg == nil {
		return 3.0
	}
	return *c.EdgeDeadbandDeg
}

// GetTakeoffClearanceFraction returns the ankle clearance, as a fraction of
// leg length, at which ankleToHipRatio reaches 1.0.
func (c *TuningConfig) GetTakeoffClearanceFraction() float64 {
	if c.TakeoffClearanceFraction == nil {
		return 0.15
	}
	return *c.TakeoffClearanceFraction
}

func (c *TuningConfig) GetGroundPercentile() float64 {
	if c.GroundPercentile == nil {
		return 0.1
	}
	return *c.GroundPercentile
}

func (c *TuningConfig) GetArmReachThreshold() float64 {
	if c.ArmReachThreshold == nil {
		return 0.25
	}
	return *c.ArmReachThreshold
}

func (c *TuningConfig) GetFormVarianceWindow() int {
	if c.FormVarianceWindow == nil {
		return 5
	}
	return *c.FormVarianceWindow
}

func (c *TuningConfig) GetEdgeSmoothingWindow() int {
	if c.EdgeSmoothingWindow == nil {
		return 5
	}
	return *c.EdgeSmoothingWindow
}

func (c *TuningConfig) GetEdgeChangeBandDeg() float64 {
	if c.EdgeChangeBandDeg == nil {
		return 8.0
	}
	return *c.EdgeChangeBandDeg
}

// GetMinAirFrames returns how long ankleToHipRatio must stay at or above
// 1.0 for an upward crossing to count as a takeoff.
func (c *TuningConfig) GetMinAirFrames() int {
	if c.MinAirFrames == nil {
		return 3
	}
	return *c.MinAirFrames
}

// GetMaxCrossingGapFrames returns how many consecutive invalid
// ankleToHipRatio samples a takeoff or landing crossing may span.
func (c *TuningConfig) GetMaxCrossingGapFrames() int {
	if c.MaxCrossingGapFrames == nil {
		return 3
	}
	return *c.MaxCrossingGapFrames
}

// GetTakeoffDominanceRatio returns how much longer the longest airborne
// run must be than the next before multiple takeoff candidates are
// resolved instead of reported as ambiguous.
func (c *TuningConfig) GetTakeoffDominanceRatio() float64 {
	if c.TakeoffDominanceRatio == nil {
		return 2.0
	}
	return *c.TakeoffDominanceRatio
}

func (c *TuningConfig) GetWindUpDeclineDeg() float64 {
	if c.WindUpDeclineDeg == nil {
		return 5.0
	}
	return *c.WindUpDeclineDeg
}

func (c *TuningConfig) GetArmTrendMin() float64 {
	if c.ArmTrendMin == nil {
		return 0.05
	}
	return *c.ArmTrendMin
}

func (c *TuningConfig) GetGrabProximityFraction() float64 {
	if c.GrabProximityFraction == nil {
		return 0.25
	}
	return *c.GrabProximityFraction
}

func (c *TuningConfig) GetMinGrabFrames() int {
	if c.MinGrabFrames == nil {
		return 3
	}
	return *c.MinGrabFrames
}

func (c *TuningConfig) GetLandingImpactFactor() float64 {
	if c.LandingImpactFactor == nil {
		return 2.0
	}
	return *c.LandingImpactFactor
}

func (c *TuningConfig) GetLandingImpactWindow() int {
	if c.LandingImpactWindow == nil {
		return 2
	}
	return *c.LandingImpactWindow
}

func (c *TuningConfig) GetRideAwayStabilityThreshold() float64 {
	if c.RideAwayStabilityThreshold == nil {
		return 0.002
	}
	return *c.RideAwayStabilityThreshold
}

func (c *TuningConfig) GetRideAwayStableFrames() int {
	if c.RideAwayStableFrames == nil {
		return 5
	}
	return *c.RideAwayStableFrames
}

func (c *TuningConfig) GetSnapSweetspotMinDegPerSec() float64 {
	if c.SnapSweetspotMinDegPerSec == nil {
		return 200
	}
	return *c.SnapSweetspotMinDegPerSec
}

func (c *TuningConfig) GetSnapSweetspotMaxDegPerSec() float64 {
	if c.SnapSweetspotMaxDegPerSec == nil {
		return 900
	}
	return *c.SnapSweetspotMaxDegPerSec
}

// GetTakeoffComparisonHalfWindow returns the number of frames either side
// of the takeoff frame compared as the takeoff phase.
func (c *TuningConfig) GetTakeoffComparisonHalfWindow() int {
	if c.TakeoffComparisonHalfWindow == nil {
		return 5
	}
	return *c.TakeoffComparisonHalfWindow
}

func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 7
	}
	return *c.SmoothingWindow
}

func (c *TuningConfig) GetSmoothingOrder() int {
	if c.SmoothingOrder == nil {
		return 2
	}
	return *c.SmoothingOrder
}

func (c *TuningConfig) GetResampleCount() int {
	if c.ResampleCount == nil {
		return 100
	}
	return *c.ResampleCount
}

// GetMagnitudeThreshold returns the fraction of the reference peak a
// position delta may reach before it is flagged as a magnitude deviation.
func (c *TuningConfig) GetMagnitudeThreshold() float64 {
	if c.MagnitudeThreshold == nil {
		return 0.2
	}
	return *c.MagnitudeThreshold
}

func (c *TuningConfig) GetTimingThresholdMs() float64 {
	if c.TimingThresholdMs == nil {
		return 100
	}
	return *c.TimingThresholdMs
}

func (c *TuningConfig) GetCoordinationThreshold() float64 {
	if c.CoordinationThreshold == nil {
		return 0.3
	}
	return *c.CoordinationThreshold
}

// GetMismatchThreshold returns the proportion mismatch score above which
// a comparison carries a size-mismatch warning.
func (c *TuningConfig) GetMismatchThreshold() float64 {
	if c.MismatchThreshold == nil {
		return 0.15
	}
	return *c.MismatchThreshold
}

// GetPartWeights returns a copy of the configured per-part weights. Parts
// not listed weigh 1.
func (c *TuningConfig) GetPartWeights() map[string]float64 {
	out := make(map[string]float64, len(c.PartWeights))
	for k, v := range c.PartWeights {
		out[k] = v
	}
	return out
}

func (c *TuningConfig) GetArchetypeLimit() int {
	if c.ArchetypeLimit == nil {
		return 3
	}
	return *c.ArchetypeLimit
}

func (c *TuningConfig) GetRotationDeltaThresholdDeg() float64 {
	if c.RotationDeltaThresholdDeg == nil {
		return 20
	}
	return *c.RotationDeltaThresholdDeg
}

func (c *TuningConfig) GetAsymmetryThreshold() float64 {
	if c.AsymmetryThreshold == nil {
		return 0.25
	}
	return *c.AsymmetryThreshold
}

func (c *TuningConfig) GetPopDeficitThreshold() float64 {
	if c.PopDeficitThreshold == nil {
		return 0.2
	}
	return *c.PopDeficitThreshold
}

func (c *TuningConfig) GetStiffnessThreshold() float64 {
	if c.StiffnessThreshold == nil {
		return 0.15
	}
	return *c.StiffnessThreshold
}

func (c *TuningConfig) GetArmFlailThreshold() float64 {
	if c.ArmFlailThreshold == nil {
		return 0.3
	}
	return *c.ArmFlailThreshold
}

// GetAnalysisTimeout parses and returns the AnalysisTimeout as a time.Duration.
func (c *TuningConfig) GetAnalysisTimeout() time.Duration {
	if c.AnalysisTimeout == nil || *c.AnalysisTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.AnalysisTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// Effective returns a copy with every field set to the value the analysis
// layers will use, so defaults are visible when the config is inspected.
func (c *TuningConfig) Effective() *TuningConfig {
	return &TuningConfig{
		MinJointConfidence:       ptrFloat64(c.GetMinJointConfidence()),
		MaxInvalidFraction:       ptrFloat64(c.GetMaxInvalidFraction()),
		EdgeDeadbandDeg:          ptrFloat64(c.GetEdgeDeadbandDeg()),
		TakeoffClearanceFraction: ptrFloat64(c.GetTakeoffClearanceFraction()),
		GroundPercentile:         ptrFloat64(c.GetGroundPercentile()),
		ArmReachThreshold:        ptrFloat64(c.GetArmReachThreshold()),
		FormVarianceWindow:       ptrInt(c.GetFormVarianceWindow()),

		EdgeSmoothingWindow:         ptrInt(c.GetEdgeSmoothingWindow()),
		EdgeChangeBandDeg:           ptrFloat64(c.GetEdgeChangeBandDeg()),
		MinAirFrames:                ptrInt(c.GetMinAirFrames()),
		MaxCrossingGapFrames:        ptrInt(c.GetMaxCrossingGapFrames()),
		TakeoffDominanceRatio:       ptrFloat64(c.GetTakeoffDominanceRatio()),
		WindUpDeclineDeg:            ptrFloat64(c.GetWindUpDeclineDeg()),
		ArmTrendMin:                 ptrFloat64(c.GetArmTrendMin()),
		GrabProximityFraction:       ptrFloat64(c.GetGrabProximityFraction()),
		MinGrabFrames:               ptrInt(c.GetMinGrabFrames()),
		LandingImpactFactor:         ptrFloat64(c.GetLandingImpactFactor()),
		LandingImpactWindow:         ptrInt(c.GetLandingImpactWindow()),
		RideAwayStabilityThreshold:  ptrFloat64(c.GetRideAwayStabilityThreshold()),
		RideAwayStableFrames:        ptrInt(c.GetRideAwayStableFrames()),
		SnapSweetspotMinDegPerSec:   ptrFloat64(c.GetSnapSweetspotMinDegPerSec()),
		SnapSweetspotMaxDegPerSec:   ptrFloat64(c.GetSnapSweetspotMaxDegPerSec()),
		TakeoffComparisonHalfWindow: ptrInt(c.GetTakeoffComparisonHalfWindow()),

		SmoothingWindow: ptrInt(c.GetSmoothingWindow()),
		SmoothingOrder:  ptrInt(c.GetSmoothingOrder()),

		ResampleCount:         ptrInt(c.GetResampleCount()),
		MagnitudeThreshold:    ptrFloat64(c.GetMagnitudeThreshold()),
		TimingThresholdMs:     ptrFloat64(c.GetTimingThresholdMs()),
		CoordinationThreshold: ptrFloat64(c.GetCoordinationThreshold()),
		MismatchThreshold:     ptrFloat64(c.GetMismatchThreshold()),
		PartWeights:           c.GetPartWeights(),

		ArchetypeLimit:            ptrInt(c.GetArchetypeLimit()),
		RotationDeltaThresholdDeg: ptrFloat64(c.GetRotationDeltaThresholdDeg()),
		AsymmetryThreshold:        ptrFloat64(c.GetAsymmetryThreshold()),
		PopDeficitThreshold:       ptrFloat64(c.GetPopDeficitThreshold()),
		StiffnessThreshold:        ptrFloat64(c.GetStiffnessThreshold()),
		ArmFlailThreshold:         ptrFloat64(c.GetArmFlailThreshold()),

		AnalysisTimeout: ptrString(c.GetAnalysisTimeout().String()),
	}
}
