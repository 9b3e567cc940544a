package l6archetypes

import (
	"slices"

	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
	"github.com/banshee-data/trick.report/internal/trick/l5compare"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Archetype names.
const (
	PrematureRotation    = "premature_rotation"
	LateRotation         = "late_rotation"
	UnderRotation        = "under_rotation"
	OverRotation         = "over_rotation"
	AsymmetricLanding    = "asymmetric_landing"
	WeakPop              = "weak_pop"
	StiffLanding         = "stiff_landing"
	ArmFlail             = "arm_flail"
	UpperLowerDisconnect = "upper_lower_disconnect"
)

// measure returns the observed deviation and the threshold it is judged
// against, or ok=false when the rule does not apply to the result.
type measure func(r *l5compare.ComparisonResult, cfg Config) (value, threshold float64, ok bool)

type rule struct {
	name    string
	phases  []string
	measure measure
}

// rules is evaluated in order; ties in confidence keep this order.
var rules = []rule{
	{PrematureRotation, []string{"takeoff", "snap"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		chest := r.BodyPartComparisons[l4temporal.ChestRotation]
		if chest == nil || chest.RiderPeakTiming >= cfg.PrematurePeakFraction {
			return 0, 0, false
		}
		return chest.PositionDelta, cfg.RotationDeltaDeg, true
	}},
	{LateRotation, []string{"takeoff", "air"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		chest := r.BodyPartComparisons[l4temporal.ChestRotation]
		if chest == nil {
			return 0, 0, false
		}
		return chest.TimingOffsetMs, cfg.TimingThresholdMs, true
	}},
	{UnderRotation, []string{"air"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		chest := r.BodyPartComparisons[l4temporal.ChestRotation]
		if chest == nil {
			return 0, 0, false
		}
		return chest.ReferencePeak - chest.RiderPeak, cfg.RotationDeltaDeg, true
	}},
	{OverRotation, []string{"air"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		chest := r.BodyPartComparisons[l4temporal.ChestRotation]
		if chest == nil {
			return 0, 0, false
		}
		return chest.RiderPeak - chest.ReferencePeak, cfg.RotationDeltaDeg, true
	}},
	{AsymmetricLanding, []string{"landing"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		rel := r.RelationshipComparisons[l4temporal.LeftRightAnkle]
		if rel == nil {
			return 0, 0, false
		}
		return -rel.CoordinationDelta, cfg.AsymmetryThreshold, true
	}},
	{WeakPop, []string{"takeoff"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		hips := r.BodyPartComparisons[l4temporal.Hips]
		if hips == nil || hips.ReferencePeakVelocity <= 0 {
			return 0, 0, false
		}
		return 1 - hips.RiderPeakVelocity/hips.ReferencePeakVelocity, cfg.PopDeficitThreshold, true
	}},
	{StiffLanding, []string{"landing"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		sum, n := 0.0, 0
		for _, name := range []string{l4temporal.LeftKnee, l4temporal.RightKnee} {
			knee := r.BodyPartComparisons[name]
			if knee == nil || knee.ReferencePeak <= 0 {
				continue
			}
			sum += 1 - knee.RiderPeak/knee.ReferencePeak
			n++
		}
		if n == 0 {
			return 0, 0, false
		}
		return sum / float64(n), cfg.StiffnessThreshold, true
	}},
	{ArmFlail, []string{"air", "landing"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		worst, found := 0.0, false
		for _, name := range []string{l4temporal.LeftWrist, l4temporal.RightWrist} {
			w := r.BodyPartComparisons[name]
			if w == nil {
				continue
			}
			if d := w.ReferenceSmoothness - w.RiderSmoothness; !found || d > worst {
				worst, found = d, true
			}
		}
		return worst, cfg.ArmFlailThreshold, found
	}},
	{UpperLowerDisconnect, []string{"windUp", "snap", "takeoff"}, func(r *l5compare.ComparisonResult, cfg Config) (float64, float64, bool) {
		rel := r.RelationshipComparisons[l4temporal.UpperLowerSeparation]
		if rel == nil {
			return 0, 0, false
		}
		d := rel.CoordinationDelta
		if d < 0 {
			d = -d
		}
		return d, cfg.CoordinationThreshold, true
	}},
}

// RuleNames lists every archetype in evaluation order.
func RuleNames() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.name
	}
	return out
}

// Confidence maps how far value exceeds threshold onto [0, 1]: 0.5 at the
// threshold, 1 at twice the threshold.
func Confidence(value, threshold float64) float64 {
	return dsp.Clamp(0.5+0.5*(value-threshold)/threshold, 0, 1)
}

// Detect evaluates the rules for one phase's comparison result and returns
// at most cfg.Limit archetypes by descending confidence. tips may be nil.
func Detect(trick pose.TrickType, phase string, res *l5compare.ComparisonResult, cfg Config, tips TipSource) []l5compare.Archetype {
	if res == nil {
		return nil
	}
	var found []l5compare.Archetype
	for _, r := range rules {
		if !slices.Contains(r.phases, phase) {
			continue
		}
		value, threshold, ok := r.measure(res, cfg)
		if !ok || threshold <= 0 || value <= threshold {
			continue
		}
		a := l5compare.Archetype{
			Phase:      phase,
			Name:       r.name,
			Confidence: Confidence(value, threshold),
		}
		if tips != nil {
			a.CoachingTip, _ = tips.Tip(trick, phase, r.name)
		}
		monitoring.Diagf("archetype %s in %s: %.3f over %.3f (confidence %.2f)", r.name, phase, value, threshold, a.Confidence)
		found = append(found, a)
	}
	return l5compare.TopArchetypes(found, cfg.Limit)
}
