package l5compare

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
)

// zeroTolerance is the delta below which a part whose reference curve is
// identically zero still counts as a perfect match.
const zeroTolerance = 1e-9

// Compare scores rider against reference. riderProps and refProps are the
// skeletons the two signal sets were extracted from.
func Compare(rider, ref *l4temporal.TemporalSignals, riderProps, refProps l3proportions.BodyProportions, cfg Config) (*ComparisonResult, error) {
	if rider == nil || ref == nil {
		return nil, fmt.Errorf("compare: missing temporal signals")
	}
	if cfg.ResampleCount < 2 {
		return nil, fmt.Errorf("compare: resample count must be at least 2, got %d", cfg.ResampleCount)
	}
	ratios, err := l3proportions.ComputeRatios(refProps, riderProps)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}

	res := &ComparisonResult{
		BodyPartComparisons:     map[string]*PartComparison{},
		RelationshipComparisons: map[string]*RelationshipComparison{},
		ProportionRatios:        ratios,
		Mismatch:                l3proportions.Assess(ratios.MismatchScore(), cfg.MismatchThreshold),
		ReferenceDurationMs:     ref.DurationMs(),
		Deviations:              Deviations{Magnitude: []string{}, Timing: []string{}, Coordination: []string{}},
		Archetypes:              []Archetype{},
	}
	if res.Mismatch.Significant {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"rider and reference body proportions differ significantly (mismatch %.2f > %.2f); scores are less reliable",
			res.Mismatch.Score, cfg.MismatchThreshold))
		monitoring.Opsf("compare: significant proportion mismatch %.3f", res.Mismatch.Score)
	}

	n := cfg.ResampleCount
	riderN := rider.Resampled(n)
	refN := ref.Resampled(n)

	weighted, totalWeight := 0.0, 0.0
	for _, name := range l4temporal.PartNames() {
		rp, okR := riderN.BodyParts[name]
		fp, okF := refN.BodyParts[name]
		if !okR || !okF {
			if okR || okF {
				res.SkippedParts = append(res.SkippedParts, name)
				res.Warnings = append(res.Warnings, fmt.Sprintf("body part %s missing on one side; not compared", name))
			}
			continue
		}
		scale := 1.0
		if rp.Kind == l4temporal.Positional {
			scale = ratios[rp.ScaleDimension]
			rp = rp.Scaled(scale)
		}
		pc := comparePart(rp, fp, res.ReferenceDurationMs)
		pc.Scale = scale
		res.BodyPartComparisons[name] = pc

		w := cfg.weight(name)
		weighted += w * pc.SimilarityScore
		totalWeight += w

		if exceedsMagnitude(pc, cfg.MagnitudeThreshold) {
			res.Deviations.Magnitude = append(res.Deviations.Magnitude, name)
		}
		if math.Abs(pc.TimingOffsetMs) > cfg.TimingThresholdMs {
			res.Deviations.Timing = append(res.Deviations.Timing, name)
		}
	}
	if len(res.BodyPartComparisons) == 0 {
		return nil, errors.New("compare: no body part present on both sides")
	}
	if totalWeight > 0 {
		res.OverallSimilarityScore = dsp.Clamp(weighted/totalWeight, 0, 100)
	}

	coordinated := map[string]bool{}
	for name, rr := range riderN.Relationships {
		fr, ok := refN.Relationships[name]
		if !ok {
			continue
		}
		rc := compareRelationship(rr, fr, riderN, ratios)
		res.RelationshipComparisons[name] = rc
		peak := dsp.MaxAbs(fr.Separation)
		sepOff := peak > 0 && rc.SeparationDelta/peak > cfg.MagnitudeThreshold
		if math.Abs(rc.CoordinationDelta) > cfg.CoordinationThreshold || sepOff {
			coordinated[rr.A], coordinated[rr.B] = true, true
		}
	}
	for _, name := range l4temporal.PartNames() {
		if coordinated[name] {
			res.Deviations.Coordination = append(res.Deviations.Coordination, name)
		}
	}

	monitoring.Diagf("compare: %d parts, overall %.1f, deviations m=%v t=%v c=%v",
		len(res.BodyPartComparisons), res.OverallSimilarityScore,
		res.Deviations.Magnitude, res.Deviations.Timing, res.Deviations.Coordination)
	return res, nil
}

func comparePart(rider, ref *l4temporal.BodyPartSignal, refDurationMs float64) *PartComparison {
	pc := &PartComparison{
		PositionDelta:         dsp.MeanAbsError(rider.Position, ref.Position),
		VelocityDelta:         dsp.MeanAbsError(rider.Velocity, ref.Velocity),
		AccelerationDelta:     dsp.MeanAbsError(rider.Acceleration, ref.Acceleration),
		JerkDelta:             dsp.MeanAbsError(rider.Jerk, ref.Jerk),
		TimingOffsetMs:        (rider.PeakTiming - ref.PeakTiming) * refDurationMs,
		RiderPeak:             rider.PeakMagnitude,
		ReferencePeak:         ref.PeakMagnitude,
		RiderPeakTiming:       rider.PeakTiming,
		ReferencePeakTiming:   ref.PeakTiming,
		RiderPeakVelocity:     rider.PeakVelocity,
		ReferencePeakVelocity: ref.PeakVelocity,
		RiderSmoothness:       rider.Smoothness,
		ReferenceSmoothness:   ref.Smoothness,
	}
	pc.SimilarityScore = similarity(pc.PositionDelta, ref.PeakMagnitude)
	return pc
}

// similarity is 100 * (1 - delta / reference peak), clamped to [0, 100].
func similarity(delta, refPeak float64) float64 {
	if refPeak <= 0 {
		if delta <= zeroTolerance {
			return 100
		}
		return 0
	}
	return 100 * dsp.Clamp(1-delta/refPeak, 0, 1)
}

func exceedsMagnitude(pc *PartComparison, threshold float64) bool {
	if pc.ReferencePeak <= 0 {
		return pc.PositionDelta > zeroTolerance
	}
	return pc.PositionDelta > threshold*pc.ReferencePeak
}

// compareRelationship scales the rider's separation like the parts it is
// built from so the delta is in reference units.
func compareRelationship(rider, ref *l4temporal.Relationship, riderN *l4temporal.TemporalSignals, ratios l3proportions.Ratios) *RelationshipComparison {
	sep := rider.Separation
	if a := riderN.BodyParts[rider.A]; a != nil && a.Kind == l4temporal.Positional {
		sep = dsp.Scaled(sep, ratios[a.ScaleDimension])
	}
	return &RelationshipComparison{
		SeparationDelta:       dsp.MeanAbsError(sep, ref.Separation),
		RiderCoordination:     rider.Coordination,
		ReferenceCoordination: ref.Coordination,
		CoordinationDelta:     rider.Coordination - ref.Coordination,
	}
}

// PhaseComparison holds per-phase results plus the phases that could not
// be compared.
type PhaseComparison struct {
	Phases   map[string]*ComparisonResult `json:"phases"`
	Order    []string                     `json:"order"`
	Excluded []*PhaseMismatchError        `json:"excluded,omitempty"`
}

// ComparePhases compares every phase in order that both sides have.
// Phases on one side only are excluded and recorded. It fails only when no
// phase can be compared; the error then joins the exclusions.
func ComparePhases(rider, ref map[string]*l4temporal.TemporalSignals, order []string, riderProps, refProps l3proportions.BodyProportions, cfg Config) (*PhaseComparison, error) {
	out := &PhaseComparison{Phases: map[string]*ComparisonResult{}}
	for _, phase := range order {
		r, f := rider[phase], ref[phase]
		switch {
		case r == nil && f == nil:
			continue
		case r == nil || f == nil:
			mm := &PhaseMismatchError{Phase: phase, RiderHas: r != nil, ReferenceHas: f != nil}
			out.Excluded = append(out.Excluded, mm)
			monitoring.Diagf("compare: %v", mm)
			continue
		}
		res, err := Compare(r, f, riderProps, refProps, cfg)
		if err != nil {
			return nil, fmt.Errorf("compare phase %s: %w", phase, err)
		}
		res.Phase = phase
		out.Phases[phase] = res
		out.Order = append(out.Order, phase)
	}
	if len(out.Phases) > 0 {
		return out, nil
	}
	if len(out.Excluded) == 0 {
		return out, errors.New("compare phases: no phases detected on either side")
	}
	errs := make([]error, len(out.Excluded))
	for i, e := range out.Excluded {
		errs[i] = e
	}
	return out, errors.Join(errs...)
}

// TopArchetypes returns up to limit archetypes by descending confidence,
// keeping the input order among equals.
func TopArchetypes(all []Archetype, limit int) []Archetype {
	out := append([]Archetype(nil), all...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
