package l5compare

import (
	"fmt"

	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
)

// PartComparison is the comparison of one body part. Deltas are mean
// absolute errors over the resampled curves, in reference units.
type PartComparison struct {
	PositionDelta     float64 `json:"positionDelta"`
	VelocityDelta     float64 `json:"velocityDelta"`
	AccelerationDelta float64 `json:"accelerationDelta"`
	JerkDelta         float64 `json:"jerkDelta"`
	TimingOffsetMs    float64 `json:"timingOffsetMs"`
	SimilarityScore   float64 `json:"similarityScore"`

	RiderPeak             float64 `json:"riderPeak"`
	ReferencePeak         float64 `json:"referencePeak"`
	RiderPeakTiming       float64 `json:"riderPeakTiming"`
	ReferencePeakTiming   float64 `json:"referencePeakTiming"`
	RiderPeakVelocity     float64 `json:"riderPeakVelocity"`
	ReferencePeakVelocity float64 `json:"referencePeakVelocity"`
	RiderSmoothness       float64 `json:"riderSmoothness"`
	ReferenceSmoothness   float64 `json:"referenceSmoothness"`
	// Scale is the factor applied to the rider's curves (1 for angles).
	Scale float64 `json:"scale"`
}

// RelationshipComparison compares one relationship signal.
type RelationshipComparison struct {
	SeparationDelta       float64 `json:"separationDelta"`
	RiderCoordination     float64 `json:"riderCoordination"`
	ReferenceCoordination float64 `json:"referenceCoordination"`
	CoordinationDelta     float64 `json:"coordinationDelta"`
}

// Deviations buckets body parts by the kind of deviation. A part may be
// listed in more than one bucket.
type Deviations struct {
	Magnitude    []string `json:"magnitude"`
	Timing       []string `json:"timing"`
	Coordination []string `json:"coordination"`
}

// Archetype is a named coaching pattern detected in a comparison.
type Archetype struct {
	Phase       string  `json:"phase"`
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence"`
	CoachingTip string  `json:"coachingTip"`
}

// ComparisonResult is the outcome of comparing one range of a rider's
// attempt against the same range of a reference.
type ComparisonResult struct {
	Phase                   string                             `json:"phase,omitempty"`
	BodyPartComparisons     map[string]*PartComparison         `json:"bodyPartComparisons"`
	RelationshipComparisons map[string]*RelationshipComparison `json:"relationshipComparisons"`
	OverallSimilarityScore  float64                            `json:"overallSimilarityScore"`
	Deviations              Deviations                         `json:"deviations"`
	Archetypes              []Archetype                        `json:"archetypes"`
	ProportionRatios        l3proportions.Ratios               `json:"proportionRatios"`
	Mismatch                l3proportions.Mismatch             `json:"mismatch"`
	// ReferenceDurationMs is the duration the timing offsets are scaled by.
	ReferenceDurationMs float64  `json:"referenceDurationMs"`
	SkippedParts        []string `json:"skippedParts,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
}

// PhaseMismatchError reports a phase detected on only one side.
type PhaseMismatchError struct {
	Phase        string `json:"phase"`
	RiderHas     bool   `json:"riderHas"`
	ReferenceHas bool   `json:"referenceHas"`
}

func (e *PhaseMismatchError) Error() string {
	missing := "rider"
	if e.RiderHas {
		missing = "reference"
	}
	return fmt.Sprintf("phase %s not detected for %s; excluded from comparison", e.Phase, missing)
}
