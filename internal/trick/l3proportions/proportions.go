package l3proportions

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Dimension names one body measurement.
type Dimension string

const (
	Height        Dimension = "height"
	ArmLength     Dimension = "armLength"
	LegLength     Dimension = "legLength"
	TorsoLength   Dimension = "torsoLength"
	ShoulderWidth Dimension = "shoulderWidth"
	HipWidth      Dimension = "hipWidth"
)

// Dimensions lists every dimension in a fixed order.
func Dimensions() []Dimension {
	return []Dimension{Height, ArmLength, LegLength, TorsoLength, ShoulderWidth, HipWidth}
}

// BodyProportions is a skeleton size profile. All values are positive and
// share the unit of the pose frames they came from.
type BodyProportions struct {
	Height        float64 `json:"height"`
	ArmLength     float64 `json:"armLength"`
	LegLength     float64 `json:"legLength"`
	TorsoLength   float64 `json:"torsoLength"`
	ShoulderWidth float64 `json:"shoulderWidth"`
	HipWidth      float64 `json:"hipWidth"`
}

// Get returns one dimension.
func (b BodyProportions) Get(d Dimension) float64 {
	switch d {
	case Height:
		return b.Height
	case ArmLength:
		return b.ArmLength
	case LegLength:
		return b.LegLength
	case TorsoLength:
		return b.TorsoLength
	case ShoulderWidth:
		return b.ShoulderWidth
	case HipWidth:
		return b.HipWidth
	}
	return math.NaN()
}

func (b *BodyProportions) set(d Dimension, v float64) {
	switch d {
	case Height:
		b.Height = v
	case ArmLength:
		b.ArmLength = v
	case LegLength:
		b.LegLength = v
	case TorsoLength:
		b.TorsoLength = v
	case ShoulderWidth:
		b.ShoulderWidth = v
	case HipWidth:
		b.HipWidth = v
	}
}

// ProportionExtractionError reports a dimension that could not be measured
// on a frame because joints were missing or below the confidence cutoff.
type ProportionExtractionError struct {
	Dimension     Dimension        `json:"dimension"`
	FrameNumber   int              `json:"frameNumber"`
	MissingJoints []pose.JointName `json:"missingJoints"`
}

func (e *ProportionExtractionError) Error() string {
	names := make([]string, len(e.MissingJoints))
	for i, j := range e.MissingJoints {
		names[i] = string(j)
	}
	return fmt.Sprintf("frame %d: cannot measure %s, missing %s",
		e.FrameNumber, e.Dimension, strings.Join(names, ", "))
}

type segment struct{ a, b pose.JointName }

// bilateral measurements average the left and right sides, falling back
// to one side when the other is not confident.
var bilateral = map[Dimension][2]segment{
	ArmLength: {{pose.LeftShoulder, pose.LeftWrist}, {pose.RightShoulder, pose.RightWrist}},
	LegLength: {{pose.LeftHip, pose.LeftAnkle}, {pose.RightHip, pose.RightAnkle}},
}

var widths = map[Dimension]segment{
	ShoulderWidth: {pose.LeftShoulder, pose.RightShoulder},
	HipWidth:      {pose.LeftHip, pose.RightHip},
}

// Extract measures one frame. Joints below minConfidence count as missing.
func Extract(f pose.Frame, minConfidence float64) (BodyProportions, error) {
	var out BodyProportions
	for _, d := range Dimensions() {
		v, missing := measure(f, d, minConfidence)
		if len(missing) > 0 || !(v > 0) {
			return BodyProportions{}, &ProportionExtractionError{
				Dimension:     d,
				FrameNumber:   f.FrameNumber,
				MissingJoints: missing,
			}
		}
		out.set(d, v)
	}
	return out, nil
}

func measure(f pose.Frame, d Dimension, minConf float64) (float64, []pose.JointName) {
	dist := func(s segment) (float64, []pose.JointName) {
		a, okA := f.ConfidentPosition(s.a, minConf)
		b, okB := f.ConfidentPosition(s.b, minConf)
		var missing []pose.JointName
		if !okA {
			missing = append(missing, s.a)
		}
		if !okB {
			missing = append(missing, s.b)
		}
		if len(missing) > 0 {
			return 0, missing
		}
		return a.Distance(b), nil
	}

	switch d {
	case Height:
		head, ok := f.ConfidentPosition(pose.Head, minConf)
		ankles, ok2 := f.Midpoint(pose.LeftAnkle, pose.RightAnkle, minConf)
		if !ok || !ok2 {
			return 0, missingOf(f, minConf, pose.Head, pose.LeftAnkle, pose.RightAnkle)
		}
		return head.Distance(ankles), nil
	case TorsoLength:
		shoulders, ok := f.Midpoint(pose.LeftShoulder, pose.RightShoulder, minConf)
		hips, ok2 := f.Midpoint(pose.LeftHip, pose.RightHip, minConf)
		if !ok || !ok2 {
			return 0, missingOf(f, minConf, pose.LeftShoulder, pose.RightShoulder, pose.LeftHip, pose.RightHip)
		}
		return shoulders.Distance(hips), nil
	case ShoulderWidth, HipWidth:
		return dist(widths[d])
	}

	sides := bilateral[d]
	l, missL := dist(sides[0])
	r, missR := dist(sides[1])
	switch {
	case missL == nil && missR == nil:
		return (l + r) / 2, nil
	case missL == nil:
		return l, nil
	case missR == nil:
		return r, nil
	}
	return 0, append(missL, missR...)
}

func missingOf(f pose.Frame, minConf float64, names ...pose.JointName) []pose.JointName {
	var out []pose.JointName
	for _, n := range names {
		if _, ok := f.ConfidentPosition(n, minConf); !ok {
			out = append(out, n)
		}
	}
	return out
}

// ExtractFromFrames measures every frame and takes the per-dimension
// median, which rides out single-frame pose glitches. Frames where a
// dimension cannot be measured are skipped for that dimension only.
func ExtractFromFrames(frames []pose.Frame, minConfidence float64) (BodyProportions, error) {
	if len(frames) == 0 {
		return BodyProportions{}, fmt.Errorf("no frames to measure")
	}
	samples := make(map[Dimension][]float64, len(Dimensions()))
	firstErr := map[Dimension]*ProportionExtractionError{}
	for _, f := range frames {
		for _, d := range Dimensions() {
			v, missing := measure(f, d, minConfidence)
			if len(missing) == 0 && v > 0 {
				samples[d] = append(samples[d], v)
				continue
			}
			if firstErr[d] == nil {
				firstErr[d] = &ProportionExtractionError{Dimension: d, FrameNumber: f.FrameNumber, MissingJoints: missing}
			}
		}
	}
	var out BodyProportions
	for _, d := range Dimensions() {
		if len(samples[d]) == 0 {
			return BodyProportions{}, firstErr[d]
		}
		out.set(d, dsp.Median(samples[d]))
	}
	return out, nil
}

// Ratios maps each dimension to a[dim] / b[dim].
type Ratios map[Dimension]float64

// ComputeRatios divides a by b per dimension.
func ComputeRatios(a, b BodyProportions) (Ratios, error) {
	out := make(Ratios, len(Dimensions()))
	for _, d := range Dimensions() {
		den := b.Get(d)
		if !(den > 0) {
			return nil, fmt.Errorf("cannot compute %s ratio: denominator %v", d, den)
		}
		out[d] = a.Get(d) / den
	}
	return out, nil
}

// MismatchScore is the mean |ratio - 1| across dimensions.
func (r Ratios) MismatchScore() float64 {
	if len(r) == 0 {
		return 0
	}
	sum, n := 0.0, 0
	for _, d := range Dimensions() {
		v, ok := r[d]
		if !ok {
			continue
		}
		sum += math.Abs(v - 1)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Mismatch summarises how far apart two skeletons are.
type Mismatch struct {
	Score       float64 `json:"score"`
	Significant bool    `json:"significant"`
}

// Assess flags a significant mismatch when the score exceeds threshold.
func Assess(score, threshold float64) Mismatch {
	return Mismatch{Score: score, Significant: score > threshold}
}
