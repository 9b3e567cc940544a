package l1signals

import (
	"fmt"
	"math"

	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"gonum.org/v1/gonum/stat"
)

// Edge names the loaded board edge.
type Edge string

const (
	EdgeHeel Edge = "heel"
	EdgeToe  Edge = "toe"
)

// EdgeTransition marks the frame where the edge angle crosses zero on a
// heel-to-toe or toe-to-heel change. Smoothness is 1 for a perfectly
// even roll and drops toward 0 as the roll becomes jerky.
type EdgeTransition struct {
	Frame      int     `json:"frame"`
	FromEdge   Edge    `json:"fromEdge"`
	ToEdge     Edge    `json:"toEdge"`
	Smoothness float64 `json:"smoothness"`
}

// ArmPosition describes both arms at one frame. Elevations are degrees
// between the shoulder-to-wrist vector and straight down. Reach is the
// wrist midpoint's offset along the board axis in shoulder widths,
// positive toward the nose.
type ArmPosition struct {
	Valid          bool    `json:"valid"`
	LeftElevation  float64 `json:"leftElevation"`
	RightElevation float64 `json:"rightElevation"`
	Reach          float64 `json:"reach"`
	TowardTail     bool    `json:"towardTail"`
	TowardNose     bool    `json:"towardNose"`
}

// Signals is the full set of frame-indexed signals for one timeline.
type Signals struct {
	FPS        float64 `json:"fps"`
	FirstFrame int     `json:"firstFrame"`
	FrameCount int     `json:"frameCount"`

	// Reference lengths measured over the whole range.
	LegLength    float64 `json:"legLength"`
	GroundHeight float64 `json:"groundHeight"`

	EdgeAngle             Series           `json:"edgeAngle"` // degrees, positive = toe edge
	EdgeTransitions       []EdgeTransition `json:"edgeTransitions"`
	HipHeight             Series           `json:"hipHeight"`
	HipVelocity           Series           `json:"hipVelocity"`
	HipAcceleration       Series           `json:"hipAcceleration"`
	AnkleToHipRatio       Series           `json:"ankleToHipRatio"`
	ChestRotation         Series           `json:"chestRotation"` // degrees, unwrapped, relative to first valid frame
	ChestRotationVelocity Series           `json:"chestRotationVelocity"`
	ChestDirection        VectorSeries     `json:"chestDirection"`
	GazeDirection         VectorSeries     `json:"gazeDirection"`
	ArmPosition           []ArmPosition    `json:"armPosition"`
	BodyStackedness       Series           `json:"bodyStackedness"`
	FormVariance          Series           `json:"formVariance"`
	WristToBoard          Series           `json:"wristToBoard"` // nearest wrist to board, in leg lengths
}

// Frame converts a signal index to a frame number.
func (s *Signals) Frame(i int) int { return s.FirstFrame + i }

// Index converts a frame number to a signal index, or -1 when out of range.
func (s *Signals) Index(frame int) int {
	i := frame - s.FirstFrame
	if i < 0 || i >= s.FrameCount {
		return -1
	}
	return i
}

// LastFrame returns the frame number of the last sample.
func (s *Signals) LastFrame() int { return s.FirstFrame + s.FrameCount - 1 }

// Derive computes every signal over frames. The Signals are returned even
// when a required signal fails its confidence check, so callers can
// inspect what was derived; the error is then an
// *InsufficientConfidenceError.
func Derive(frames []pose.Frame, fps float64, cfg Config) (*Signals, error) {
	n := len(frames)
	if n == 0 {
		return nil, fmt.Errorf("derive signals: no frames")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("derive signals: fps must be positive, got %v", fps)
	}

	d := deriver{frames: frames, cfg: cfg}
	s := &Signals{
		FPS:        fps,
		FirstFrame: frames[0].FrameNumber,
		FrameCount: n,
	}
	s.LegLength = d.legLength()
	s.GroundHeight = d.groundHeight()
	d.leg = s.LegLength
	d.ground = s.GroundHeight
	monitoring.Diagf("signals: %d frames, leg length %.3f, ground %.3f", n, s.LegLength, s.GroundHeight)

	s.EdgeAngle = newSeries(n)
	s.HipHeight = newSeries(n)
	s.AnkleToHipRatio = newSeries(n)
	s.BodyStackedness = newSeries(n)
	s.WristToBoard = newSeries(n)
	s.ChestDirection = newVectorSeries(n)
	s.GazeDirection = newVectorSeries(n)
	s.ArmPosition = make([]ArmPosition, n)
	yaw := make([]float64, n)

	var axis0 pose.Vec3
	haveAxis0 := false
	for i, f := range frames {
		if v, ok := d.edgeAngle(f); ok {
			s.EdgeAngle.set(i, v)
		}
		if v, ok := d.hipHeight(f); ok {
			s.HipHeight.set(i, v)
		}
		if v, ok := d.ankleToHipRatio(f); ok {
			s.AnkleToHipRatio.set(i, v)
		}
		if v, ok := d.stackedness(f); ok {
			s.BodyStackedness.set(i, v)
		}
		if v, ok := d.wristToBoard(f); ok {
			s.WristToBoard.set(i, v)
		}
		if v, ok := d.chestDirection(f); ok {
			s.ChestDirection.Values[i], s.ChestDirection.Valid[i] = v, true
		}
		if v, ok := d.gazeDirection(f); ok {
			s.GazeDirection.Values[i], s.GazeDirection.Valid[i] = v, true
		}
		s.ArmPosition[i] = d.armPosition(f)

		yaw[i] = math.NaN()
		if axis, ok := d.shoulderAxis(f); ok {
			if !haveAxis0 {
				axis0, haveAxis0 = axis, true
			}
			yaw[i] = pose.SignedAngleAboutUp(axis0, axis)
		}

		monitoring.Tracef("frame %d: edge=%.1f hip=%.3f ratio=%.2f",
			f.FrameNumber, s.EdgeAngle.Values[i], s.HipHeight.Values[i], s.AnkleToHipRatio.Values[i])
	}

	s.ChestRotation = newSeries(n)
	for i, v := range pose.Unwrap(yaw) {
		s.ChestRotation.set(i, v)
	}

	s.HipVelocity = diffSeries(s.HipHeight, fps)
	s.HipAcceleration = diffSeries(s.HipVelocity, fps)
	s.ChestRotationVelocity = diffSeries(s.ChestRotation, fps)
	var shapeValid []bool
	s.FormVariance, shapeValid = d.formVariance()
	s.EdgeTransitions = detectEdgeTransitions(s.EdgeAngle, cfg.EdgeDeadbandDeg, s.FirstFrame)

	return s, s.checkRequired(cfg, shapeValid)
}

func diffSeries(in Series, fps float64) Series {
	values, valid := dsp.BackwardDiff(in.Values, in.Valid, fps)
	return Series{Values: values, Valid: valid}
}

// checkRequired fails on the first signal the phase segmenter needs whose
// joints are below the confidence cutoff on more than MaxInvalidFraction
// of the frames. Derived signals are judged by the per-frame mask they
// are computed from, so derivative and window warm-up samples do not
// count against the clip.
func (s *Signals) checkRequired(cfg Config, shapeValid []bool) error {
	type requirement struct {
		name  string
		valid []bool
	}
	required := []requirement{
		{"ankleToHipRatio", s.AnkleToHipRatio.Valid},
		{"edgeAngle", s.EdgeAngle.Valid},
		{"hipAcceleration", s.HipHeight.Valid},
		{"formVariance", shapeValid},
	}
	if cfg.Trick.Rotational() {
		required = append(required, requirement{"chestRotation", s.ChestRotation.Valid})
	}
	for _, r := range required {
		invalid, first := invalidCount(r.valid)
		if float64(invalid) > cfg.MaxInvalidFraction*float64(s.FrameCount) {
			monitoring.Opsf("signal %s: %d/%d frames invalid", r.name, invalid, s.FrameCount)
			return &InsufficientConfidenceError{
				Signal:            r.name,
				InvalidFrames:     invalid,
				TotalFrames:       s.FrameCount,
				FirstInvalidFrame: s.Frame(first),
			}
		}
	}
	return nil
}

// detectEdgeTransitions classifies each valid sample as heel or toe with a
// deadband hysteresis and emits one transition per confirmed edge change.
func detectEdgeTransitions(edge Series, deadband float64, firstFrame int) []EdgeTransition {
	var out []EdgeTransition
	var state Edge
	last := -1
	for i := 0; i < edge.Len(); i++ {
		a, ok := edge.At(i)
		if !ok {
			continue
		}
		var cls Edge
		switch {
		case a > deadband:
			cls = EdgeToe
		case a < -deadband:
			cls = EdgeHeel
		default:
			continue
		}
		if state == "" || cls == state {
			state, last = cls, i
			continue
		}

		cross := i
		for k := last + 1; k <= i; k++ {
			v, ok := edge.At(k)
			if !ok {
				continue
			}
			if (state == EdgeToe && v <= 0) || (state == EdgeHeel && v >= 0) {
				cross = k
				break
			}
		}
		out = append(out, EdgeTransition{
			Frame:      firstFrame + cross,
			FromEdge:   state,
			ToEdge:     cls,
			Smoothness: rollSmoothness(edge, last, i),
		})
		state, last = cls, i
	}
	return out
}

// rollSmoothness scores how evenly the edge angle moves between two
// samples: 1 - std/|mean| of the per-frame deltas, clamped to [0, 1].
func rollSmoothness(edge Series, from, to int) float64 {
	var deltas []float64
	prev, havePrev := 0.0, false
	for k := from; k <= to; k++ {
		v, ok := edge.At(k)
		if !ok {
			continue
		}
		if havePrev {
			deltas = append(deltas, v-prev)
		}
		prev, havePrev = v, true
	}
	if len(deltas) < 2 {
		return 1
	}
	mean, std := stat.PopMeanStdDev(deltas, nil)
	if mean == 0 {
		return 0
	}
	return dsp.Clamp(1-std/math.Abs(mean), 0, 1)
}
