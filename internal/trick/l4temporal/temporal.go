package l4temporal

import (
	"fmt"
	"math"

	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// BodyPartSignal is the motion of one tracked part over a range. Velocity,
// acceleration and jerk are smoothed; Position is not.
type BodyPartSignal struct {
	Name           string                  `json:"name"`
	Kind           Kind                    `json:"kind"`
	ScaleDimension l3proportions.Dimension `json:"scaleDimension,omitempty"`
	Position       []float64               `json:"position"`
	Velocity       []float64               `json:"velocity"`
	Acceleration   []float64               `json:"acceleration"`
	Jerk           []float64               `json:"jerk"`
	PeakMagnitude  float64                 `json:"peakMagnitude"`
	PeakTiming     float64                 `json:"peakTiming"`
	PeakVelocity   float64                 `json:"peakVelocity"`
	Smoothness     float64                 `json:"smoothness"`
	// FilledFrames counts samples interpolated across low-confidence frames.
	FilledFrames int `json:"filledFrames"`
}

// Relationship compares two parts: Separation is A(t) - B(t) and
// Coordination their Pearson correlation.
type Relationship struct {
	A            string    `json:"a"`
	B            string    `json:"b"`
	Separation   []float64 `json:"separation"`
	Coordination float64   `json:"coordination"`
}

// TemporalSignals is the extraction result for one frame range.
type TemporalSignals struct {
	BodyParts     map[string]*BodyPartSignal `json:"bodyParts"`
	Relationships map[string]*Relationship   `json:"relationships"`
	FPS           float64                    `json:"fps"`
	FrameCount    int                        `json:"frameCount"`
	DurationSec   float64                    `json:"durationSec"`
	StartFrame    int                        `json:"startFrame"`
	EndFrame      int                        `json:"endFrame"`
	// Missing lists parts with no confident sample in the range.
	Missing []string `json:"missing,omitempty"`
}

// DurationMs returns the range duration in milliseconds.
func (ts *TemporalSignals) DurationMs() float64 { return ts.DurationSec * 1000 }

// PartNames returns the tracked part names in a fixed order.
func PartNames() []string {
	out := make([]string, len(partSpecs))
	for i, p := range partSpecs {
		out[i] = p.name
	}
	return out
}

// KindOf returns the kind and scaling dimension of a tracked part.
func KindOf(name string) (Kind, l3proportions.Dimension, bool) {
	for _, p := range partSpecs {
		if p.name == name {
			return p.kind, p.dimension, true
		}
	}
	return "", "", false
}

// Extract computes the temporal signals for frames, which should already
// be restricted to the range of interest.
func Extract(frames []pose.Frame, fps float64, cfg Config) (*TemporalSignals, error) {
	n := len(frames)
	if n == 0 {
		return nil, fmt.Errorf("extract temporal signals: empty frame range")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("extract temporal signals: fps must be positive, got %v", fps)
	}

	ctx := newRangeContext(frames, cfg.MinJointConfidence, cfg.Ground)
	ts := &TemporalSignals{
		BodyParts:     make(map[string]*BodyPartSignal, len(partSpecs)),
		Relationships: make(map[string]*Relationship, len(relationSpecs)),
		FPS:           fps,
		FrameCount:    n,
		DurationSec:   float64(n) / fps,
		StartFrame:    frames[0].FrameNumber,
		EndFrame:      frames[n-1].FrameNumber,
	}

	for _, spec := range partSpecs {
		raw := make([]float64, n)
		valid := make([]bool, n)
		for i, f := range frames {
			raw[i], valid[i] = spec.position(f, ctx)
		}
		if spec.name == ChestRotation || spec.name == HipRotation {
			raw = unwrapValid(raw, valid)
		}
		pos, ok := dsp.FillGaps(raw, valid)
		if !ok {
			ts.Missing = append(ts.Missing, spec.name)
			monitoring.Diagf("temporal: %s has no confident samples in frames %d-%d", spec.name, ts.StartFrame, ts.EndFrame)
			continue
		}
		part := buildPart(spec, pos, fps, cfg)
		part.FilledFrames = countInvalid(valid)
		ts.BodyParts[spec.name] = part
	}

	for _, rel := range relationSpecs {
		a, okA := ts.BodyParts[rel.a]
		b, okB := ts.BodyParts[rel.b]
		if !okA || !okB {
			continue
		}
		sep := make([]float64, n)
		for i := range sep {
			sep[i] = a.Position[i] - b.Position[i]
		}
		ts.Relationships[rel.name] = &Relationship{
			A:            rel.a,
			B:            rel.b,
			Separation:   sep,
			Coordination: dsp.Pearson(a.Position, b.Position),
		}
	}
	return ts, nil
}

func buildPart(spec partSpec, pos []float64, fps float64, cfg Config) *BodyPartSignal {
	vel := dsp.Gradient(pos, fps)
	acc := dsp.Gradient(vel, fps)
	jerk := dsp.Gradient(acc, fps)

	part := &BodyPartSignal{
		Name:           spec.name,
		Kind:           spec.kind,
		ScaleDimension: spec.dimension,
		Position:       pos,
		Velocity:       dsp.Smooth(vel, cfg.SmoothingWindow, cfg.SmoothingOrder),
		Acceleration:   dsp.Smooth(acc, cfg.SmoothingWindow, cfg.SmoothingOrder),
		Jerk:           dsp.Smooth(jerk, cfg.SmoothingWindow, cfg.SmoothingOrder),
	}
	part.computeStats()
	return part
}

// computeStats derives the peak and smoothness statistics from the curves.
// It is rerun after rescaling.
func (p *BodyPartSignal) computeStats() {
	p.PeakMagnitude = dsp.MaxAbs(p.Position)
	p.PeakTiming = 0
	if idx := dsp.ArgMaxAbs(p.Position); idx >= 0 && len(p.Position) > 0 {
		p.PeakTiming = float64(idx) / float64(len(p.Position))
	}
	p.PeakVelocity = dsp.MaxAbs(p.Velocity)
	p.Smoothness = dsp.Clamp(1-dsp.NormalisedVariance(p.Acceleration), 0, 1)
}

// Scaled returns a copy of the part with every curve multiplied by s.
func (p *BodyPartSignal) Scaled(s float64) *BodyPartSignal {
	out := *p
	out.Position = dsp.Scaled(p.Position, s)
	out.Velocity = dsp.Scaled(p.Velocity, s)
	out.Acceleration = dsp.Scaled(p.Acceleration, s)
	out.Jerk = dsp.Scaled(p.Jerk, s)
	out.computeStats()
	return &out
}

// Resampled returns a copy with every curve resampled to n samples over
// normalised time.
func (p *BodyPartSignal) Resampled(n int) *BodyPartSignal {
	out := *p
	out.Position = dsp.Resample(p.Position, n)
	out.Velocity = dsp.Resample(p.Velocity, n)
	out.Acceleration = dsp.Resample(p.Acceleration, n)
	out.Jerk = dsp.Resample(p.Jerk, n)
	out.computeStats()
	return &out
}

// Resampled returns a copy of the signals with every curve resampled to n
// samples. Resampling to the current length leaves values unchanged.
func (ts *TemporalSignals) Resampled(n int) *TemporalSignals {
	out := *ts
	out.BodyParts = make(map[string]*BodyPartSignal, len(ts.BodyParts))
	for name, p := range ts.BodyParts {
		out.BodyParts[name] = p.Resampled(n)
	}
	out.Relationships = make(map[string]*Relationship, len(ts.Relationships))
	for name, r := range ts.Relationships {
		rr := *r
		rr.Separation = dsp.Resample(r.Separation, n)
		if a, b := out.BodyParts[r.A], out.BodyParts[r.B]; a != nil && b != nil {
			rr.Coordination = dsp.Pearson(a.Position, b.Position)
		}
		out.Relationships[name] = &rr
	}
	out.Missing = append([]string(nil), ts.Missing...)
	return &out
}

func unwrapValid(raw []float64, valid []bool) []float64 {
	tmp := make([]float64, len(raw))
	for i := range raw {
		tmp[i] = raw[i]
		if !valid[i] {
			tmp[i] = math.NaN()
		}
	}
	return pose.Unwrap(tmp)
}

func countInvalid(valid []bool) int {
	n := 0
	for _, ok := range valid {
		if !ok {
			n++
		}
	}
	return n
}
