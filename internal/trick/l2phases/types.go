package l2phases

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// PhaseName names a trick phase.
type PhaseName string

const (
	SetupCarve PhaseName = "setupCarve"
	WindUp     PhaseName = "windUp"
	Snap       PhaseName = "snap"
	Takeoff    PhaseName = "takeoff"
	Air        PhaseName = "air"
	Landing    PhaseName = "landing"
)

// PhaseOrder lists the phases in the order they occur.
func PhaseOrder() []PhaseName {
	return []PhaseName{SetupCarve, WindUp, Snap, Takeoff, Air, Landing}
}

// Sub-phase names.
const (
	SubEdgeChange = "edgeChange"
	SubGrab       = "grab"
	SubImpact     = "impact"
	SubRideAway   = "rideAway"
)

// PhaseData is one detected phase. Frames are inclusive frame numbers.
// Sub-phases annotate ranges of interest and may extend past the phase
// (the edge change runs from the end of setupCarve to the zero crossing).
type PhaseData struct {
	StartFrame int                `json:"startFrame"`
	EndFrame   int                `json:"endFrame"`
	SubPhases  map[string][2]int  `json:"subPhases,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
}

func newPhase(start, end int) *PhaseData {
	return &PhaseData{StartFrame: start, EndFrame: end, Metrics: map[string]float64{}}
}

// Frames returns the number of frames in the phase.
func (p *PhaseData) Frames() int { return p.EndFrame - p.StartFrame + 1 }

func (p *PhaseData) addSub(name string, start, end int) {
	if p.SubPhases == nil {
		p.SubPhases = map[string][2]int{}
	}
	p.SubPhases[name] = [2]int{start, end}
}

// PhaseMap holds one optional slot per phase. A nil slot means the phase
// does not apply to the trick (windUp and snap for a straight air) or
// could not be detected, in which case Failures says why.
type PhaseMap struct {
	Trick      pose.TrickType         `json:"trick"`
	SetupCarve *PhaseData             `json:"setupCarve"`
	WindUp     *PhaseData             `json:"windUp"`
	Snap       *PhaseData             `json:"snap"`
	Takeoff    *PhaseData             `json:"takeoff"`
	Air        *PhaseData             `json:"air"`
	Landing    *PhaseData             `json:"landing"`
	Failures   []*PhaseDetectionError `json:"failures,omitempty"`
}

// Get returns the slot for a phase.
func (m *PhaseMap) Get(name PhaseName) *PhaseData {
	switch name {
	case SetupCarve:
		return m.SetupCarve
	case WindUp:
		return m.WindUp
	case Snap:
		return m.Snap
	case Takeoff:
		return m.Takeoff
	case Air:
		return m.Air
	case Landing:
		return m.Landing
	}
	return nil
}

// Present returns the detected phases in order.
func (m *PhaseMap) Present() []PhaseName {
	var out []PhaseName
	for _, name := range PhaseOrder() {
		if m.Get(name) != nil {
			out = append(out, name)
		}
	}
	return out
}

// Err joins the recorded failures, or returns nil when there are none.
func (m *PhaseMap) Err() error {
	if len(m.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(m.Failures))
	for i, f := range m.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (m *PhaseMap) fail(err *PhaseDetectionError) {
	m.Failures = append(m.Failures, err)
}

// Validate checks the ordering invariants over the frame range
// [firstFrame, lastFrame]: each phase lies inside the range with
// start <= end, phases never overlap and appear in order, takeoff is a
// single frame, and a straight air carries no wind-up or snap.
func (m *PhaseMap) Validate(firstFrame, lastFrame int) error {
	if m.Trick == pose.StraightAir && (m.WindUp != nil || m.Snap != nil) {
		return fmt.Errorf("straight air must not have windUp or snap")
	}
	if m.Takeoff != nil && m.Takeoff.StartFrame != m.Takeoff.EndFrame {
		return fmt.Errorf("takeoff must be a single frame, got [%d, %d]",
			m.Takeoff.StartFrame, m.Takeoff.EndFrame)
	}
	prevEnd := firstFrame - 1
	var prevName PhaseName
	for _, name := range m.Present() {
		p := m.Get(name)
		if p.StartFrame > p.EndFrame {
			return fmt.Errorf("%s: start %d after end %d", name, p.StartFrame, p.EndFrame)
		}
		if p.StartFrame < firstFrame || p.EndFrame > lastFrame {
			return fmt.Errorf("%s: [%d, %d] outside [%d, %d]",
				name, p.StartFrame, p.EndFrame, firstFrame, lastFrame)
		}
		if p.StartFrame <= prevEnd {
			return fmt.Errorf("%s starts at %d, overlapping %s ending at %d",
				name, p.StartFrame, prevName, prevEnd)
		}
		prevEnd, prevName = p.EndFrame, name
	}
	return nil
}

// PhaseDetectionError reports a phase that could not be identified
// uniquely. CandidateFrames lists the frames considered.
type PhaseDetectionError struct {
	Phase           PhaseName `json:"phase"`
	Reason          string    `json:"reason"`
	CandidateFrames []int     `json:"candidateFrames,omitempty"`
}

func (e *PhaseDetectionError) Error() string {
	if len(e.CandidateFrames) == 0 {
		return fmt.Sprintf("phase %s: %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("phase %s: %s (candidate frames %v)", e.Phase, e.Reason, e.CandidateFrames)
}
