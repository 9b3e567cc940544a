package l2phases

import (
	"fmt"

	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// trickBranch holds the trick-specific part of segmentation: how the
// wind-up begins. Takeoff, air and landing are shared.
type trickBranch interface {
	windUpAndSnap(s *segmenter, edge edgeChange, t int) (windUp, snap *PhaseData, err *PhaseDetectionError)
}

func branchFor(trick pose.TrickType) (trickBranch, error) {
	switch trick {
	case pose.StraightAir:
		return straightAirBranch{}, nil
	case pose.Frontside:
		return frontsideBranch{}, nil
	case pose.Backside:
		return backsideBranch{}, nil
	}
	return nil, fmt.Errorf("no phase segmentation for trick %q", trick)
}

// straightAirBranch has no rotation to prepare.
type straightAirBranch struct{}

func (straightAirBranch) windUpAndSnap(*segmenter, edgeChange, int) (*PhaseData, *PhaseData, *PhaseDetectionError) {
	return nil, nil, nil
}

// frontsideBranch starts the wind-up once the rider is on the heel edge
// with the arms swinging toward the tail.
type frontsideBranch struct{}

func (frontsideBranch) windUpAndSnap(s *segmenter, edge edgeChange, t int) (*PhaseData, *PhaseData, *PhaseDetectionError) {
	from := 1
	if edge.found {
		from = edge.start + 1
	}
	for i := from; i < t-1; i++ {
		v, ok := s.sig.EdgeAngle.At(i)
		if !ok || v >= -s.cfg.EdgeDeadbandDeg {
			continue
		}
		if s.armsTrendTowardTail(i) {
			return s.windUpFrom(i, t)
		}
	}
	return nil, nil, &PhaseDetectionError{
		Phase:           WindUp,
		Reason:          "no heel-edge frame with arms trending toward the tail before takeoff",
		CandidateFrames: []int{s.sig.Frame(t)},
	}
}

func (s *segmenter) armsTrendTowardTail(i int) bool {
	arm := s.sig.ArmPosition[i]
	if !arm.Valid {
		return false
	}
	if arm.TowardTail {
		return true
	}
	if i < 2 || !s.sig.ArmPosition[i-2].Valid {
		return false
	}
	return arm.Reach-s.sig.ArmPosition[i-2].Reach < -s.cfg.ArmTrendMin
}

// backsideBranch starts the wind-up with the edge change itself: the toe
// to heel roll loads the counter-rotation.
type backsideBranch struct{}

func (backsideBranch) windUpAndSnap(s *segmenter, edge edgeChange, t int) (*PhaseData, *PhaseData, *PhaseDetectionError) {
	if !edge.found {
		return nil, nil, &PhaseDetectionError{
			Phase:  WindUp,
			Reason: "backside wind-up needs an edge change before takeoff",
		}
	}
	return s.windUpFrom(edge.start+1, t)
}
