package l2phases

import (
	"errors"
	"testing"

	"github.com/banshee-data/trick.report/internal/testutil"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signalsFor(t *testing.T, p testutil.RiderProfile) *l1signals.Signals {
	t.Helper()
	tl := testutil.SyntheticTimeline(p)
	cfg := l1signals.DefaultConfig()
	cfg.Stance, cfg.Trick = tl.Stance, tl.Trick
	sig, err := l1signals.Derive(tl.Frames, tl.FPS, cfg)
	require.NoError(t, err)
	return sig
}

func segment(t *testing.T, p testutil.RiderProfile) (*PhaseMap, error) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Trick = p.Trick
	return Segment(signalsFor(t, p), cfg)
}

func TestSegmentSharedPhases(t *testing.T) {
	t.Parallel()

	for _, trick := range []pose.TrickType{pose.StraightAir, pose.Frontside, pose.Backside} {
		t.Run(string(trick), func(t *testing.T) {
			t.Parallel()
			m, err := segment(t, testutil.DefaultRiderProfile(trick))
			require.NoError(t, err)
			require.NoError(t, m.Validate(0, 59))

			require.NotNil(t, m.Takeoff)
			assert.Equal(t, 25, m.Takeoff.StartFrame)
			assert.Equal(t, 25, m.Takeoff.EndFrame)

			require.NotNil(t, m.Air)
			assert.Equal(t, 26, m.Air.StartFrame)
			assert.Equal(t, 39, m.Air.EndFrame)
			assert.InDelta(t, 15.0/30, m.Air.Metrics["airtimeSec"], 1e-9)

			require.NotNil(t, m.Landing)
			assert.Equal(t, 40, m.Landing.StartFrame)
			assert.Equal(t, [2]int{40, 40}, m.Landing.SubPhases[SubImpact])
			assert.Equal(t, 1.0, m.Landing.Metrics["stabilized"])
			assert.Greater(t, m.Landing.Metrics["impactAcceleration"], 0.0)

			require.NotNil(t, m.SetupCarve)
			assert.Equal(t, 0, m.SetupCarve.StartFrame)
			assert.GreaterOrEqual(t, m.SetupCarve.EndFrame, 9)
			assert.LessOrEqual(t, m.SetupCarve.EndFrame, 12)
			change := m.SetupCarve.SubPhases[SubEdgeChange]
			assert.Equal(t, m.SetupCarve.EndFrame, change[0])
			assert.GreaterOrEqual(t, change[1], 11)
			assert.LessOrEqual(t, change[1], 13)
			assert.InDelta(t, 1, m.SetupCarve.Metrics["transitionSmoothness"], 1e-6)
		})
	}
}

func TestSegmentStraightAirHasNoWindUp(t *testing.T) {
	t.Parallel()

	m, err := segment(t, testutil.DefaultRiderProfile(pose.StraightAir))
	require.NoError(t, err)
	assert.Nil(t, m.WindUp)
	assert.Nil(t, m.Snap)
	assert.Equal(t, []PhaseName{SetupCarve, Takeoff, Air, Landing}, m.Present())
	assert.Equal(t, 44, m.Landing.EndFrame, "five stable frames from the landing")
	assert.Equal(t, [2]int{41, 44}, m.Landing.SubPhases[SubRideAway])
}

func TestSegmentFrontsideWindUpAndSnap(t *testing.T) {
	t.Parallel()

	m, err := segment(t, testutil.DefaultRiderProfile(pose.Frontside))
	require.NoError(t, err)
	require.NotNil(t, m.WindUp)
	require.NotNil(t, m.Snap)

	assert.Equal(t, 13, m.WindUp.StartFrame, "first heel-edge frame with arms moving to the tail")
	assert.Equal(t, 20, m.WindUp.EndFrame, "peak counter-rotation")
	assert.Equal(t, 21, m.Snap.StartFrame)
	assert.Equal(t, 24, m.Snap.EndFrame)
	assert.InDelta(t, 600, m.Snap.Metrics["snapSpeed"], 1e-6)
	assert.Equal(t, 1.0, m.Snap.Metrics["inSweetspot"])
	assert.InDelta(t, 300, m.Air.Metrics["totalRotation"], 1e-6)
}

func TestSegmentBacksideWindUpStartsWithEdgeChange(t *testing.T) {
	t.Parallel()

	m, err := segment(t, testutil.DefaultRiderProfile(pose.Backside))
	require.NoError(t, err)
	require.NotNil(t, m.WindUp)
	assert.Equal(t, m.SetupCarve.EndFrame+1, m.WindUp.StartFrame)
	assert.Equal(t, 20, m.WindUp.EndFrame)
	assert.InDelta(t, 600, m.Snap.Metrics["snapSpeed"], 1e-6)
	assert.InDelta(t, -300, m.Air.Metrics["totalRotation"], 1e-6)
}

func TestSegmentGrab(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Grab = [2]int{28, 34}
	m, err := segment(t, p)
	require.NoError(t, err)
	assert.Equal(t, [2]int{28, 33}, m.Air.SubPhases[SubGrab])
	assert.Equal(t, 6.0, m.Air.Metrics["grabFrames"])

	m, err = segment(t, testutil.DefaultRiderProfile(pose.StraightAir))
	require.NoError(t, err)
	assert.NotContains(t, m.Air.SubPhases, SubGrab)
	assert.Equal(t, 0.0, m.Air.Metrics["grabFrames"])
}

func TestSegmentNeverAirborne(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Takeoff = -1
	m, err := segment(t, p)
	require.Error(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Present())

	var pde *PhaseDetectionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, Takeoff, pde.Phase)
}

func TestSegmentLowConfidenceNextToCrossings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		low  map[int][]pose.JointName
	}{
		{"before takeoff", map[int][]pose.JointName{24: {pose.LeftAnkle}}},
		{"at takeoff", map[int][]pose.JointName{25: {pose.RightAnkle}}},
		{"before landing", map[int][]pose.JointName{39: {pose.RightAnkle}}},
		{"both", map[int][]pose.JointName{24: {pose.LeftAnkle}, 39: {pose.RightAnkle}}},
		{"three frame gap", map[int][]pose.JointName{22: {pose.LeftAnkle}, 23: {pose.LeftAnkle}, 24: {pose.LeftAnkle}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := testutil.DefaultRiderProfile(pose.StraightAir)
			p.LowConfidence = tt.low
			m, err := segment(t, p)
			require.NoError(t, err)

			require.NotNil(t, m.Takeoff)
			require.NotNil(t, m.Landing)
			require.NotNil(t, m.Air)
			_, lowAtTakeoff := tt.low[25]
			if lowAtTakeoff {
				assert.Equal(t, 26, m.Takeoff.StartFrame, "first confident airborne frame")
			} else {
				assert.Equal(t, 25, m.Takeoff.StartFrame)
			}
			assert.Equal(t, 39, m.Air.EndFrame)
			assert.Equal(t, 40, m.Landing.StartFrame)
			assert.NoError(t, m.Validate(0, 59))
		})
	}
}

func TestSegmentCrossingGapLimit(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.LowConfidence = map[int][]pose.JointName{24: {pose.LeftAnkle}}
	cfg := DefaultConfig()
	cfg.MaxCrossingGap = 0
	m, err := Segment(signalsFor(t, p), cfg)
	require.Error(t, err)
	assert.Nil(t, m.Takeoff)

	var pde *PhaseDetectionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, Takeoff, pde.Phase)
	assert.Contains(t, pde.Reason, "never crosses")
}

func TestSegmentLoneShortCrossing(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Takeoff, p.Landing = 25, 27
	m, err := segment(t, p)
	require.NotNil(t, m.Takeoff, "a single crossing is the takeoff even below MinAirFrames: %v", err)
	assert.Equal(t, 25, m.Takeoff.StartFrame)
	for _, f := range m.Failures {
		assert.NotEqual(t, Takeoff, f.Phase)
	}
}

func TestSegmentAmbiguousTakeoff(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Takeoff, p.Landing = 10, 16
	p.ExtraHops = [][2]int{{30, 36}}
	m, err := segment(t, p)
	require.Error(t, err)
	assert.Nil(t, m.Takeoff)

	var pde *PhaseDetectionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, Takeoff, pde.Phase)
	assert.Equal(t, []int{10, 30}, pde.CandidateFrames)
}

func TestSegmentDominantTakeoff(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.ExtraHops = [][2]int{{50, 54}}
	m, err := segment(t, p)
	require.NoError(t, err)
	assert.Equal(t, 25, m.Takeoff.StartFrame, "a 15 frame air dominates a 4 frame hop")
}

func TestSegmentPartialFailure(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.EdgeAngle = func(int) float64 { return 12 }
	m, err := segment(t, p)
	require.Error(t, err)

	assert.Nil(t, m.SetupCarve)
	assert.NotNil(t, m.Takeoff)
	assert.NotNil(t, m.Air)
	assert.NotNil(t, m.Landing)
	require.Len(t, m.Failures, 1)
	assert.Equal(t, SetupCarve, m.Failures[0].Phase)
	assert.NoError(t, m.Validate(0, 59))
}

func TestSegmentLandingOutsideClip(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Landing = 60
	m, err := segment(t, p)
	require.Error(t, err)
	assert.Nil(t, m.Landing)
	require.NotNil(t, m.Air)
	assert.Equal(t, 59, m.Air.EndFrame)

	var pde *PhaseDetectionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, Landing, pde.Phase)
}

func TestSegmentUnknownTrick(t *testing.T) {
	t.Parallel()

	sig := signalsFor(t, testutil.DefaultRiderProfile(pose.StraightAir))
	cfg := DefaultConfig()
	cfg.Trick = "cork"
	m, err := Segment(sig, cfg)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestPhaseMapValidate(t *testing.T) {
	t.Parallel()

	ph := func(a, b int) *PhaseData { return newPhase(a, b) }
	tests := []struct {
		name    string
		m       PhaseMap
		wantErr bool
	}{
		{"empty", PhaseMap{Trick: pose.StraightAir}, false},
		{"ordered", PhaseMap{Trick: pose.Frontside, SetupCarve: ph(0, 5), WindUp: ph(6, 9), Snap: ph(10, 11),
			Takeoff: ph(12, 12), Air: ph(13, 20), Landing: ph(21, 25)}, false},
		{"gaps allowed", PhaseMap{Trick: pose.StraightAir, SetupCarve: ph(0, 3), Takeoff: ph(12, 12)}, false},
		{"straight air with snap", PhaseMap{Trick: pose.StraightAir, Snap: ph(3, 4)}, true},
		{"wide takeoff", PhaseMap{Trick: pose.StraightAir, Takeoff: ph(5, 6)}, true},
		{"inverted", PhaseMap{Trick: pose.StraightAir, Air: ph(9, 8)}, true},
		{"overlap", PhaseMap{Trick: pose.StraightAir, Takeoff: ph(10, 10), Air: ph(10, 15)}, true},
		{"out of range", PhaseMap{Trick: pose.StraightAir, Landing: ph(20, 40)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate(0, 30)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPhaseDetectionErrorMessage(t *testing.T) {
	t.Parallel()

	err := &PhaseDetectionError{Phase: Takeoff, Reason: "ambiguous", CandidateFrames: []int{3, 9}}
	assert.Equal(t, "phase takeoff: ambiguous (candidate frames [3 9])", err.Error())
	err.CandidateFrames = nil
	assert.Equal(t, "phase takeoff: ambiguous", err.Error())
}
