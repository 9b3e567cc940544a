package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/trick.report/internal/testutil"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
	"github.com/banshee-data/trick.report/internal/trick/l2phases"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
	"github.com/banshee-data/trick.report/internal/trick/l5compare"
	"github.com/banshee-data/trick.report/internal/trick/l6archetypes"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, e *Engine, p testutil.RiderProfile) *Analysis {
	t.Helper()
	a, err := e.Analyze(testutil.SyntheticTimeline(p))
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func TestAnalyzeStraightAir(t *testing.T) {
	t.Parallel()

	a := analyze(t, NewEngine(nil), testutil.DefaultRiderProfile(pose.StraightAir))
	assert.Equal(t, "synthetic-straight_air", a.VideoID)
	assert.Equal(t, 60, a.FrameCount)
	assert.NotEmpty(t, a.Fingerprint)
	assert.NotNil(t, a.Signals)
	assert.InDelta(t, 0.85, a.Proportions.LegLength, 0.05)

	require.NotNil(t, a.Phases.Takeoff)
	assert.Equal(t, 25, a.Phases.Takeoff.StartFrame)
	assert.Nil(t, a.Phases.WindUp)

	keys := make([]string, 0, len(a.Temporal))
	for k := range a.Temporal {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{FullRange, "setupCarve", "takeoff", "air", "landing"}, keys)
	assert.Equal(t, 60, a.Temporal[FullRange].FrameCount)

	takeoff := a.Temporal["takeoff"]
	assert.Equal(t, 20, takeoff.StartFrame, "takeoff is widened to a window")
	assert.Equal(t, 30, takeoff.EndFrame)
	assert.Equal(t, 26, a.Temporal["air"].StartFrame)
	assert.NotContains(t, a.PhaseSignals(), FullRange)
}

func TestAnalyzePhaseHeightsAboveSnow(t *testing.T) {
	t.Parallel()

	a := analyze(t, NewEngine(nil), testutil.DefaultRiderProfile(pose.StraightAir))
	for _, v := range a.Temporal["air"].BodyParts[l4temporal.LeftAnkle].Position {
		assert.GreaterOrEqual(t, v, 0.2)
	}
}

func TestAnalyzeLowConfidenceAtPop(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.LowConfidence = map[int][]pose.JointName{24: {pose.LeftAnkle}, 39: {pose.RightAnkle}}
	a := analyze(t, NewEngine(nil), p)
	assert.Empty(t, a.Phases.Failures)
	assert.Equal(t, 25, a.Phases.Takeoff.StartFrame)
	assert.Equal(t, 40, a.Phases.Landing.StartFrame)
}

func TestAnalyzeRotationalHasWindUp(t *testing.T) {
	t.Parallel()

	for _, trick := range []pose.TrickType{pose.Frontside, pose.Backside} {
		a := analyze(t, NewEngine(nil), testutil.DefaultRiderProfile(trick))
		assert.NotNil(t, a.Phases.WindUp, trick)
		assert.NotNil(t, a.Phases.Snap, trick)
		assert.Contains(t, a.Temporal, "windUp")
		assert.Contains(t, a.Temporal, "snap")
	}
}

func TestAnalyzePartialSegmentation(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.Takeoff = -1
	a, err := NewEngine(nil).Analyze(testutil.SyntheticTimeline(p))
	require.Error(t, err)
	require.NotNil(t, a, "analysis survives a segmentation failure")

	var pde *l2phases.PhaseDetectionError
	require.True(t, errors.As(err, &pde))
	assert.Equal(t, l2phases.Takeoff, pde.Phase)
	assert.Len(t, a.Phases.Failures, 1)
	assert.Contains(t, a.Temporal, FullRange)
	assert.Len(t, a.Temporal, 1)
}

func TestAnalyzeInsufficientConfidence(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.LowConfidence = map[int][]pose.JointName{}
	for i := 0; i < 40; i++ {
		p.LowConfidence[i] = []pose.JointName{pose.LeftAnkle}
	}
	a, err := NewEngine(nil).Analyze(testutil.SyntheticTimeline(p))
	assert.Nil(t, a)
	var ice *l1signals.InsufficientConfidenceError
	require.True(t, errors.As(err, &ice))
}

func TestAnalyzeRejectsInvalidTimeline(t *testing.T) {
	t.Parallel()

	tl := testutil.SyntheticTimeline(testutil.DefaultRiderProfile(pose.StraightAir))
	tl.FPS = 0
	_, err := NewEngine(nil).Analyze(tl)
	assert.Error(t, err)
}

func TestCompareSelf(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	a := analyze(t, e, testutil.DefaultRiderProfile(pose.Frontside))
	c, err := e.Compare(a, a)
	require.NoError(t, err)

	assert.InDelta(t, 100, c.Overall.OverallSimilarityScore, 1e-6)
	assert.Equal(t, []string{"setupCarve", "windUp", "snap", "takeoff", "air", "landing"}, c.Phases.Order)
	assert.Empty(t, c.Phases.Excluded)
	for name, res := range c.Phases.Phases {
		assert.InDelta(t, 100, res.OverallSimilarityScore, 1e-6, name)
	}
	assert.Empty(t, c.Archetypes)
	assert.Equal(t, pose.Frontside, c.Trick)
}

func TestCompareExcludesUnmatchedPhases(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	ref := analyze(t, e, testutil.DefaultRiderProfile(pose.Frontside))

	p := testutil.DefaultRiderProfile(pose.Frontside)
	p.ArmReach = func(int) float64 { return 0 }
	rider, err := e.Analyze(testutil.SyntheticTimeline(p))
	require.Error(t, err, "no arm swing, no frontside wind-up")
	require.NotNil(t, rider)
	require.Nil(t, rider.Phases.WindUp)

	c, err := e.Compare(rider, ref)
	require.NoError(t, err)
	excluded := make([]string, 0, len(c.Phases.Excluded))
	for _, x := range c.Phases.Excluded {
		excluded = append(excluded, x.Phase)
		assert.False(t, x.RiderHas)
		assert.True(t, x.ReferenceHas)
	}
	assert.Equal(t, []string{"windUp", "snap"}, excluded)
	assert.NotContains(t, c.Phases.Phases, "windUp")
	assert.Contains(t, c.Phases.Phases, "air")
}

func TestCompareDetectsUnderRotation(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	ref := analyze(t, e, testutil.DefaultRiderProfile(pose.Frontside))

	p := testutil.DefaultRiderProfile(pose.Frontside)
	base := p.ChestYaw
	p.ChestYaw = func(i int) float64 {
		if i <= 25 {
			return base(i)
		}
		return 60 + (base(i)-60)*220.0/300
	}
	rider := analyze(t, e, p)

	c, err := e.Compare(rider, ref)
	require.NoError(t, err)
	assert.Less(t, c.Overall.OverallSimilarityScore, 100.0)

	var found *l5compare.Archetype
	for i, a := range c.Phases.Phases["air"].Archetypes {
		if a.Name == l6archetypes.UnderRotation {
			found = &c.Phases.Phases["air"].Archetypes[i]
		}
	}
	require.NotNil(t, found, "air archetypes: %+v", c.Phases.Phases["air"].Archetypes)
	assert.Equal(t, "air", found.Phase)
	assert.Greater(t, found.Confidence, 0.5)
	assert.NotEmpty(t, found.CoachingTip)
	assert.LessOrEqual(t, len(c.Archetypes), 3)
	assert.Equal(t, c.Archetypes, c.Overall.Archetypes)
}

func TestCompareRejectsDifferentTricks(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	fs := analyze(t, e, testutil.DefaultRiderProfile(pose.Frontside))
	bs := analyze(t, e, testutil.DefaultRiderProfile(pose.Backside))
	_, err := e.Compare(fs, bs)
	assert.Error(t, err)
	_, err = e.Compare(nil, bs)
	assert.Error(t, err)
}

type fixedTips string

func (f fixedTips) Tip(pose.TrickType, string, string) (string, bool) { return string(f), true }

func TestWithTips(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, WithTips(fixedTips("keep it mellow")))
	tip, ok := e.tips.Tip(pose.Frontside, "air", l6archetypes.ArmFlail)
	assert.True(t, ok)
	assert.Equal(t, "keep it mellow", tip)
	assert.NotNil(t, e.Config())
}

func TestAnalyzeBatch(t *testing.T) {
	t.Parallel()

	bad := testutil.SyntheticTimeline(testutil.DefaultRiderProfile(pose.Backside))
	bad.VideoID = "bad"
	bad.FPS = 0
	timelines := []*pose.Timeline{
		testutil.SyntheticTimeline(testutil.DefaultRiderProfile(pose.StraightAir)),
		bad,
		testutil.SyntheticTimeline(testutil.DefaultRiderProfile(pose.Frontside)),
	}

	results, err := NewEngine(nil).AnalyzeBatch(context.Background(), timelines, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Analysis)
	assert.Equal(t, "bad", results[1].VideoID)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Analysis)
	assert.Equal(t, pose.Frontside, results[2].Analysis.Trick)
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	timelines := []*pose.Timeline{testutil.SyntheticTimeline(testutil.DefaultRiderProfile(pose.StraightAir))}
	results, err := NewEngine(nil).AnalyzeBatch(ctx, timelines, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
