package l3proportions

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/trick.report/internal/testutil"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tPose is an upright skeleton with round numbers: shoulders 0.4 apart,
// hips 0.2 apart, arms 0.6, legs 0.9, torso 0.5, head 1.7 above the ankles.
func tPose(n int) pose.Frame {
	j := func(x, y float64) pose.Joint { return pose.Joint{X: x, Y: y, Confidence: 0.9} }
	return pose.Frame{
		FrameNumber: n,
		Joints: map[pose.JointName]pose.Joint{
			pose.Head:          j(0, 1.7),
			pose.LeftShoulder:  j(0.2, 1.4),
			pose.RightShoulder: j(-0.2, 1.4),
			pose.LeftWrist:     j(0.8, 1.4),
			pose.RightWrist:    j(-0.8, 1.4),
			pose.LeftHip:       j(0.1, 0.9),
			pose.RightHip:      j(-0.1, 0.9),
			pose.LeftAnkle:     j(0.1, 0),
			pose.RightAnkle:    j(-0.1, 0),
		},
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	got, err := Extract(tPose(0), 0.3)
	require.NoError(t, err)
	want := BodyProportions{Height: 1.7, ArmLength: 0.6, LegLength: 0.9, TorsoLength: 0.5, ShoulderWidth: 0.4, HipWidth: 0.2}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractFallsBackToOneSide(t *testing.T) {
	t.Parallel()

	f := tPose(4)
	lw := f.Joints[pose.LeftWrist]
	lw.Confidence = 0.1
	f.Joints[pose.LeftWrist] = lw
	rw := f.Joints[pose.RightWrist]
	rw.X = -1.0
	f.Joints[pose.RightWrist] = rw

	got, err := Extract(f, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.ArmLength, 1e-9, "right arm only")
}

func TestExtractMissingJoints(t *testing.T) {
	t.Parallel()

	f := tPose(7)
	delete(f.Joints, pose.Head)
	_, err := Extract(f, 0.3)
	require.Error(t, err)

	var pee *ProportionExtractionError
	require.True(t, errors.As(err, &pee))
	assert.Equal(t, Height, pee.Dimension)
	assert.Equal(t, 7, pee.FrameNumber)
	assert.Equal(t, []pose.JointName{pose.Head}, pee.MissingJoints)
	assert.Contains(t, err.Error(), "frame 7")

	f = tPose(8)
	delete(f.Joints, pose.LeftWrist)
	delete(f.Joints, pose.RightWrist)
	_, err = Extract(f, 0.3)
	require.True(t, errors.As(err, &pee))
	assert.Equal(t, ArmLength, pee.Dimension)
	assert.ElementsMatch(t, []pose.JointName{pose.LeftWrist, pose.RightWrist}, pee.MissingJoints)
}

func TestExtractFromFramesTakesMedian(t *testing.T) {
	t.Parallel()

	glitch := tPose(1)
	head := glitch.Joints[pose.Head]
	head.Y = 3
	glitch.Joints[pose.Head] = head
	noHead := tPose(2)
	delete(noHead.Joints, pose.Head)

	got, err := ExtractFromFrames([]pose.Frame{tPose(0), glitch, tPose(3), noHead, tPose(4)}, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 1.7, got.Height, 1e-9)
	assert.InDelta(t, 0.9, got.LegLength, 1e-9)

	_, err = ExtractFromFrames([]pose.Frame{noHead}, 0.3)
	var pee *ProportionExtractionError
	require.True(t, errors.As(err, &pee))
	assert.Equal(t, 2, pee.FrameNumber)

	_, err = ExtractFromFrames(nil, 0.3)
	assert.Error(t, err)
}

func TestExtractSyntheticRiderScales(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultRiderProfile(pose.StraightAir)
	small, err := ExtractFromFrames(testutil.SyntheticTimeline(p).Frames, 0.3)
	require.NoError(t, err)
	p.Scale = 1.2
	large, err := ExtractFromFrames(testutil.SyntheticTimeline(p).Frames, 0.3)
	require.NoError(t, err)

	ratios, err := ComputeRatios(large, small)
	require.NoError(t, err)
	for _, d := range Dimensions() {
		assert.InDelta(t, 1.2, ratios[d], 1e-9, string(d))
	}
	assert.InDelta(t, 0.2, ratios.MismatchScore(), 1e-9)
}

func TestComputeRatios(t *testing.T) {
	t.Parallel()

	ref := BodyProportions{Height: 180, ArmLength: 60, LegLength: 90, TorsoLength: 50, ShoulderWidth: 40, HipWidth: 30}
	rider := BodyProportions{Height: 165, ArmLength: 60, LegLength: 90, TorsoLength: 50, ShoulderWidth: 40, HipWidth: 30}

	r, err := ComputeRatios(ref, rider)
	require.NoError(t, err)
	assert.InDelta(t, 1.0909, r[Height], 1e-4)
	assert.InDelta(t, 10.909, 10*r[Height], 1e-3)
	assert.Equal(t, 1.0, r[ArmLength])

	_, err = ComputeRatios(ref, BodyProportions{})
	assert.Error(t, err)
}

func TestAssessMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score       float64
		significant bool
	}{
		{0.20, true},
		{0.10, false},
		{0.15, false},
		{0, false},
	}
	for _, tt := range tests {
		got := Assess(tt.score, 0.15)
		assert.Equal(t, tt.significant, got.Significant, "score %v", tt.score)
		assert.Equal(t, tt.score, got.Score)
	}

	uniform := Ratios{}
	for _, d := range Dimensions() {
		uniform[d] = 0.8
	}
	assert.InDelta(t, 0.2, uniform.MismatchScore(), 1e-12)
	assert.Equal(t, 0.0, Ratios{}.MismatchScore())
}

func TestMismatchScoreOrderIndependent(t *testing.T) {
	t.Parallel()

	r := Ratios{
		Height: 1.1, ArmLength: 0.93, LegLength: 1.07,
		TorsoLength: 0.81, ShoulderWidth: 1.3, HipWidth: 0.999,
	}
	want := 0.0
	for _, d := range Dimensions() {
		want += math.Abs(r[d] - 1)
	}
	want /= 6

	for range 50 {
		assert.Equal(t, want, r.MismatchScore(), "summed in dimension order on every call")
	}

	partial := Ratios{Height: 1.2, HipWidth: 0.9}
	assert.InDelta(t, 0.15, partial.MismatchScore(), 1e-12)
}
