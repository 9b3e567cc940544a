package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertStatusCode_Matching(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	assert.False(t, fakeT.Failed())
}

func TestNewJSONRequest(t *testing.T) {
	req := NewJSONRequest(t, http.MethodPost, "/api/analyses", map[string]int{"a": 1})
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	rec := httptest.NewRecorder()
	_, _ = rec.Body.WriteString(`{"a":1}`)
	var got map[string]int
	DecodeJSON(t, rec, &got)
	assert.Equal(t, 1, got["a"])
}

func TestSyntheticTimeline(t *testing.T) {
	t.Parallel()

	for _, trick := range []pose.TrickType{pose.StraightAir, pose.Frontside, pose.Backside} {
		t.Run(string(trick), func(t *testing.T) {
			t.Parallel()
			tl := SyntheticTimeline(DefaultRiderProfile(trick))
			require.NoError(t, tl.Validate())
			require.Len(t, tl.Frames, 60)
			assert.Len(t, tl.Frames[0].Joints, len(pose.AllJoints()))

			ankleY := func(i int) float64 { return tl.Frames[i].Joints[pose.LeftAnkle].Y }
			assert.InDelta(t, syntheticAnkle, ankleY(24), 1e-9)
			assert.Greater(t, ankleY(25), syntheticAnkle+0.19)
			assert.Greater(t, ankleY(39), syntheticAnkle+0.19)
			assert.InDelta(t, syntheticAnkle, ankleY(40), 1e-9)
		})
	}
}

func TestSyntheticTimelineChestYaw(t *testing.T) {
	t.Parallel()

	tl := SyntheticTimeline(DefaultRiderProfile(pose.Frontside))
	axis := func(i int) pose.Vec3 {
		f := tl.Frames[i]
		return f.Joints[pose.LeftShoulder].Vec().Sub(f.Joints[pose.RightShoulder].Vec())
	}
	assert.InDelta(t, -40, pose.SignedAngleAboutUp(axis(0), axis(20)), 1e-6)
	assert.InDelta(t, 60, pose.SignedAngleAboutUp(axis(0), axis(25)), 1e-6)
}

func TestSyntheticTimelineLowConfidence(t *testing.T) {
	t.Parallel()

	p := DefaultRiderProfile(pose.StraightAir)
	p.LowConfidence = map[int][]pose.JointName{3: {pose.Head}}
	tl := SyntheticTimeline(p)
	assert.Equal(t, 0.1, tl.Frames[3].Joints[pose.Head].Confidence)
	assert.Equal(t, syntheticConfidence, tl.Frames[4].Joints[pose.Head].Confidence)
}

func TestSyntheticTimelineScale(t *testing.T) {
	t.Parallel()

	p := DefaultRiderProfile(pose.StraightAir)
	p.Scale = 2
	tl := SyntheticTimeline(p)
	f := tl.Frames[0]
	hips := f.Joints[pose.LeftHip].Vec().Midpoint(f.Joints[pose.RightHip].Vec())
	ankles := f.Joints[pose.LeftAnkle].Vec().Midpoint(f.Joints[pose.RightAnkle].Vec())
	assert.InDelta(t, 2*syntheticLeg, hips.Distance(ankles), 1e-9)
}
