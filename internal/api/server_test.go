package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/trick.report/internal/testutil"
	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/l2phases"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/banshee-data/trick.report/internal/trick/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	s := NewServer(cloneTestDB(t), pipeline.NewEngine(nil), clock)
	return s, s.ServeMux()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func riderTimeline(videoID string, trick pose.TrickType) *pose.Timeline {
	p := testutil.DefaultRiderProfile(trick)
	p.VideoID = videoID
	return testutil.SyntheticTimeline(p)
}

func postAnalysis(t *testing.T, h http.Handler, tl *pose.Timeline) AnalysisResponse {
	t.Helper()
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/analyses", tl))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp AnalysisResponse
	testutil.DecodeJSON(t, rec, &resp)
	return resp
}

func TestCreateAnalysisCachesByFingerprint(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	tl := riderTimeline("rider-1", pose.Frontside)

	first := postAnalysis(t, h, tl)
	require.NotNil(t, first.Analysis)
	assert.False(t, first.Cached)
	assert.Empty(t, first.Warnings)
	assert.Equal(t, "rider-1", first.VideoID)
	assert.NotEmpty(t, first.Fingerprint)
	assert.Contains(t, first.Temporal, pipeline.FullRange)

	second := postAnalysis(t, h, tl)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	j := tl.Frames[10].Joints[pose.Pelvis]
	j.X += 0.01
	tl.Frames[10].Joints[pose.Pelvis] = j
	third := postAnalysis(t, h, tl)
	assert.False(t, third.Cached, "changed poses are re-analysed")
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestCreateAnalysisPartial(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.VideoID, p.Takeoff = "never-airborne", -1

	resp := postAnalysis(t, h, testutil.SyntheticTimeline(p))
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "takeoff")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/analyses?video_id=never-airborne", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var stored sqlite.AnalysisRecord
	testutil.DecodeJSON(t, rec, &stored)
	require.NotNil(t, stored.Analysis)
	assert.Len(t, stored.Analysis.Phases.Failures, 1)
}

func TestCreateAnalysisInsufficientConfidence(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	p := testutil.DefaultRiderProfile(pose.StraightAir)
	p.LowConfidence = map[int][]pose.JointName{}
	for i := 0; i < 40; i++ {
		p.LowConfidence[i] = []pose.JointName{pose.LeftAnkle}
	}

	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/analyses", testutil.SyntheticTimeline(p)))
	testutil.AssertStatusCode(t, rec.Code, http.StatusUnprocessableEntity)
	var body struct {
		Error   string `json:"error"`
		Details struct {
			Signal        string `json:"signal"`
			InvalidFrames int    `json:"invalidFrames"`
		} `json:"details"`
	}
	testutil.DecodeJSON(t, rec, &body)
	assert.NotEmpty(t, body.Details.Signal)
	assert.Positive(t, body.Details.InvalidFrames)
}

func TestAnalysesRequestErrors(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"garbage body", httptest.NewRequest(http.MethodPost, "/api/analyses", strings.NewReader("{")), http.StatusBadRequest},
		{"invalid timeline", testutil.NewJSONRequest(t, http.MethodPost, "/api/analyses", pose.Timeline{VideoID: "x", FPS: 30, Trick: "kickflip"}), http.StatusBadRequest},
		{"missing id", httptest.NewRequest(http.MethodGet, "/api/analyses", nil), http.StatusBadRequest},
		{"unknown id", httptest.NewRequest(http.MethodGet, "/api/analyses?video_id=nope", nil), http.StatusNotFound},
		{"delete unknown", httptest.NewRequest(http.MethodDelete, "/api/analyses?video_id=nope", nil), http.StatusNotFound},
		{"wrong method", httptest.NewRequest(http.MethodPut, "/api/analyses", nil), http.StatusMethodNotAllowed},
		{"batch wrong method", httptest.NewRequest(http.MethodGet, "/api/analyses/batch", nil), http.StatusMethodNotAllowed},
		{"batch empty", testutil.NewJSONRequest(t, http.MethodPost, "/api/analyses/batch", map[string]any{"timelines": []any{}}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.req)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestDeleteAnalysis(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	postAnalysis(t, h, riderTimeline("gone", pose.StraightAir))

	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/api/analyses?video_id=gone", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/analyses?video_id=gone", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestAnalysesBatch(t *testing.T) {
	t.Parallel()
	s, h := newTestServer(t)
	s.SetBatchWorkers(2)
	postAnalysis(t, h, riderTimeline("seen", pose.StraightAir))

	body := map[string]any{"timelines": []any{
		riderTimeline("seen", pose.StraightAir),
		riderTimeline("new-fs", pose.Frontside),
		pose.Timeline{VideoID: "broken", FPS: 0, Trick: pose.Frontside},
		nil,
	}}
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/analyses/batch", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var items []BatchItem
	testutil.DecodeJSON(t, rec, &items)
	require.Len(t, items, 4)
	assert.True(t, items[0].Cached)
	assert.Equal(t, "new-fs", items[1].VideoID)
	assert.False(t, items[1].Cached)
	assert.Empty(t, items[1].Error)
	assert.Contains(t, items[2].Error, "fps")
	assert.Equal(t, "null timeline", items[3].Error)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/analyses?video_id=new-fs", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestReferences(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/references?trick=frontside", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var list struct {
		References []sqlite.Reference `json:"references"`
	}
	testutil.DecodeJSON(t, rec, &list)
	require.Len(t, list.References, 1)
	assert.Equal(t, seededReferenceID, list.References[0].ReferenceID)

	postAnalysis(t, h, riderTimeline("coach-air", pose.StraightAir))
	rec = serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/references",
		RegisterReferenceRequest{ReferenceID: "coach", Label: "coach straight air", VideoID: "coach-air"}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var ref sqlite.Reference
	testutil.DecodeJSON(t, rec, &ref)
	assert.Equal(t, "coach", ref.ReferenceID)
	assert.Equal(t, pose.StraightAir, ref.Trick)
	assert.Nil(t, ref.Analysis)

	rec = serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/references",
		RegisterReferenceRequest{Timeline: riderTimeline("pro-bs", pose.Backside)}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	testutil.DecodeJSON(t, rec, &ref)
	assert.Len(t, ref.ReferenceID, 36)
	assert.Equal(t, pose.Backside, ref.Trick)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/references?reference_id=coach", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &ref)
	require.NotNil(t, ref.Analysis, "single lookups include the analysis")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/references", nil))
	testutil.DecodeJSON(t, rec, &list)
	assert.Len(t, list.References, 3)

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/api/references?reference_id=coach", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
}

func TestReferencesRequestErrors(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"bad trick", httptest.NewRequest(http.MethodGet, "/api/references?trick=kickflip", nil), http.StatusBadRequest},
		{"unknown id", httptest.NewRequest(http.MethodGet, "/api/references?reference_id=nope", nil), http.StatusNotFound},
		{"no source", testutil.NewJSONRequest(t, http.MethodPost, "/api/references", RegisterReferenceRequest{Label: "x"}), http.StatusBadRequest},
		{"unknown video", testutil.NewJSONRequest(t, http.MethodPost, "/api/references", RegisterReferenceRequest{VideoID: "nope"}), http.StatusNotFound},
		{"invalid timeline", testutil.NewJSONRequest(t, http.MethodPost, "/api/references", RegisterReferenceRequest{Timeline: &pose.Timeline{FPS: 30, Trick: pose.Frontside}}), http.StatusBadRequest},
		{"delete without id", httptest.NewRequest(http.MethodDelete, "/api/references", nil), http.StatusBadRequest},
		{"wrong method", httptest.NewRequest(http.MethodPatch, "/api/references", nil), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertStatusCode(t, serve(h, tt.req).Code, tt.status)
		})
	}
}

func TestComparisons(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	postAnalysis(t, h, riderTimeline("rider-fs", pose.Frontside))

	compare := func() ComparisonResponse {
		rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons",
			CompareRequest{RiderVideoID: "rider-fs", ReferenceID: seededReferenceID}))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var resp ComparisonResponse
		testutil.DecodeJSON(t, rec, &resp)
		return resp
	}

	first := compare()
	require.NotNil(t, first.StoredComparison)
	assert.False(t, first.Cached)
	require.NotNil(t, first.Comparison)
	assert.Equal(t, pose.Frontside, first.Comparison.Trick)
	assert.InDelta(t, 100, first.OverallScore, 1, "identical motion scores near 100")
	assert.NotEmpty(t, first.Comparison.Phases.Order)

	second := compare()
	assert.True(t, second.Cached)
	assert.Equal(t, first.ComparisonID, second.ComparisonID)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/comparisons?rider_video_id=rider-fs", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var list struct {
		Comparisons []sqlite.StoredComparison `json:"comparisons"`
	}
	testutil.DecodeJSON(t, rec, &list)
	require.Len(t, list.Comparisons, 1)

	rec = serve(h, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/comparisons?rider_video_id=rider-fs&reference_id=%s", seededReferenceID), nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestComparisonsRequestErrors(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	postAnalysis(t, h, riderTimeline("rider-air", pose.StraightAir))

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"trick mismatch", testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons",
			CompareRequest{RiderVideoID: "rider-air", ReferenceID: seededReferenceID}), http.StatusUnprocessableEntity},
		{"unknown rider", testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons",
			CompareRequest{RiderVideoID: "nope", ReferenceID: seededReferenceID}), http.StatusNotFound},
		{"unknown reference", testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons",
			CompareRequest{RiderVideoID: "rider-air", ReferenceID: "nope"}), http.StatusNotFound},
		{"missing fields", testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons", CompareRequest{}), http.StatusBadRequest},
		{"list without rider", httptest.NewRequest(http.MethodGet, "/api/comparisons", nil), http.StatusBadRequest},
		{"uncompared pair", httptest.NewRequest(http.MethodGet, "/api/comparisons?rider_video_id=rider-air&reference_id=x", nil), http.StatusNotFound},
		{"chart before compare", httptest.NewRequest(http.MethodGet,
			"/api/comparisons/chart?rider_video_id=rider-air&reference_id="+seededReferenceID, nil), http.StatusNotFound},
		{"chart missing params", httptest.NewRequest(http.MethodGet, "/api/comparisons/chart", nil), http.StatusBadRequest},
		{"wrong method", httptest.NewRequest(http.MethodDelete, "/api/comparisons", nil), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertStatusCode(t, serve(h, tt.req).Code, tt.status)
		})
	}
}

func TestComparisonChart(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)
	postAnalysis(t, h, riderTimeline("rider-fs", pose.Frontside))
	rec := serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/api/comparisons",
		CompareRequest{RiderVideoID: "rider-fs", ReferenceID: seededReferenceID}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = serve(h, httptest.NewRequest(http.MethodGet,
		"/api/comparisons/chart?rider_video_id=rider-fs&reference_id="+seededReferenceID, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Similarity by phase")
	assert.Contains(t, rec.Body.String(), "rider-fs vs "+seededReferenceID)
}

func TestShowConfig(t *testing.T) {
	t.Parallel()
	_, h := newTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var body struct {
		Version string         `json:"version"`
		Tuning  map[string]any `json:"tuning"`
	}
	testutil.DecodeJSON(t, rec, &body)
	assert.Equal(t, "dev", body.Version)
	assert.EqualValues(t, 100, body.Tuning["resample_count"])
	assert.Equal(t, "30s", body.Tuning["analysis_timeout"])

	testutil.AssertStatusCode(t, serve(h, httptest.NewRequest(http.MethodPost, "/api/config", nil)).Code, http.StatusMethodNotAllowed)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/config?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "418")
	assert.Contains(t, buf.String(), "/api/config?x=1")
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"422"+colorReset, statusCodeColor(422))
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestPhaseDetectionErrors(t *testing.T) {
	t.Parallel()
	takeoff := &l2phases.PhaseDetectionError{Phase: l2phases.Takeoff, Reason: "no airborne run"}
	landing := &l2phases.PhaseDetectionError{Phase: l2phases.Landing, Reason: "no impact"}
	err := fmt.Errorf("analyze x: %w", errors.Join(takeoff, errors.New("other"), landing))

	got := phaseDetectionErrors(err)
	assert.Equal(t, []*l2phases.PhaseDetectionError{takeoff, landing}, got)
	assert.Empty(t, phaseDetectionErrors(errors.New("plain")))
	assert.Empty(t, phaseDetectionErrors(nil))
}
