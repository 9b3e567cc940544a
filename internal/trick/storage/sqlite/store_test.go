package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/trick.report/internal/db"
	"github.com/banshee-data/trick.report/internal/testutil"
	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "trick.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d.DB
}

func analyze(t *testing.T, p testutil.RiderProfile) *pipeline.Analysis {
	t.Helper()
	a, err := pipeline.NewEngine(nil).Analyze(testutil.SyntheticTimeline(p))
	require.NoError(t, err)
	return a
}

var analysisOpts = []cmp.Option{
	cmpopts.IgnoreFields(pipeline.Analysis{}, "Signals"),
	cmpopts.EquateEmpty(),
}

func TestAnalysisStoreRoundTrip(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	store := NewAnalysisStore(openTestDB(t), clock)
	a := analyze(t, testutil.DefaultRiderProfile(pose.Frontside))

	require.NoError(t, store.Save(a))
	rec, err := store.Get(a.VideoID)
	require.NoError(t, err)
	assert.Equal(t, pose.Frontside, rec.Trick)
	assert.Equal(t, pose.Regular, rec.Stance)
	assert.Equal(t, 60, rec.FrameCount)
	assert.Equal(t, a.Fingerprint, rec.Fingerprint)
	assert.True(t, rec.CreatedAt.Equal(epoch))
	if diff := cmp.Diff(a, rec.Analysis, analysisOpts...); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, rec.Analysis.Signals, "signals are not persisted")
}

func TestAnalysisStoreReplaceKeepsCreatedAt(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	store := NewAnalysisStore(openTestDB(t), clock)
	a := analyze(t, testutil.DefaultRiderProfile(pose.StraightAir))
	require.NoError(t, store.Save(a))

	clock.Advance(time.Hour)
	a.Fingerprint = "changed"
	require.NoError(t, store.Save(a))

	rec, err := store.Get(a.VideoID)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(epoch))
	assert.True(t, rec.UpdatedAt.Equal(epoch.Add(time.Hour)))
	assert.Equal(t, "changed", rec.Fingerprint)
}

func TestAnalysisStoreGetFresh(t *testing.T) {
	t.Parallel()
	store := NewAnalysisStore(openTestDB(t), nil)
	a := analyze(t, testutil.DefaultRiderProfile(pose.StraightAir))
	require.NoError(t, store.Save(a))

	got, ok, err := store.GetFresh(a.VideoID, a.Fingerprint)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, a.VideoID, got.VideoID)

	_, ok, err = store.GetFresh(a.VideoID, "stale")
	require.NoError(t, err)
	assert.False(t, ok, "a different source fingerprint invalidates the cache")

	_, ok, err = store.GetFresh("unknown", a.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalysisStoreErrors(t *testing.T) {
	t.Parallel()
	store := NewAnalysisStore(openTestDB(t), nil)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("missing"), ErrNotFound)
	assert.Error(t, store.Save(nil))
	assert.Error(t, store.Save(&pipeline.Analysis{}))

	a := analyze(t, testutil.DefaultRiderProfile(pose.StraightAir))
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Delete(a.VideoID))
	_, err = store.Get(a.VideoID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReferenceStore(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	store := NewReferenceStore(openTestDB(t), clock)

	fs := analyze(t, testutil.DefaultRiderProfile(pose.Frontside))
	ref1, err := store.Register("pro-fs-360", "pro frontside", fs)
	require.NoError(t, err)
	assert.Equal(t, "pro-fs-360", ref1.ReferenceID)

	clock.Advance(time.Minute)
	air := analyze(t, testutil.DefaultRiderProfile(pose.StraightAir))
	ref2, err := store.Register("", "", air)
	require.NoError(t, err)
	assert.Len(t, ref2.ReferenceID, 36, "generated ids are UUIDs")

	got, err := store.Get("pro-fs-360")
	require.NoError(t, err)
	assert.Equal(t, "pro frontside", got.Label)
	assert.Equal(t, pose.Frontside, got.Trick)
	if diff := cmp.Diff(fs, got.Analysis, analysisOpts...); diff != "" {
		t.Errorf("reference analysis mismatch (-want +got):\n%s", diff)
	}

	all, err := store.ListByTrick("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ref2.ReferenceID, all[0].ReferenceID, "newest first")
	assert.Nil(t, all[0].Analysis, "listings omit the analysis body")

	frontside, err := store.ListByTrick(pose.Frontside)
	require.NoError(t, err)
	require.Len(t, frontside, 1)
	assert.Equal(t, "pro-fs-360", frontside[0].ReferenceID)

	none, err := store.ListByTrick(pose.Backside)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, store.Delete("pro-fs-360"))
	_, err = store.Get("pro-fs-360")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("pro-fs-360"), ErrNotFound)
	_, err = store.Register("x", "", nil)
	assert.Error(t, err)
}

func TestComparisonStore(t *testing.T) {
	t.Parallel()
	sqlDB := openTestDB(t)
	clock := timeutil.NewMockClock(epoch)
	refs := NewReferenceStore(sqlDB, clock)
	store := NewComparisonStore(sqlDB, clock)

	engine := pipeline.NewEngine(nil)
	ref := analyze(t, testutil.DefaultRiderProfile(pose.Frontside))
	_, err := refs.Register("pro", "", ref)
	require.NoError(t, err)

	p := testutil.DefaultRiderProfile(pose.Frontside)
	p.VideoID = "rider-1"
	rider := analyze(t, p)
	c, err := engine.Compare(rider, ref)
	require.NoError(t, err)

	sc := &StoredComparison{
		RiderVideoID:         rider.VideoID,
		ReferenceID:          "pro",
		RiderFingerprint:     rider.Fingerprint,
		ReferenceFingerprint: ref.Fingerprint,
		Comparison:           c,
	}
	require.NoError(t, store.Save(sc))
	firstID := sc.ComparisonID
	require.NotEmpty(t, firstID)
	assert.InDelta(t, c.Overall.OverallSimilarityScore, sc.OverallScore, 1e-9)

	got, err := store.Get(rider.VideoID, "pro")
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ComparisonID)
	if diff := cmp.Diff(c, got.Comparison, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("comparison mismatch (-want +got):\n%s", diff)
	}

	_, ok, err := store.GetFresh(rider.VideoID, "pro", rider.Fingerprint, ref.Fingerprint)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = store.GetFresh(rider.VideoID, "pro", "other", ref.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	again := &StoredComparison{
		RiderVideoID:         rider.VideoID,
		ReferenceID:          "pro",
		RiderFingerprint:     "new",
		ReferenceFingerprint: ref.Fingerprint,
		Comparison:           c,
	}
	require.NoError(t, store.Save(again))
	assert.Equal(t, firstID, again.ComparisonID, "replacing a pair keeps its id")

	list, err := store.ListByRider(rider.VideoID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].RiderFingerprint)

	_, err = refs.Register("pro", "", ref)
	require.NoError(t, err)
	_, err = store.Get(rider.VideoID, "pro")
	assert.ErrorIs(t, err, ErrNotFound, "re-registering a reference drops its cached comparisons")
}

func TestComparisonStoreRejectsIncomplete(t *testing.T) {
	t.Parallel()
	store := NewComparisonStore(openTestDB(t), nil)
	assert.Error(t, store.Save(nil))
	assert.Error(t, store.Save(&StoredComparison{RiderVideoID: "a", ReferenceID: "b"}))
	assert.Error(t, store.Save(&StoredComparison{Comparison: &pipeline.Comparison{}}))
	assert.Error(t, store.Save(&StoredComparison{RiderVideoID: "a", ReferenceID: "missing", Comparison: &pipeline.Comparison{}}),
		"the reference must exist")
}
