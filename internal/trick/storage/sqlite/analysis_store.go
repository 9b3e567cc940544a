package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// AnalysisRecord is a persisted analysis with its bookkeeping columns.
type AnalysisRecord struct {
	VideoID     string             `json:"videoId"`
	Trick       pose.TrickType     `json:"trick"`
	Stance      pose.Stance        `json:"stance"`
	Fingerprint string             `json:"fingerprint"`
	FrameCount  int                `json:"frameCount"`
	Analysis    *pipeline.Analysis `json:"analysis"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// AnalysisStore caches one analysis per video.
type AnalysisStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewAnalysisStore creates an AnalysisStore. A nil clock uses the wall clock.
func NewAnalysisStore(db *sql.DB, clock timeutil.Clock) *AnalysisStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &AnalysisStore{db: db, clock: clock}
}

// Save inserts or replaces the analysis for a.VideoID. created_at is kept
// across replacements.
func (s *AnalysisStore) Save(a *pipeline.Analysis) error {
	if a == nil || a.VideoID == "" {
		return errors.New("save analysis: missing video id")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis %s: %w", a.VideoID, err)
	}
	now := s.clock.Now().UnixNano()
	err = retryOnBusy(s.clock, func() error {
		_, err := s.db.Exec(`
			INSERT INTO trick_analyses (
				video_id, trick, stance, fingerprint, frame_count, analysis_json, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (video_id) DO UPDATE SET
				trick = excluded.trick,
				stance = excluded.stance,
				fingerprint = excluded.fingerprint,
				frame_count = excluded.frame_count,
				analysis_json = excluded.analysis_json,
				updated_at = excluded.updated_at`,
			a.VideoID, string(a.Trick), string(a.Stance), a.Fingerprint, a.FrameCount, string(body), now, now,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving analysis %s: %w", a.VideoID, err)
	}
	return nil
}

// Get returns the stored analysis for a video, or ErrNotFound.
func (s *AnalysisStore) Get(videoID string) (*AnalysisRecord, error) {
	row := s.db.QueryRow(`
		SELECT video_id, trick, stance, fingerprint, frame_count, analysis_json, created_at, updated_at
		FROM trick_analyses
		WHERE video_id = ?`, videoID)

	var (
		r                    AnalysisRecord
		trick, stance, body  string
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.VideoID, &trick, &stance, &r.Fingerprint, &r.FrameCount, &body, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	r.Trick, r.Stance = pose.TrickType(trick), pose.Stance(stance)
	r.CreatedAt, r.UpdatedAt = time.Unix(0, createdAt), time.Unix(0, updatedAt)
	r.Analysis = &pipeline.Analysis{}
	if err := json.Unmarshal([]byte(body), r.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", videoID, err)
	}
	return &r, nil
}

// GetFresh returns the cached analysis only if it was computed from a
// timeline with the given fingerprint. ok is false when there is no row
// or the row is stale.
func (s *AnalysisStore) GetFresh(videoID, fingerprint string) (a *pipeline.Analysis, ok bool, err error) {
	r, err := s.Get(videoID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if r.Fingerprint != fingerprint {
		return nil, false, nil
	}
	return r.Analysis, true, nil
}

// Delete removes the analysis for a video.
func (s *AnalysisStore) Delete(videoID string) error {
	return retryOnBusy(s.clock, func() error {
		res, err := s.db.Exec(`DELETE FROM trick_analyses WHERE video_id = ?`, videoID)
		if err != nil {
			return fmt.Errorf("delete analysis: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("analysis %s: %w", videoID, ErrNotFound)
		}
		return nil
	})
}
