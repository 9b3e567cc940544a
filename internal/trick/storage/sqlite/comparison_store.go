package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/google/uuid"
)

// StoredComparison is a cached comparison of a rider's video against a
// reference, with the fingerprints of both sources at computation time.
type StoredComparison struct {
	ComparisonID         string               `json:"comparisonId"`
	RiderVideoID         string               `json:"riderVideoId"`
	ReferenceID          string               `json:"referenceId"`
	RiderFingerprint     string               `json:"riderFingerprint"`
	ReferenceFingerprint string               `json:"referenceFingerprint"`
	OverallScore         float64              `json:"overallScore"`
	Comparison           *pipeline.Comparison `json:"comparison"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// ComparisonStore caches one comparison per (rider video, reference) pair.
type ComparisonStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewComparisonStore creates a ComparisonStore. A nil clock uses the wall clock.
func NewComparisonStore(db *sql.DB, clock timeutil.Clock) *ComparisonStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ComparisonStore{db: db, clock: clock}
}

// Save inserts or replaces the comparison for the pair. A replacement
// keeps the pair's existing ComparisonID; sc.ComparisonID and
// sc.CreatedAt are filled in from the stored row.
func (s *ComparisonStore) Save(sc *StoredComparison) error {
	if sc == nil || sc.Comparison == nil {
		return errors.New("save comparison: missing comparison")
	}
	if sc.RiderVideoID == "" || sc.ReferenceID == "" {
		return errors.New("save comparison: rider video id and reference id are required")
	}
	if sc.ComparisonID == "" {
		sc.ComparisonID = uuid.New().String()
	}
	if sc.Comparison.Overall != nil {
		sc.OverallScore = sc.Comparison.Overall.OverallSimilarityScore
	}
	body, err := json.Marshal(sc.Comparison)
	if err != nil {
		return fmt.Errorf("encode comparison: %w", err)
	}
	now := s.clock.Now()
	var id string
	err = retryOnBusy(s.clock, func() error {
		return s.db.QueryRow(`
			INSERT INTO trick_comparisons (
				comparison_id, rider_video_id, reference_id, rider_fingerprint, reference_fingerprint,
				overall_score, comparison_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (rider_video_id, reference_id) DO UPDATE SET
				rider_fingerprint = excluded.rider_fingerprint,
				reference_fingerprint = excluded.reference_fingerprint,
				overall_score = excluded.overall_score,
				comparison_json = excluded.comparison_json,
				created_at = excluded.created_at
			RETURNING comparison_id`,
			sc.ComparisonID, sc.RiderVideoID, sc.ReferenceID, sc.RiderFingerprint, sc.ReferenceFingerprint,
			sc.OverallScore, string(body), now.UnixNano(),
		).Scan(&id)
	})
	if err != nil {
		return fmt.Errorf("saving comparison %s/%s: %w", sc.RiderVideoID, sc.ReferenceID, err)
	}
	sc.ComparisonID, sc.CreatedAt = id, now
	return nil
}

const comparisonColumns = `comparison_id, rider_video_id, reference_id, rider_fingerprint,
	reference_fingerprint, overall_score, comparison_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComparison(row rowScanner) (*StoredComparison, error) {
	var (
		sc        StoredComparison
		body      string
		createdAt int64
	)
	err := row.Scan(&sc.ComparisonID, &sc.RiderVideoID, &sc.ReferenceID, &sc.RiderFingerprint,
		&sc.ReferenceFingerprint, &sc.OverallScore, &body, &createdAt)
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = time.Unix(0, createdAt)
	sc.Comparison = &pipeline.Comparison{}
	if err := json.Unmarshal([]byte(body), sc.Comparison); err != nil {
		return nil, fmt.Errorf("decode comparison %s: %w", sc.ComparisonID, err)
	}
	return &sc, nil
}

// Get returns the cached comparison for a pair, or ErrNotFound.
func (s *ComparisonStore) Get(riderVideoID, referenceID string) (*StoredComparison, error) {
	sc, err := scanComparison(s.db.QueryRow(`SELECT `+comparisonColumns+`
		FROM trick_comparisons
		WHERE rider_video_id = ? AND reference_id = ?`, riderVideoID, referenceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comparison %s/%s: %w", riderVideoID, referenceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan comparison: %w", err)
	}
	return sc, nil
}

// GetFresh returns the cached comparison only if both fingerprints still
// match. ok is false when there is no row or either side changed.
func (s *ComparisonStore) GetFresh(riderVideoID, referenceID, riderFingerprint, referenceFingerprint string) (sc *StoredComparison, ok bool, err error) {
	sc, err = s.Get(riderVideoID, referenceID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if sc.RiderFingerprint != riderFingerprint || sc.ReferenceFingerprint != referenceFingerprint {
		return nil, false, nil
	}
	return sc, true, nil
}

// ListByRider returns every cached comparison for a rider's video, best
// score first.
func (s *ComparisonStore) ListByRider(riderVideoID string) ([]*StoredComparison, error) {
	rows, err := s.db.Query(`SELECT `+comparisonColumns+`
		FROM trick_comparisons
		WHERE rider_video_id = ?
		ORDER BY overall_score DESC, reference_id`, riderVideoID)
	if err != nil {
		return nil, fmt.Errorf("query comparisons: %w", err)
	}
	defer rows.Close()

	var out []*StoredComparison
	for rows.Next() {
		sc, err := scanComparison(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comparison row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
