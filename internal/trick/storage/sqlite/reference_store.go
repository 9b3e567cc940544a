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
	"github.com/google/uuid"
)

// Reference is an analysis registered as the "perfect" execution of a
// trick that riders are compared against. Analysis is nil in listings.
type Reference struct {
	ReferenceID string             `json:"referenceId"`
	VideoID     string             `json:"videoId"`
	Trick       pose.TrickType     `json:"trick"`
	Label       string             `json:"label,omitempty"`
	Fingerprint string             `json:"fingerprint"`
	Analysis    *pipeline.Analysis `json:"analysis,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// ReferenceStore persists reference analyses.
type ReferenceStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewReferenceStore creates a ReferenceStore. A nil clock uses the wall clock.
func NewReferenceStore(db *sql.DB, clock timeutil.Clock) *ReferenceStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ReferenceStore{db: db, clock: clock}
}

// Register stores a as a reference. An empty referenceID gets a UUID.
// Registering an existing ID replaces it and drops its cached comparisons.
func (s *ReferenceStore) Register(referenceID, label string, a *pipeline.Analysis) (*Reference, error) {
	if a == nil {
		return nil, errors.New("register reference: missing analysis")
	}
	if referenceID == "" {
		referenceID = uuid.New().String()
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode reference %s: %w", referenceID, err)
	}
	ref := &Reference{
		ReferenceID: referenceID,
		VideoID:     a.VideoID,
		Trick:       a.Trick,
		Label:       label,
		Fingerprint: a.Fingerprint,
		Analysis:    a,
		CreatedAt:   s.clock.Now(),
	}
	err = retryOnBusy(s.clock, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM trick_references WHERE reference_id = ?`, referenceID); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO trick_references (
				reference_id, video_id, trick, label, fingerprint, analysis_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ref.ReferenceID, ref.VideoID, string(ref.Trick), ref.Label, ref.Fingerprint,
			string(body), ref.CreatedAt.UnixNano(),
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("registering reference %s: %w", referenceID, err)
	}
	return ref, nil
}

// Get returns a reference with its analysis, or ErrNotFound.
func (s *ReferenceStore) Get(referenceID string) (*Reference, error) {
	row := s.db.QueryRow(`
		SELECT reference_id, video_id, trick, label, fingerprint, analysis_json, created_at
		FROM trick_references
		WHERE reference_id = ?`, referenceID)

	var (
		ref         Reference
		trick, body string
		createdAt   int64
	)
	err := row.Scan(&ref.ReferenceID, &ref.VideoID, &trick, &ref.Label, &ref.Fingerprint, &body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reference %s: %w", referenceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan reference: %w", err)
	}
	ref.Trick = pose.TrickType(trick)
	ref.CreatedAt = time.Unix(0, createdAt)
	ref.Analysis = &pipeline.Analysis{}
	if err := json.Unmarshal([]byte(body), ref.Analysis); err != nil {
		return nil, fmt.Errorf("decode reference %s: %w", referenceID, err)
	}
	return &ref, nil
}

// ListByTrick returns reference summaries, newest first. An empty trick
// lists every reference.
func (s *ReferenceStore) ListByTrick(trick pose.TrickType) ([]*Reference, error) {
	rows, err := s.db.Query(`
		SELECT reference_id, video_id, trick, label, fingerprint, created_at
		FROM trick_references
		WHERE ? = '' OR trick = ?
		ORDER BY created_at DESC, reference_id`, string(trick), string(trick))
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []*Reference
	for rows.Next() {
		var (
			ref       Reference
			t         string
			createdAt int64
		)
		if err := rows.Scan(&ref.ReferenceID, &ref.VideoID, &t, &ref.Label, &ref.Fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}
		ref.Trick = pose.TrickType(t)
		ref.CreatedAt = time.Unix(0, createdAt)
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// Delete removes a reference and its cached comparisons.
func (s *ReferenceStore) Delete(referenceID string) error {
	return retryOnBusy(s.clock, func() error {
		res, err := s.db.Exec(`DELETE FROM trick_references WHERE reference_id = ?`, referenceID)
		if err != nil {
			return fmt.Errorf("delete reference: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("reference %s: %w", referenceID, ErrNotFound)
		}
		return nil
	})
}
