package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/trick.report/internal/httputil"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/monitor"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/storage/sqlite"
	"github.com/banshee-data/trick.report/internal/version"
)

// CompareRequest asks for a stored rider analysis to be scored against a
// registered reference.
type CompareRequest struct {
	RiderVideoID string `json:"riderVideoId"`
	ReferenceID  string `json:"referenceId"`
}

// ComparisonResponse is returned by POST /api/comparisons.
type ComparisonResponse struct {
	*sqlite.StoredComparison
	Cached bool `json:"cached"`
}

func (s *Server) handleComparisons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createComparison(w, r)
	case http.MethodGet:
		q := r.URL.Query()
		rider := q.Get("rider_video_id")
		if rider == "" {
			httputil.BadRequest(w, "missing 'rider_video_id' parameter")
			return
		}
		if refID := q.Get("reference_id"); refID != "" {
			sc, err := s.comparisons.Get(rider, refID)
			if err != nil {
				writeStoreError(w, "comparison", err)
				return
			}
			httputil.WriteJSONOK(w, sc)
			return
		}
		list, err := s.comparisons.ListByRider(rider)
		if err != nil {
			writeStoreError(w, "comparisons", err)
			return
		}
		httputil.WriteJSONOK(w, map[string]any{"comparisons": list})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) createComparison(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.RiderVideoID == "" || req.ReferenceID == "" {
		httputil.BadRequest(w, "'riderVideoId' and 'referenceId' are required")
		return
	}

	rider, err := s.analyses.Get(req.RiderVideoID)
	if err != nil {
		writeStoreError(w, "rider analysis", err)
		return
	}
	ref, err := s.references.Get(req.ReferenceID)
	if err != nil {
		writeStoreError(w, "reference", err)
		return
	}

	cached, ok, err := s.comparisons.GetFresh(req.RiderVideoID, req.ReferenceID, rider.Fingerprint, ref.Fingerprint)
	if err != nil {
		monitoring.Opsf("comparison cache lookup failed: %v", err)
	} else if ok {
		httputil.WriteJSONOK(w, ComparisonResponse{StoredComparison: cached, Cached: true})
		return
	}

	c, err := s.engine.Compare(rider.Analysis, ref.Analysis)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error(), nil)
		return
	}
	sc := &sqlite.StoredComparison{
		RiderVideoID:         req.RiderVideoID,
		ReferenceID:          req.ReferenceID,
		RiderFingerprint:     rider.Fingerprint,
		ReferenceFingerprint: ref.Fingerprint,
		Comparison:           c,
	}
	if err := s.comparisons.Save(sc); err != nil {
		monitoring.Opsf("store comparison %s/%s: %v", req.RiderVideoID, req.ReferenceID, err)
		httputil.InternalServerError(w, "failed to store comparison")
		return
	}
	httputil.WriteJSONOK(w, ComparisonResponse{StoredComparison: sc})
}

// handleComparisonChart renders a stored comparison as an HTML page of
// echarts overlays.
func (s *Server) handleComparisonChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	riderID, refID := q.Get("rider_video_id"), q.Get("reference_id")
	if riderID == "" || refID == "" {
		httputil.BadRequest(w, "'rider_video_id' and 'reference_id' are required")
		return
	}
	sc, err := s.comparisons.Get(riderID, refID)
	if err != nil {
		writeStoreError(w, "comparison", err)
		return
	}
	rider, err := s.analyses.Get(riderID)
	if err != nil {
		writeStoreError(w, "rider analysis", err)
		return
	}
	ref, err := s.references.Get(refID)
	if err != nil {
		writeStoreError(w, "reference", err)
		return
	}

	view := monitor.ComparisonView{
		Title:     fmt.Sprintf("%s vs %s", riderID, refID),
		Rider:     rider.Analysis.Temporal[pipeline.FullRange],
		Reference: ref.Analysis.Temporal[pipeline.FullRange],
		Overall:   sc.Comparison.Overall,
		Phases:    sc.Comparison.Phases,
		Samples:   s.engine.Config().GetResampleCount(),
	}
	var buf bytes.Buffer
	if err := monitor.RenderComparisonChart(&buf, view); err != nil {
		httputil.UnprocessableEntity(w, err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Diagf("write chart: %v", err)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"version":   version.Version,
		"gitSha":    version.GitSHA,
		"buildTime": version.BuildTime,
		"tuning":    s.engine.Config().Effective(),
	})
}
