package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/trick.report/internal/httputil"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// AnalysisResponse is returned by POST /api/analyses. Warnings lists the
// phases that could not be segmented when the analysis is partial.
type AnalysisResponse struct {
	*pipeline.Analysis
	Cached   bool     `json:"cached"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAnalysis(w, r)
	case http.MethodGet:
		videoID := r.URL.Query().Get("video_id")
		if videoID == "" {
			httputil.BadRequest(w, "missing 'video_id' parameter")
			return
		}
		rec, err := s.analyses.Get(videoID)
		if err != nil {
			writeStoreError(w, "analysis", err)
			return
		}
		httputil.WriteJSONOK(w, rec)
	case http.MethodDelete:
		videoID := r.URL.Query().Get("video_id")
		if videoID == "" {
			httputil.BadRequest(w, "missing 'video_id' parameter")
			return
		}
		if err := s.analyses.Delete(videoID); err != nil {
			writeStoreError(w, "analysis", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	tl, err := pose.DecodeTimeline(http.MaxBytesReader(w, r.Body, maxTimelineBytes))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	resp, err := s.analyse(r, tl)
	if err != nil {
		writeAnalysisError(w, tl.VideoID, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// analyse returns the stored analysis of tl if its fingerprint still
// matches, otherwise runs the engine and stores the result. A partial
// analysis is stored and returned with warnings.
func (s *Server) analyse(r *http.Request, tl *pose.Timeline) (*AnalysisResponse, error) {
	fp, err := tl.Fingerprint()
	if err != nil {
		return nil, err
	}
	cached, ok, err := s.analyses.GetFresh(tl.VideoID, fp)
	if err != nil {
		monitoring.Opsf("analysis cache lookup for %s failed: %v", tl.VideoID, err)
	} else if ok {
		monitoring.Diagf("analysis of %s served from cache", tl.VideoID)
		return &AnalysisResponse{Analysis: cached, Cached: true, Warnings: failureWarnings(cached)}, nil
	}

	a, err := s.engine.AnalyzeContext(r.Context(), tl)
	if a == nil {
		return nil, err
	}
	if err := s.analyses.Save(a); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	return &AnalysisResponse{Analysis: a, Warnings: failureWarnings(a)}, nil
}

func failureWarnings(a *pipeline.Analysis) []string {
	if a.Phases == nil {
		return nil
	}
	var out []string
	for _, f := range a.Phases.Failures {
		out = append(out, f.Error())
	}
	return out
}

// batchRequest is the body of POST /api/analyses/batch.
type batchRequest struct {
	Timelines []*pose.Timeline `json:"timelines"`
}

// BatchItem is the outcome for one timeline of a batch request.
type BatchItem struct {
	VideoID     string   `json:"videoId"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Cached      bool     `json:"cached,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (s *Server) handleAnalysesBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTimelineBytes)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Timelines) == 0 {
		httputil.BadRequest(w, "no timelines")
		return
	}

	items := make([]BatchItem, len(req.Timelines))
	var (
		pending []*pose.Timeline
		slots   []int
		cached  int
	)
	for i, tl := range req.Timelines {
		if tl == nil {
			items[i].Error = "null timeline"
			continue
		}
		items[i].VideoID = tl.VideoID
		if err := tl.Prepare(); err != nil {
			items[i].Error = err.Error()
			continue
		}
		fp, err := tl.Fingerprint()
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		items[i].Fingerprint = fp
		if prior, ok, err := s.analyses.GetFresh(tl.VideoID, fp); err == nil && ok {
			items[i].Cached = true
			items[i].Warnings = failureWarnings(prior)
			cached++
			continue
		}
		pending = append(pending, tl)
		slots = append(slots, i)
	}

	results, err := s.engine.AnalyzeBatch(r.Context(), pending, s.batchWorkers)
	if err != nil {
		monitoring.Opsf("batch analysis interrupted: %v", err)
	}
	for j, res := range results {
		item := &items[slots[j]]
		if res.Analysis == nil {
			if res.Err != nil {
				item.Error = res.Err.Error()
			}
			continue
		}
		if err := s.analyses.Save(res.Analysis); err != nil {
			item.Error = fmt.Sprintf("store analysis: %v", err)
			continue
		}
		item.Warnings = failureWarnings(res.Analysis)
	}
	monitoring.Opsf("batch of %d timelines: %d analysed, %d from cache", len(items), len(pending), cached)
	httputil.WriteJSONOK(w, items)
}
