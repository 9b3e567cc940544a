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

// RegisterReferenceRequest registers either an already analysed video
// (VideoID) or a timeline analysed on the spot.
type RegisterReferenceRequest struct {
	ReferenceID string         `json:"referenceId,omitempty"`
	Label       string         `json:"label,omitempty"`
	VideoID     string         `json:"videoId,omitempty"`
	Timeline    *pose.Timeline `json:"timeline,omitempty"`
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerReference(w, r)
	case http.MethodGet:
		q := r.URL.Query()
		if id := q.Get("reference_id"); id != "" {
			ref, err := s.references.Get(id)
			if err != nil {
				writeStoreError(w, "reference", err)
				return
			}
			httputil.WriteJSONOK(w, ref)
			return
		}
		var trick pose.TrickType
		if t := q.Get("trick"); t != "" {
			parsed, err := pose.ParseTrickType(t)
			if err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
			trick = parsed
		}
		refs, err := s.references.ListByTrick(trick)
		if err != nil {
			writeStoreError(w, "references", err)
			return
		}
		httputil.WriteJSONOK(w, map[string]any{"references": refs})
	case http.MethodDelete:
		id := r.URL.Query().Get("reference_id")
		if id == "" {
			httputil.BadRequest(w, "missing 'reference_id' parameter")
			return
		}
		if err := s.references.Delete(id); err != nil {
			writeStoreError(w, "reference", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) registerReference(w http.ResponseWriter, r *http.Request) {
	var req RegisterReferenceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTimelineBytes)).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	var a *pipeline.Analysis
	switch {
	case req.Timeline != nil:
		if err := req.Timeline.Prepare(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		resp, err := s.analyse(r, req.Timeline)
		if err != nil {
			writeAnalysisError(w, req.Timeline.VideoID, err)
			return
		}
		a = resp.Analysis
	case req.VideoID != "":
		rec, err := s.analyses.Get(req.VideoID)
		if err != nil {
			writeStoreError(w, "analysis", err)
			return
		}
		a = rec.Analysis
	default:
		httputil.BadRequest(w, "one of 'videoId' or 'timeline' is required")
		return
	}

	ref, err := s.references.Register(req.ReferenceID, req.Label, a)
	if err != nil {
		monitoring.Opsf("register reference %q: %v", req.ReferenceID, err)
		httputil.InternalServerError(w, "failed to register reference")
		return
	}
	monitoring.Opsf("registered reference %s (%s) from %s", ref.ReferenceID, ref.Trick, ref.VideoID)
	ref.Analysis = nil
	httputil.WriteJSON(w, http.StatusCreated, ref)
}
