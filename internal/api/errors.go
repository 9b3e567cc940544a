package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/banshee-data/trick.report/internal/httputil"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
	"github.com/banshee-data/trick.report/internal/trick/l2phases"
	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
	"github.com/banshee-data/trick.report/internal/trick/storage/sqlite"
)

// writeAnalysisError maps an analysis failure to a response. Typed
// failures are returned as details so clients can tell a low-confidence
// clip from one whose phases were not found.
func writeAnalysisError(w http.ResponseWriter, videoID string, err error) {
	var (
		confErr *l1signals.InsufficientConfidenceError
		propErr *l3proportions.ProportionExtractionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusGatewayTimeout, "analysis timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		monitoring.Diagf("analysis of %s cancelled", videoID)
	case errors.As(err, &confErr):
		httputil.UnprocessableEntity(w, err.Error(), confErr)
	case errors.As(err, &propErr):
		httputil.UnprocessableEntity(w, err.Error(), propErr)
	default:
		if phaseErrs := phaseDetectionErrors(err); len(phaseErrs) > 0 {
			httputil.UnprocessableEntity(w, "phase detection failed", phaseErrs)
			return
		}
		httputil.UnprocessableEntity(w, err.Error(), nil)
	}
}

// phaseDetectionErrors collects every *l2phases.PhaseDetectionError in
// err's tree, including those joined with errors.Join.
func phaseDetectionErrors(err error) []*l2phases.PhaseDetectionError {
	var out []*l2phases.PhaseDetectionError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if pe, ok := e.(*l2phases.PhaseDetectionError); ok {
			out = append(out, pe)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// writeStoreError writes a 404 for sqlite.ErrNotFound and a 500 otherwise.
func writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, sqlite.ErrNotFound) {
		httputil.NotFound(w, what+" not found")
		return
	}
	monitoring.Opsf("%s lookup failed: %v", what, err)
	httputil.InternalServerError(w, "storage error")
}
