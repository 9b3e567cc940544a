package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trick.report/internal/db"
	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/storage/sqlite"
)

// ANSI escape codes for the access log.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxTimelineBytes bounds request bodies carrying pose timelines.
const maxTimelineBytes = 64 << 20

// Server serves the analysis, reference and comparison API.
type Server struct {
	db          *db.DB
	engine      *pipeline.Engine
	analyses    *sqlite.AnalysisStore
	references  *sqlite.ReferenceStore
	comparisons *sqlite.ComparisonStore
	// batchWorkers bounds concurrent analyses in a batch request.
	batchWorkers int
}

// NewServer wires the stores over database. A nil clock uses the wall clock.
func NewServer(database *db.DB, engine *pipeline.Engine, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		db:           database,
		engine:       engine,
		analyses:     sqlite.NewAnalysisStore(database.DB, clock),
		references:   sqlite.NewReferenceStore(database.DB, clock),
		comparisons:  sqlite.NewComparisonStore(database.DB, clock),
		batchWorkers: 4,
	}
}

// SetBatchWorkers sets how many timelines a batch request analyses at once.
func (s *Server) SetBatchWorkers(n int) {
	if n > 0 {
		s.batchWorkers = n
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyses", s.handleAnalyses)
	mux.HandleFunc("/api/analyses/batch", s.handleAnalysesBatch)
	mux.HandleFunc("/api/references", s.handleReferences)
	mux.HandleFunc("/api/comparisons", s.handleComparisons)
	mux.HandleFunc("/api/comparisons/chart", s.handleComparisonChart)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}
