// Command trick-report serves the trick analysis API over a SQLite store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/trick.report/internal/api"
	"github.com/banshee-data/trick.report/internal/config"
	"github.com/banshee-data/trick.report/internal/db"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/timeutil"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/version"
)

type options struct {
	dbPath       string
	listen       string
	configPath   string
	devMode      bool
	logDiag      bool
	logTrace     bool
	batchWorkers int
	showVersion  bool
}

func parseFlags(args []string, out io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("trick-report", flag.ContinueOnError)
	fs.SetOutput(out)
	o := &options{}
	fs.StringVar(&o.dbPath, "db", "trick_data.db", "SQLite database path")
	fs.StringVar(&o.listen, "listen", ":8080", "Listen address")
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (built-in defaults when empty)")
	fs.BoolVar(&o.devMode, "dev", false, "Read migrations from "+db.DevMigrationsDir+" instead of the binary")
	fs.BoolVar(&o.logDiag, "log-diag", false, "Enable the diagnostic log stream")
	fs.BoolVar(&o.logTrace, "log-trace", false, "Enable the per-frame trace log stream")
	fs.IntVar(&o.batchWorkers, "batch-workers", 4, "Concurrent analyses per batch request")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if o.listen == "" {
		return nil, nil, errors.New("listen address is required")
	}
	if o.batchWorkers < 1 {
		return nil, nil, fmt.Errorf("batch-workers must be at least 1, got %d", o.batchWorkers)
	}
	return o, fs.Args(), nil
}

func configureLogging(o *options) {
	w := monitoring.LogWriters{Ops: os.Stderr}
	if o.logDiag {
		w.Diag = os.Stderr
	}
	if o.logTrace {
		w.Trace = os.Stderr
	}
	monitoring.SetLogWriters(w)
}

func loadEngine(configPath string) (*pipeline.Engine, error) {
	cfg := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return pipeline.NewEngine(cfg), nil
}

// newHandler mounts the API and the database admin routes behind the
// access log.
func newHandler(database *db.DB, engine *pipeline.Engine, batchWorkers int) (http.Handler, error) {
	s := api.NewServer(database, engine, timeutil.RealClock{})
	s.SetBatchWorkers(batchWorkers)
	mux := s.ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, fmt.Errorf("attach admin routes: %w", err)
	}
	return api.LoggingMiddleware(mux), nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, rest, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintf(out, "trick-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return nil
	}
	db.DevMode = o.devMode

	if len(rest) > 0 {
		if rest[0] != "migrate" {
			return fmt.Errorf("unknown command %q", rest[0])
		}
		return db.RunMigrateCommand(rest[1:], o.dbPath, out)
	}

	configureLogging(o)
	engine, err := loadEngine(o.configPath)
	if err != nil {
		return err
	}

	database, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	handler, err := newHandler(database, engine, o.batchWorkers)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              o.listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Opsf("trick-report %s listening on %s (db %s)", version.Version, o.listen, database.Path())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Printf("trick-report: %v", err)
		if errors.Is(err, db.ErrMigrateUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
