// Command trick-analyse runs the trick analysis pipeline over pose
// timeline files. It prints the analyses as JSON, optionally compares the
// first timeline against a reference, and can write PNG plots and an HTML
// comparison chart. With --server it submits the files to a running
// trick-report server instead of analysing locally.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/trick.report/internal/api"
	"github.com/banshee-data/trick.report/internal/config"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/monitor"
	"github.com/banshee-data/trick.report/internal/trick/pipeline"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Config holds the command line configuration.
type Config struct {
	Timelines     []string
	ReferenceFile string
	ReferenceID   string
	ConfigFile    string
	PlotDir       string
	ChartFile     string
	Server        string
	Workers       int
	Verbose       bool
}

// Report is the JSON written to stdout.
type Report struct {
	Analyses   []*AnalysisReport    `json:"analyses"`
	Comparison *pipeline.Comparison `json:"comparison,omitempty"`
	Plots      []string             `json:"plots,omitempty"`
	Chart      string               `json:"chart,omitempty"`
}

// AnalysisReport is one timeline's outcome.
type AnalysisReport struct {
	File     string             `json:"file"`
	Analysis *pipeline.Analysis `json:"analysis,omitempty"`
	Warning  string             `json:"warning,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func parseFlags(args []string, out io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("trick-analyse", flag.ContinueOnError)
	fs.SetOutput(out)
	cfg := &Config{}
	fs.StringVar(&cfg.ReferenceFile, "reference", "", "Reference timeline JSON to compare the first timeline against")
	fs.StringVar(&cfg.ReferenceID, "reference-id", "", "Reference ID to register under (--server only)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Tuning config JSON")
	fs.StringVar(&cfg.PlotDir, "plots", "", "Directory for PNG signal and comparison plots")
	fs.StringVar(&cfg.ChartFile, "chart", "", "Write an HTML comparison chart to this file")
	fs.StringVar(&cfg.Server, "server", "", "Submit to a trick-report server at this URL instead of analysing locally")
	fs.IntVar(&cfg.Workers, "workers", 4, "Concurrent analyses")
	fs.BoolVar(&cfg.Verbose, "v", false, "Enable the diagnostic log stream")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: trick-analyse [flags] timeline.json...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Timelines = fs.Args()
	if len(cfg.Timelines) == 0 {
		fs.Usage()
		return nil, errors.New("no timeline files given")
	}
	if cfg.ChartFile != "" && cfg.ReferenceFile == "" {
		return nil, errors.New("--chart needs --reference")
	}
	if cfg.Server != "" && (cfg.PlotDir != "" || cfg.ChartFile != "") {
		return nil, errors.New("--plots and --chart are not available with --server")
	}
	return cfg, nil
}

func loadTimeline(path string) (*pose.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tl, err := pose.DecodeTimeline(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tl, nil
}

func analyseLocal(ctx context.Context, cfg *Config) (*Report, error) {
	tuning := config.EmptyTuningConfig()
	if cfg.ConfigFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	engine := pipeline.NewEngine(tuning)

	timelines := make([]*pose.Timeline, 0, len(cfg.Timelines))
	for _, path := range cfg.Timelines {
		tl, err := loadTimeline(path)
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	results, err := engine.AnalyzeBatch(ctx, timelines, cfg.Workers)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for i, res := range results {
		ar := &AnalysisReport{File: cfg.Timelines[i], Analysis: res.Analysis}
		switch {
		case res.Analysis == nil && res.Err != nil:
			ar.Error = res.Err.Error()
		case res.Err != nil:
			ar.Warning = res.Err.Error()
		}
		report.Analyses = append(report.Analyses, ar)
	}

	if cfg.PlotDir != "" {
		for _, ar := range report.Analyses {
			if ar.Analysis == nil {
				continue
			}
			files, err := monitor.PlotSignals(cfg.PlotDir, ar.Analysis.VideoID, ar.Analysis.Signals, ar.Analysis.Phases)
			if err != nil {
				return nil, err
			}
			report.Plots = append(report.Plots, files...)
		}
	}

	if cfg.ReferenceFile == "" {
		return report, nil
	}
	rider := report.Analyses[0].Analysis
	if rider == nil {
		return nil, fmt.Errorf("cannot compare %s: %s", cfg.Timelines[0], report.Analyses[0].Error)
	}
	refTL, err := loadTimeline(cfg.ReferenceFile)
	if err != nil {
		return nil, err
	}
	ref, err := engine.AnalyzeContext(ctx, refTL)
	if ref == nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	if err != nil {
		monitoring.Opsf("reference %s analysed partially: %v", refTL.VideoID, err)
	}
	report.Comparison, err = engine.Compare(rider, ref)
	if err != nil {
		return nil, err
	}

	view := monitor.ComparisonView{
		Title:     fmt.Sprintf("%s vs %s", rider.VideoID, ref.VideoID),
		Rider:     rider.Temporal[pipeline.FullRange],
		Reference: ref.Temporal[pipeline.FullRange],
		Overall:   report.Comparison.Overall,
		Phases:    report.Comparison.Phases,
		Samples:   tuning.GetResampleCount(),
	}
	if cfg.PlotDir != "" {
		files, err := monitor.PlotComparison(cfg.PlotDir, view)
		if err != nil {
			return nil, err
		}
		report.Plots = append(report.Plots, files...)
	}
	if cfg.ChartFile != "" {
		if err := writeChart(cfg.ChartFile, view); err != nil {
			return nil, err
		}
		report.Chart = cfg.ChartFile
	}
	return report, nil
}

func writeChart(path string, view monitor.ComparisonView) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := monitor.RenderComparisonChart(f, view); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// submitRemote uploads every timeline, then registers the reference and
// compares the first timeline against it when one is given.
func submitRemote(cfg *Config, client *api.Client) (*Report, error) {
	report := &Report{}
	for _, path := range cfg.Timelines {
		tl, err := loadTimeline(path)
		if err != nil {
			return nil, err
		}
		ar := &AnalysisReport{File: path}
		resp, err := client.SubmitTimeline(tl)
		if err != nil {
			ar.Error = err.Error()
		} else {
			ar.Analysis = resp.Analysis
			if len(resp.Warnings) > 0 {
				ar.Warning = fmt.Sprint(resp.Warnings)
			}
		}
		report.Analyses = append(report.Analyses, ar)
	}

	if cfg.ReferenceFile == "" {
		return report, nil
	}
	if report.Analyses[0].Analysis == nil {
		return nil, fmt.Errorf("cannot compare %s: %s", cfg.Timelines[0], report.Analyses[0].Error)
	}
	refTL, err := loadTimeline(cfg.ReferenceFile)
	if err != nil {
		return nil, err
	}
	ref, err := client.RegisterReference(api.RegisterReferenceRequest{ReferenceID: cfg.ReferenceID, Timeline: refTL})
	if err != nil {
		return nil, fmt.Errorf("register reference: %w", err)
	}
	cmp, err := client.Compare(report.Analyses[0].Analysis.VideoID, ref.ReferenceID)
	if err != nil {
		return nil, err
	}
	report.Comparison = cmp.Comparison
	return report, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logs := monitoring.LogWriters{Ops: stderr}
	if cfg.Verbose {
		logs.Diag = stderr
	}
	monitoring.SetLogWriters(logs)

	var report *Report
	if cfg.Server != "" {
		report, err = submitRemote(cfg, api.NewClient(cfg.Server, nil))
	} else {
		report, err = analyseLocal(ctx, cfg)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("trick-analyse: %v", err)
	}
}
