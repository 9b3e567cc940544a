package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trick.report/internal/config"
	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
	"github.com/banshee-data/trick.report/internal/trick/l2phases"
	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
	"github.com/banshee-data/trick.report/internal/trick/l5compare"
	"github.com/banshee-data/trick.report/internal/trick/l6archetypes"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// FullRange is the PhaseSignals key used for the whole clip.
const FullRange = "full"

// Engine runs the pipeline with one tuning configuration.
type Engine struct {
	cfg  *config.TuningConfig
	tips l6archetypes.TipSource
}

// Option customises an Engine.
type Option func(*Engine)

// WithTips replaces the built-in coaching tip table.
func WithTips(tips l6archetypes.TipSource) Option {
	return func(e *Engine) { e.tips = tips }
}

// NewEngine returns an Engine. A nil cfg uses the built-in defaults.
func NewEngine(cfg *config.TuningConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	e := &Engine{cfg: cfg, tips: l6archetypes.DefaultTips()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's tuning configuration.
func (e *Engine) Config() *config.TuningConfig { return e.cfg }

// Analysis is everything derived from one pose timeline.
type Analysis struct {
	VideoID     string                                 `json:"videoId"`
	Trick       pose.TrickType                         `json:"trick"`
	Stance      pose.Stance                            `json:"stance"`
	FPS         float64                                `json:"fps"`
	FrameCount  int                                    `json:"frameCount"`
	Fingerprint string                                 `json:"fingerprint"`
	Phases      *l2phases.PhaseMap                     `json:"phases"`
	Temporal    map[string]*l4temporal.TemporalSignals `json:"temporal"`
	Proportions l3proportions.BodyProportions          `json:"proportions"`
	// Signals are kept for plotting and are not persisted.
	Signals *l1signals.Signals `json:"-"`
}

// PhaseSignals returns the per-phase temporal signals keyed by phase name,
// without the full-range entry.
func (a *Analysis) PhaseSignals() map[string]*l4temporal.TemporalSignals {
	out := make(map[string]*l4temporal.TemporalSignals, len(a.Temporal))
	for k, v := range a.Temporal {
		if k != FullRange {
			out[k] = v
		}
	}
	return out
}

// Analyze runs layers 1 to 4 over a timeline. A failure to segment some
// phases is not fatal: the Analysis is returned together with the joined
// *l2phases.PhaseDetectionError values, which are also recorded in
// Phases.Failures. Invalid input, insufficient confidence and unmeasurable
// proportions return a nil Analysis.
func (e *Engine) Analyze(tl *pose.Timeline) (*Analysis, error) {
	if err := tl.Validate(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	fp, err := tl.Fingerprint()
	if err != nil {
		return nil, err
	}

	sig, err := l1signals.Derive(tl.Frames, tl.FPS, l1signals.ConfigFromTuning(e.cfg, tl.Stance, tl.Trick))
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", tl.VideoID, err)
	}
	phases, segErr := l2phases.Segment(sig, l2phases.ConfigFromTuning(e.cfg, tl.Trick))
	if phases == nil {
		return nil, fmt.Errorf("analyze %s: %w", tl.VideoID, segErr)
	}
	if err := phases.Validate(sig.FirstFrame, sig.LastFrame()); err != nil {
		return nil, fmt.Errorf("analyze %s: inconsistent phases: %w", tl.VideoID, err)
	}

	props, err := l3proportions.ExtractFromFrames(tl.Frames, e.cfg.GetMinJointConfidence())
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", tl.VideoID, err)
	}

	a := &Analysis{
		VideoID:     tl.VideoID,
		Trick:       tl.Trick,
		Stance:      tl.Stance,
		FPS:         tl.FPS,
		FrameCount:  len(tl.Frames),
		Fingerprint: fp,
		Phases:      phases,
		Temporal:    map[string]*l4temporal.TemporalSignals{},
		Proportions: props,
		Signals:     sig,
	}

	tcfg := l4temporal.ConfigFromTuning(e.cfg)
	if !math.IsNaN(sig.GroundHeight) {
		ground := sig.GroundHeight
		tcfg.Ground = &ground
	}
	full, err := l4temporal.Extract(tl.Frames, tl.FPS, tcfg)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", tl.VideoID, err)
	}
	a.Temporal[FullRange] = full

	for _, name := range phases.Present() {
		start, end := e.temporalRange(phases.Get(name), name, tl)
		frames, err := tl.Range(start, end)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: phase %s: %w", tl.VideoID, name, err)
		}
		ts, err := l4temporal.Extract(frames, tl.FPS, tcfg)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: phase %s: %w", tl.VideoID, name, err)
		}
		a.Temporal[string(name)] = ts
	}

	monitoring.Opsf("analyzed %s (%s): phases %v, %d failures", tl.VideoID, tl.Trick, phases.Present(), len(phases.Failures))
	return a, segErr
}

// temporalRange widens the single-frame takeoff to a window around it so
// it has motion to extract; other phases use their own frames.
func (e *Engine) temporalRange(p *l2phases.PhaseData, name l2phases.PhaseName, tl *pose.Timeline) (int, int) {
	if name != l2phases.Takeoff {
		return p.StartFrame, p.EndFrame
	}
	h := e.cfg.GetTakeoffComparisonHalfWindow()
	first, last := tl.FirstFrame(), tl.FirstFrame()+len(tl.Frames)-1
	return max(first, p.StartFrame-h), min(last, p.EndFrame+h)
}

// AnalyzeContext runs Analyze under the configured analysis timeout. The
// computation is not interruptible, so on timeout its result is dropped.
func (e *Engine) AnalyzeContext(ctx context.Context, tl *pose.Timeline) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GetAnalysisTimeout())
	defer cancel()

	type result struct {
		a   *Analysis
		err error
	}
	done := make(chan result, 1)
	go func() {
		a, err := e.Analyze(tl)
		done <- result{a, err}
	}()
	select {
	case r := <-done:
		return r.a, r.err
	case <-ctx.Done():
		monitoring.Opsf("analysis of %s abandoned: %v", tl.VideoID, ctx.Err())
		return nil, fmt.Errorf("analyze %s: %w", tl.VideoID, ctx.Err())
	}
}

// Comparison is the outcome of comparing a rider's analysis against a
// reference analysis.
type Comparison struct {
	RiderVideoID     string                      `json:"riderVideoId"`
	ReferenceVideoID string                      `json:"referenceVideoId"`
	Trick            pose.TrickType              `json:"trick"`
	Overall          *l5compare.ComparisonResult `json:"overall"`
	Phases           *l5compare.PhaseComparison  `json:"phases"`
	Archetypes       []l5compare.Archetype       `json:"archetypes"`
}

// Compare scores rider against reference over the whole clip and per
// phase, then detects archetypes in each compared phase. Phases missing on
// one side are excluded and listed in Phases.Excluded; if no phase is
// comparable the whole-clip result still stands and a warning says so.
func (e *Engine) Compare(rider, ref *Analysis) (*Comparison, error) {
	if rider == nil || ref == nil {
		return nil, errors.New("compare: missing analysis")
	}
	if rider.Trick != ref.Trick {
		return nil, fmt.Errorf("compare: rider trick %s does not match reference trick %s", rider.Trick, ref.Trick)
	}
	ccfg := l5compare.ConfigFromTuning(e.cfg)
	overall, err := l5compare.Compare(rider.Temporal[FullRange], ref.Temporal[FullRange], rider.Proportions, ref.Proportions, ccfg)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(l2phases.PhaseOrder()))
	for _, p := range l2phases.PhaseOrder() {
		order = append(order, string(p))
	}
	phases, err := l5compare.ComparePhases(rider.PhaseSignals(), ref.PhaseSignals(), order, rider.Proportions, ref.Proportions, ccfg)
	if phases == nil {
		return nil, err
	}
	if err != nil {
		overall.Warnings = append(overall.Warnings, fmt.Sprintf("no phase comparable: %v", err))
	}

	acfg := l6archetypes.ConfigFromTuning(e.cfg)
	var all []l5compare.Archetype
	for _, name := range phases.Order {
		res := phases.Phases[name]
		res.Archetypes = l6archetypes.Detect(rider.Trick, name, res, acfg, e.tips)
		all = append(all, res.Archetypes...)
	}
	top := l5compare.TopArchetypes(all, acfg.Limit)
	overall.Archetypes = top

	monitoring.Opsf("compared %s to %s: overall %.1f, %d phases, archetypes %d",
		rider.VideoID, ref.VideoID, overall.OverallSimilarityScore, len(phases.Order), len(top))
	return &Comparison{
		RiderVideoID:     rider.VideoID,
		ReferenceVideoID: ref.VideoID,
		Trick:            rider.Trick,
		Overall:          overall,
		Phases:           phases,
		Archetypes:       top,
	}, nil
}
