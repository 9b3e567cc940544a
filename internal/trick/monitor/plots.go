package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
	"github.com/banshee-data/trick.report/internal/trick/l2phases"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
	"github.com/banshee-data/trick.report/internal/trick/l5compare"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	riderColor     = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	referenceColor = color.RGBA{R: 40, G: 90, B: 200, A: 255}
)

// ComparisonView bundles what the comparison plots and charts draw. The
// rider's positional curves are multiplied by the part Scale recorded in
// Overall so they overlay the reference the way they were scored.
type ComparisonView struct {
	Title     string
	Rider     *l4temporal.TemporalSignals
	Reference *l4temporal.TemporalSignals
	Overall   *l5compare.ComparisonResult
	Phases    *l5compare.PhaseComparison
	// Samples is the resample count; 0 uses the reference length.
	Samples int
}

func (v ComparisonView) validate() error {
	if v.Rider == nil || v.Reference == nil {
		return errors.New("comparison view needs rider and reference signals")
	}
	return nil
}

func (v ComparisonView) samples() int {
	if v.Samples > 0 {
		return v.Samples
	}
	return v.Reference.FrameCount
}

// overlay returns the rider's and reference's resampled position curves
// for part, or ok=false when either side lacks it.
func (v ComparisonView) overlay(part string) (rider, ref []float64, ok bool) {
	rp, rok := v.Rider.BodyParts[part]
	fp, fok := v.Reference.BodyParts[part]
	if !rok || !fok || len(rp.Position) == 0 || len(fp.Position) == 0 {
		return nil, nil, false
	}
	scale := 1.0
	if v.Overall != nil {
		if pc := v.Overall.BodyPartComparisons[part]; pc != nil && pc.Scale != 0 {
			scale = pc.Scale
		}
	}
	n := v.samples()
	return dsp.Scaled(dsp.Resample(rp.Position, n), scale), dsp.Resample(fp.Position, n), true
}

// PlotSignals writes PNG plots of a clip's derived signals to dir, with
// a dashed marker at the start of each detected phase. It returns the
// files written.
func PlotSignals(dir, videoID string, sig *l1signals.Signals, phases *l2phases.PhaseMap) ([]string, error) {
	if sig == nil {
		return nil, errors.New("plot signals: no signals")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	panels := []struct {
		file   string
		title  string
		ylabel string
		series map[string]l1signals.Series
	}{
		{"hip_height", "Hip height and ankle clearance", "leg lengths / ratio", map[string]l1signals.Series{
			"hip height":         sig.HipHeight,
			"ankle to hip ratio": sig.AnkleToHipRatio,
		}},
		{"edge_angle", "Board edge angle", "degrees (toe +)", map[string]l1signals.Series{
			"edge angle": sig.EdgeAngle,
		}},
		{"chest_rotation", "Chest rotation", "degrees", map[string]l1signals.Series{
			"chest rotation": sig.ChestRotation,
		}},
		{"form_variance", "Form variance", "variance", map[string]l1signals.Series{
			"form variance":    sig.FormVariance,
			"body stackedness": sig.BodyStackedness,
		}},
	}

	var written []string
	for _, panel := range panels {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s - %s", videoID, panel.title)
		p.X.Label.Text = "Frame"
		p.Y.Label.Text = panel.ylabel

		names := sortedKeys(panel.series)
		colors := generateColors(len(names))
		lo, hi := math.Inf(1), math.Inf(-1)
		for i, name := range names {
			pts := seriesPoints(panel.series[name], sig.FirstFrame)
			if len(pts) == 0 {
				continue
			}
			for _, pt := range pts {
				lo, hi = math.Min(lo, pt.Y), math.Max(hi, pt.Y)
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(name, line)
		}
		if phases != nil && lo <= hi {
			if err := addPhaseMarkers(p, phases, lo, hi); err != nil {
				return written, err
			}
		}
		legendTopRight(p)

		file := filepath.Join(dir, fmt.Sprintf("%s_%s.png", safeName(videoID), panel.file))
		if err := p.Save(plotWidth, plotHeight, file); err != nil {
			return written, fmt.Errorf("save %s plot: %w", panel.file, err)
		}
		written = append(written, file)
	}
	return written, nil
}

// PlotComparison writes one PNG per body part present on both sides,
// overlaying the rider's curve on the reference's over normalised time.
func PlotComparison(dir string, v ComparisonView) ([]string, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	var written []string
	for _, part := range l4temporal.PartNames() {
		rider, ref, ok := v.overlay(part)
		if !ok {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s - %s", v.Title, part)
		if v.Overall != nil {
			if pc := v.Overall.BodyPartComparisons[part]; pc != nil {
				p.Title.Text += fmt.Sprintf(" (similarity %.1f)", pc.SimilarityScore)
			}
		}
		p.X.Label.Text = "Normalised time"
		p.Y.Label.Text = "Position"

		t := dsp.NormalisedTime(len(ref))
		for _, s := range []struct {
			name   string
			values []float64
			color  color.Color
		}{
			{"reference", ref, referenceColor},
			{"rider", rider, riderColor},
		} {
			pts := make(plotter.XYs, len(s.values))
			for i, y := range s.values {
				pts[i] = plotter.XY{X: t[i], Y: y}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, err
			}
			line.Color = s.color
			line.Width = vg.Points(1.5)
			p.Add(line)
			p.Legend.Add(s.name, line)
		}
		legendTopRight(p)

		file := filepath.Join(dir, fmt.Sprintf("compare_%s.png", part))
		if err := p.Save(plotWidth, plotHeight, file); err != nil {
			return written, fmt.Errorf("save %s comparison plot: %w", part, err)
		}
		written = append(written, file)
	}
	if len(written) == 0 {
		return nil, errors.New("no body part present on both sides")
	}
	return written, nil
}

func seriesPoints(s l1signals.Series, firstFrame int) plotter.XYs {
	pts := make(plotter.XYs, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if v, ok := s.At(i); ok {
			pts = append(pts, plotter.XY{X: float64(firstFrame + i), Y: v})
		}
	}
	return pts
}

func addPhaseMarkers(p *plot.Plot, phases *l2phases.PhaseMap, lo, hi float64) error {
	colors := generateColors(len(l2phases.PhaseOrder()))
	for i, name := range l2phases.PhaseOrder() {
		ph := phases.Get(name)
		if ph == nil {
			continue
		}
		x := float64(ph.StartFrame)
		line, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(0.75)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(string(name), line)
	}
	return nil
}

func legendTopRight(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func safeName(s string) string {
	if s == "" {
		return "clip"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
