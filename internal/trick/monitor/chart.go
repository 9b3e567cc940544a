package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l4temporal"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix is where the rendered pages load echarts.min.js from.
var echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderComparisonChart writes an HTML page with a bar chart of the
// similarity per phase and one line chart per body part overlaying the
// rider's curve on the reference's.
func RenderComparisonChart(w io.Writer, v ComparisonView) error {
	if err := v.validate(); err != nil {
		return err
	}
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.PageTitle = v.Title

	if bar := similarityBar(v); bar != nil {
		page.AddCharts(bar)
	}
	n := 0
	for _, part := range l4temporal.PartNames() {
		rider, ref, ok := v.overlay(part)
		if !ok {
			continue
		}
		page.AddCharts(partLine(v, part, rider, ref))
		n++
	}
	if n == 0 {
		return fmt.Errorf("no body part present on both sides")
	}
	return page.Render(w)
}

func similarityBar(v ComparisonView) *charts.Bar {
	if v.Overall == nil && v.Phases == nil {
		return nil
	}
	var (
		labels []string
		scores []opts.BarData
	)
	if v.Overall != nil {
		labels = append(labels, "overall")
		scores = append(scores, opts.BarData{Value: round1(v.Overall.OverallSimilarityScore)})
	}
	if v.Phases != nil {
		for _, name := range v.Phases.Order {
			if res := v.Phases.Phases[name]; res != nil {
				labels = append(labels, name)
				scores = append(scores, opts.BarData{Value: round1(res.OverallSimilarityScore)})
			}
		}
	}

	subtitle := ""
	if v.Phases != nil && len(v.Phases.Excluded) > 0 {
		subtitle = fmt.Sprintf("%d phase(s) excluded", len(v.Phases.Excluded))
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Similarity by phase", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "score"}),
	)
	bar.SetXAxis(labels).
		AddSeries("similarity", scores,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func partLine(v ComparisonView, part string, rider, ref []float64) *charts.Line {
	t := dsp.NormalisedTime(len(ref))
	xs := make([]string, len(t))
	for i, x := range t {
		xs[i] = fmt.Sprintf("%.2f", x)
	}
	subtitle := ""
	if v.Overall != nil {
		if pc := v.Overall.BodyPartComparisons[part]; pc != nil {
			subtitle = fmt.Sprintf("similarity %.1f, timing offset %.0f ms", pc.SimilarityScore, pc.TimingOffsetMs)
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: part, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(xs).
		AddSeries("reference", lineData(ref)).
		AddSeries("rider", lineData(rider))
	return line
}

func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		out[i] = opts.LineData{Value: math.Round(v*1000) / 1000}
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
