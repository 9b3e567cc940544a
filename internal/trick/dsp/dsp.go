// Package dsp holds the numerical primitives shared by the analysis layers:
// finite differences, Savitzky-Golay smoothing, linear resampling over
// normalised time, and summary statistics.
//
// Every function is pure and allocates its result; inputs are never
// modified.
package dsp

import (
	"math"
	"sort"

	"github.com/pconstantinou/savitzkygolay"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// MinSmoothingWindow is the smallest window the Savitzky-Golay filter accepts.
const MinSmoothingWindow = 5

// Gradient returns d(values)/dt for samples spaced 1/fps apart, using
// central differences in the interior and one-sided differences at the
// ends. The result has the same length as values.
func Gradient(values []float64, fps float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (values[1] - values[0]) * fps
	out[n-1] = (values[n-1] - values[n-2]) * fps
	for i := 1; i < n-1; i++ {
		out[i] = (values[i+1] - values[i-1]) * fps / 2
	}
	return out
}

// BackwardDiff returns (v[i]-v[i-1])*fps. A sample is valid only when
// both contributing samples are valid; invalid outputs are NaN so they can
// never be mistaken for a real zero derivative.
func BackwardDiff(values []float64, valid []bool, fps float64) ([]float64, []bool) {
	n := len(values)
	out := make([]float64, n)
	ok := make([]bool, n)
	for i := range out {
		out[i] = math.NaN()
	}
	for i := 1; i < n; i++ {
		if valid[i] && valid[i-1] {
			out[i] = (values[i] - values[i-1]) * fps
			ok[i] = true
		}
	}
	return out, ok
}

// SmoothingWindow clamps a requested window to one the filter can use on a
// series of length n: odd, at least MinSmoothingWindow, larger than the
// polynomial order and no longer than the series. It returns 0 when no such
// window exists.
func SmoothingWindow(requested, order, n int) int {
	w := requested
	if w > n {
		w = n
	}
	if w%2 == 0 {
		w--
	}
	if w < MinSmoothingWindow || w <= order {
		return 0
	}
	return w
}

// Smooth applies a Savitzky-Golay filter of the given window and
// polynomial order. Series too short for any usable window are returned
// unchanged.
func Smooth(values []float64, window, order int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	w := SmoothingWindow(window, order, len(values))
	if w == 0 {
		return out
	}
	filter, err := savitzkygolay.NewFilter(w, 0, order)
	if err != nil {
		return out
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	smoothed, err := filter.Process(values, xs)
	if err != nil || len(smoothed) != len(values) {
		return out
	}
	return smoothed
}

// Resample maps values onto n samples evenly spaced over normalised time
// [0, 1] by piecewise-linear interpolation. A series already of length n
// is copied unchanged.
func Resample(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	switch len(values) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = values[0]
		}
		return out
	}
	if len(values) == n {
		copy(out, values)
		return out
	}

	xs := NormalisedTime(len(values))
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, values); err != nil {
		// xs is strictly increasing by construction
		panic(err)
	}
	targets := NormalisedTime(n)
	for i, x := range targets {
		out[i] = pl.Predict(x)
	}
	return out
}

// NormalisedTime returns n sample positions evenly spaced over [0, 1].
func NormalisedTime(n int) []float64 {
	xs := make([]float64, n)
	if n == 1 {
		return xs
	}
	for i := range xs {
		xs[i] = float64(i) / float64(n-1)
	}
	xs[n-1] = 1
	return xs
}

// Pearson returns the correlation coefficient of a and b, or 0 when either
// series has no variance or the lengths differ.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// MaxAbs returns max(|v|), 0 for an empty slice.
func MaxAbs(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// ArgMaxAbs returns the index of the largest |v|, -1 for an empty slice.
func ArgMaxAbs(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	return floats.MaxIdx(abs)
}

// MeanAbsError returns mean(|a-b|) over the common prefix.
func MeanAbsError(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	return floats.Distance(a[:n], b[:n], 1) / float64(n)
}

// NormalisedVariance returns var(x)/max(|x|)², which lies in [0, 1] for
// any series; 0 for constant or empty input.
func NormalisedVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := MaxAbs(values)
	if peak == 0 {
		return 0
	}
	_, variance := stat.MeanVariance(values, nil)
	return math.Max(0, math.Min(1, variance/(peak*peak)))
}

// Median returns the median of values, NaN for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Percentile returns the p-quantile (p in [0,1]) of values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Scaled returns values multiplied by s.
func Scaled(values []float64, s float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(s, out)
	return out
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// FillGaps replaces invalid samples by linear interpolation between the
// nearest valid neighbours, holding the first/last valid value at the ends.
// It returns false when no sample is valid.
func FillGaps(values []float64, valid []bool) ([]float64, bool) {
	out := make([]float64, len(values))
	copy(out, values)
	prev := -1
	for i := range out {
		if !valid[i] {
			continue
		}
		if prev == -1 {
			for k := 0; k < i; k++ {
				out[k] = out[i]
			}
		} else if i-prev > 1 {
			for k := prev + 1; k < i; k++ {
				f := float64(k-prev) / float64(i-prev)
				out[k] = out[prev] + f*(out[i]-out[prev])
			}
		}
		prev = i
	}
	if prev == -1 {
		return out, false
	}
	for k := prev + 1; k < len(out); k++ {
		out[k] = out[prev]
	}
	return out, true
}
