// Package l4temporal extracts per-body-part motion curves over a frame
// range: position, then velocity, acceleration and jerk by differentiation,
// with peak and smoothness statistics, plus pairwise relationship signals.
//
// Position is kept raw so peak timing is not shifted by the filter; only
// the derivatives are smoothed.
//
// Dependency rule: l4temporal depends on pose, dsp, l3proportions and config.
package l4temporal
