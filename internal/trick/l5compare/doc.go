// Package l5compare scores a rider's temporal signals against a reference
// execution. Both sides are resampled onto the same normalised time axis,
// the rider's length-based curves are rescaled to the reference skeleton,
// and each body part gets error, timing and similarity figures.
//
// Phases present on only one side are excluded and reported rather than
// stretched across.
//
// Dependency rule: l5compare depends on l3proportions, l4temporal, dsp and
// config. It knows phases only by name.
package l5compare
