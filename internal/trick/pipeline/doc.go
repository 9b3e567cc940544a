// Package pipeline runs the analysis layers end to end. Analyze turns a
// pose timeline into signals, phases, per-phase temporal signals and body
// proportions; Compare scores one analysis against a reference and picks
// the archetypes to surface.
//
// An Engine holds only immutable configuration and is safe for concurrent
// use; AnalyzeBatch fans independent timelines out over a worker limit.
package pipeline
