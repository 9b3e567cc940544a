// Package sqlite persists analyses, reference analyses and comparisons.
//
// Analyses are keyed by video ID and carry the source timeline
// fingerprint so callers can tell when a cached PhaseMap and its temporal
// signals were computed from a different pose timeline and must be
// recomputed. Comparisons are cached per (rider video, reference) pair.
// Schema lives in internal/db/migrations.
package sqlite
