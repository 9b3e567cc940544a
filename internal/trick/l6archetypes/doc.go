// Package l6archetypes turns comparison deltas into named coaching
// archetypes using a fixed, ordered rule table. Confidence grows linearly
// with how far a deviation exceeds its threshold, and only the strongest
// few are surfaced.
//
// Coaching text comes from a TipSource keyed by trick, phase and
// archetype; this package ships a static table and never composes prose.
package l6archetypes
