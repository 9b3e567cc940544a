// Package pose owns the input data model of the trick analysis engine.
//
// Responsibilities: per-frame joint positions produced upstream by the pose
// estimation collaborator, the trick type and stance tags set at upload
// time, and the small amount of 3D vector maths every higher layer shares.
//
// Dependency rule: pose depends on nothing else in internal/trick.
// Frames are read-only once decoded; analysis layers never mutate them.
//
// Coordinate convention: Y is up (the collaborator already applies the
// 180° X-axis rotation used for the mesh viewer). Units are whatever the
// collaborator emits, pixels or metres, but must be consistent within a
// timeline.
package pose
