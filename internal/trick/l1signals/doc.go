// Package l1signals owns the first analysis layer: frame-indexed signals
// derived directly from raw joint positions.
//
// Responsibilities: edge angle and edge transitions, hip height and its
// derivatives, the ankle-to-hip takeoff ratio, chest rotation, chest and
// gaze direction, arm position, body stackedness, form variance and
// wrist-to-board proximity.
//
// Derivatives are finite differences scaled by fps. No smoothing happens
// here; smoothing belongs to l4temporal. A sample whose required joints
// fall below the confidence cutoff is marked invalid and never zero-filled.
//
// Dependency rule: l1signals depends only on pose, dsp and config.
package l1signals
