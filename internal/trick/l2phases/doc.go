// Package l2phases owns the phase segmentation layer: partitioning a
// derived signal set into the ordered trick phases setupCarve, windUp,
// snap, takeoff, air and landing.
//
// The segmenter moves forward over the frame axis only. Takeoff anchors
// everything: it is found first, then landing after it and the approach
// phases before it. Trick-type differences live behind trickBranch so a
// new trick type is one more case in branchFor.
//
// Failures are attached to the PhaseMap rather than discarding it; only a
// missing takeoff leaves the map empty.
//
// Dependency rule: l2phases depends on l1signals, pose, dsp and config.
package l2phases
