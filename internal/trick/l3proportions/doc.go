// Package l3proportions measures skeleton size so two riders of different
// build can be compared: six body dimensions per rider, the ratios between
// two riders and a mismatch score summarising how far apart they are.
//
// Dependency rule: l3proportions depends only on pose and dsp.
package l3proportions
