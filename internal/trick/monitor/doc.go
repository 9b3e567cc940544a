// Package monitor renders debug views of analyses: PNG plots of derived
// signals and rider/reference overlays via gonum/plot, and HTML comparison
// charts via go-echarts.
package monitor
