package l4temporal

import (
	"math"

	"github.com/banshee-data/trick.report/internal/trick/l3proportions"
	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Kind says whether a part's position is a length, which scales with body
// size, or an angle, which does not.
type Kind string

const (
	Positional Kind = "positional"
	Angular    Kind = "angular"
)

// Body part names.
const (
	Hips          = "hips"
	Head          = "head"
	LeftAnkle     = "leftAnkle"
	RightAnkle    = "rightAnkle"
	LeftWrist     = "leftWrist"
	RightWrist    = "rightWrist"
	ArmSpan       = "armSpan"
	ChestRotation = "chestRotation"
	HipRotation   = "hipRotation"
	LeftKnee      = "leftKnee"
	RightKnee     = "rightKnee"
)

// Relationship names.
const (
	UpperLowerSeparation = "upperLowerSeparation"
	LeftRightAnkle       = "leftRightAnkle"
	LeftRightWrist       = "leftRightWrist"
)

// rangeContext holds per-range references that part positions are
// measured against.
type rangeContext struct {
	minConf    float64
	ground     float64
	chestAxis0 pose.Vec3
	hipAxis0   pose.Vec3
	haveChest  bool
	haveHip    bool
}

type partSpec struct {
	name      string
	kind      Kind
	dimension l3proportions.Dimension // scaling dimension for positional parts
	position  func(f pose.Frame, c *rangeContext) (float64, bool)
}

// partSpecs is the fixed set of tracked parts in output order.
var partSpecs = []partSpec{
	{Hips, Positional, l3proportions.LegLength, func(f pose.Frame, c *rangeContext) (float64, bool) {
		h, ok := f.Midpoint(pose.LeftHip, pose.RightHip, c.minConf)
		return h.Y - c.ground, ok
	}},
	{Head, Positional, l3proportions.Height, heightOf(pose.Head)},
	{LeftAnkle, Positional, l3proportions.LegLength, heightOf(pose.LeftAnkle)},
	{RightAnkle, Positional, l3proportions.LegLength, heightOf(pose.RightAnkle)},
	{LeftWrist, Positional, l3proportions.ArmLength, wristAboveHips(pose.LeftWrist)},
	{RightWrist, Positional, l3proportions.ArmLength, wristAboveHips(pose.RightWrist)},
	{ArmSpan, Positional, l3proportions.ArmLength, func(f pose.Frame, c *rangeContext) (float64, bool) {
		l, ok1 := f.ConfidentPosition(pose.LeftWrist, c.minConf)
		r, ok2 := f.ConfidentPosition(pose.RightWrist, c.minConf)
		return l.Distance(r), ok1 && ok2
	}},
	{ChestRotation, Angular, "", func(f pose.Frame, c *rangeContext) (float64, bool) {
		axis, ok := horizontalAxis(f, pose.LeftShoulder, pose.RightShoulder, c.minConf)
		if !ok || !c.haveChest {
			return 0, false
		}
		return pose.SignedAngleAboutUp(c.chestAxis0, axis), true
	}},
	{HipRotation, Angular, "", func(f pose.Frame, c *rangeContext) (float64, bool) {
		axis, ok := horizontalAxis(f, pose.LeftHip, pose.RightHip, c.minConf)
		if !ok || !c.haveHip {
			return 0, false
		}
		return pose.SignedAngleAboutUp(c.hipAxis0, axis), true
	}},
	{LeftKnee, Angular, "", kneeFlexion(pose.LeftHip, pose.LeftKnee, pose.LeftAnkle)},
	{RightKnee, Angular, "", kneeFlexion(pose.RightHip, pose.RightKnee, pose.RightAnkle)},
}

type relationSpec struct {
	name string
	a, b string
}

var relationSpecs = []relationSpec{
	{UpperLowerSeparation, ChestRotation, HipRotation},
	{LeftRightAnkle, LeftAnkle, RightAnkle},
	{LeftRightWrist, LeftWrist, RightWrist},
}

func heightOf(name pose.JointName) func(pose.Frame, *rangeContext) (float64, bool) {
	return func(f pose.Frame, c *rangeContext) (float64, bool) {
		p, ok := f.ConfidentPosition(name, c.minConf)
		return p.Y - c.ground, ok
	}
}

func wristAboveHips(name pose.JointName) func(pose.Frame, *rangeContext) (float64, bool) {
	return func(f pose.Frame, c *rangeContext) (float64, bool) {
		w, ok1 := f.ConfidentPosition(name, c.minConf)
		h, ok2 := f.Midpoint(pose.LeftHip, pose.RightHip, c.minConf)
		return w.Y - h.Y, ok1 && ok2
	}
}

// kneeFlexion is 0 for a straight leg and grows as the knee bends.
func kneeFlexion(hip, knee, ankle pose.JointName) func(pose.Frame, *rangeContext) (float64, bool) {
	return func(f pose.Frame, c *rangeContext) (float64, bool) {
		h, ok1 := f.ConfidentPosition(hip, c.minConf)
		k, ok2 := f.ConfidentPosition(knee, c.minConf)
		a, ok3 := f.ConfidentPosition(ankle, c.minConf)
		if !ok1 || !ok2 || !ok3 {
			return 0, false
		}
		return 180 - pose.AngleBetween(h.Sub(k), a.Sub(k)), true
	}
}

func horizontalAxis(f pose.Frame, l, r pose.JointName, minConf float64) (pose.Vec3, bool) {
	lp, ok1 := f.ConfidentPosition(l, minConf)
	rp, ok2 := f.ConfidentPosition(r, minConf)
	if !ok1 || !ok2 {
		return pose.Vec3{}, false
	}
	axis := lp.Sub(rp).Horizontal()
	if axis.Norm() < 1e-9 {
		return pose.Vec3{}, false
	}
	return axis, true
}

// newRangeContext fixes the ground level and the reference axes for the
// rotation parts. A non-nil ground is used as is; otherwise the lowest
// ankle height in the range stands in for it.
func newRangeContext(frames []pose.Frame, minConf float64, ground *float64) *rangeContext {
	c := &rangeContext{minConf: minConf, ground: math.Inf(1)}
	if ground != nil && !math.IsNaN(*ground) && !math.IsInf(*ground, 0) {
		c.ground = *ground
	}
	for _, f := range frames {
		if ground == nil {
			if a, ok := f.Midpoint(pose.LeftAnkle, pose.RightAnkle, minConf); ok {
				c.ground = math.Min(c.ground, a.Y)
			}
		}
		if !c.haveChest {
			c.chestAxis0, c.haveChest = horizontalAxis(f, pose.LeftShoulder, pose.RightShoulder, minConf)
		}
		if !c.haveHip {
			c.hipAxis0, c.haveHip = horizontalAxis(f, pose.LeftHip, pose.RightHip, minConf)
		}
	}
	if math.IsInf(c.ground, 1) {
		c.ground = 0
	}
	return c
}
