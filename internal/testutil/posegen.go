package testutil

import (
	"math"

	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// RiderProfile describes a synthetic run. The board points along +X
// (nose), Y is up, and the rider faces their toe edge. Distances are in
// metres for Scale 1, where leg length is 0.85.
type RiderProfile struct {
	VideoID string
	FPS     float64
	Frames  int
	Trick   pose.TrickType
	Stance  pose.Stance
	Scale   float64

	// Takeoff is the first airborne frame and Landing the first frame back
	// on the snow. A negative Takeoff produces a run that never leaves the
	// ground.
	Takeoff int
	Landing int
	// ExtraHops adds airborne runs [start, end) besides the main jump.
	ExtraHops [][2]int

	EdgeAngle func(i int) float64 // degrees, positive toward the toe edge
	ChestYaw  func(i int) float64 // degrees about the vertical
	ArmReach  func(i int) float64 // wrist offset along the board in shoulder widths

	// Grab puts the lead-side wrist on the board for frames [start, end).
	Grab [2]int

	// LowConfidence lists joints reported at confidence 0.1 per frame index.
	LowConfidence map[int][]pose.JointName
}

const (
	syntheticLeg        = 0.85
	syntheticAnkle      = 0.08
	syntheticConfidence = 0.9
)

// DefaultRiderProfile returns a 30 fps, 60 frame run that takes off at
// frame 25 and lands at frame 40. Edge: toe until frame 9, a linear roll
// to heel through frame 15, flat after takeoff. Rotational tricks wind the
// chest up to 40° against the spin by frame 20 with arms swinging to the
// tail, snap through takeoff and complete a full rotation before landing.
func DefaultRiderProfile(trick pose.TrickType) RiderProfile {
	p := RiderProfile{
		VideoID:   "synthetic-" + string(trick),
		FPS:       30,
		Frames:    60,
		Trick:     trick,
		Stance:    pose.Regular,
		Scale:     1,
		Takeoff:   25,
		Landing:   40,
		EdgeAngle: defaultEdge(25),
		ChestYaw:  func(int) float64 { return 0 },
		ArmReach:  func(int) float64 { return 0 },
	}
	if trick.Rotational() {
		sign := 1.0
		if trick == pose.Backside {
			sign = -1
		}
		p.ChestYaw = func(i int) float64 {
			return sign * piecewise(i, []float64{0, 12, 20, 25, 39}, []float64{0, 0, -40, 60, 360})
		}
		p.ArmReach = func(i int) float64 {
			return piecewise(i, []float64{0, 12, 20, 25}, []float64{0, 0, -0.8, 0.5})
		}
	}
	return p
}

func defaultEdge(takeoff int) func(int) float64 {
	return func(i int) float64 {
		if i >= takeoff {
			return 0
		}
		return piecewise(i, []float64{0, 9, 15}, []float64{12, 12, -12})
	}
}

// piecewise evaluates the polyline through (xs, ys) at i, holding the end
// values outside the range.
func piecewise(i int, xs, ys []float64) float64 {
	x := float64(i)
	if x <= xs[0] {
		return ys[0]
	}
	for k := 1; k < len(xs); k++ {
		if x <= xs[k] {
			f := (x - xs[k-1]) / (xs[k] - xs[k-1])
			return ys[k-1] + f*(ys[k]-ys[k-1])
		}
	}
	return ys[len(ys)-1]
}

// rotY rotates v about the vertical by deg degrees, in the sense measured
// by pose.SignedAngleAboutUp.
func rotY(v pose.Vec3, deg float64) pose.Vec3 {
	r := deg * math.Pi / 180
	c, s := math.Cos(r), math.Sin(r)
	return pose.Vec3{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
}

func (p RiderProfile) lift(i int) float64 {
	runs := append([][2]int{{p.Takeoff, p.Landing}}, p.ExtraHops...)
	for _, r := range runs {
		if r[0] < 0 || r[1] <= r[0] || i < r[0] || i >= r[1] {
			continue
		}
		phase := (float64(i-r[0]) + 0.5) / float64(r[1]-r[0])
		return 0.2 + 0.4*math.Sin(math.Pi*phase)
	}
	return 0
}

// SyntheticTimeline renders a RiderProfile into a validated timeline.
func SyntheticTimeline(p RiderProfile) *pose.Timeline {
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.Stance == "" {
		p.Stance = pose.Regular
	}
	fn := func(f func(int) float64) func(int) float64 {
		if f == nil {
			return func(int) float64 { return 0 }
		}
		return f
	}
	edgeAt, yawAt, reachAt := fn(p.EdgeAngle), fn(p.ChestYaw), fn(p.ArmReach)

	s := p.Scale
	// Lateral unit toward the rider's left and toe-side unit. A goofy rider
	// stands mirrored: right foot toward the nose, facing -Z.
	left := pose.Vec3{X: 1}
	toe := pose.Vec3{Z: 1}
	if p.Stance == pose.Goofy {
		left = pose.Vec3{X: -1}
		toe = pose.Vec3{Z: -1}
	}

	tl := &pose.Timeline{
		VideoID:     p.VideoID,
		FPS:         p.FPS,
		DurationSec: float64(p.Frames) / p.FPS,
		Trick:       p.Trick,
		Stance:      p.Stance,
		Frames:      make([]pose.Frame, p.Frames),
	}
	for i := 0; i < p.Frames; i++ {
		y := s * (syntheticAnkle + p.lift(i))
		lAnkle := left.Scale(0.25 * s).Add(pose.Vec3{Y: y})
		rAnkle := left.Scale(-0.25 * s).Add(pose.Vec3{Y: y})
		ankles := lAnkle.Midpoint(rAnkle)

		e := edgeAt(i) * math.Pi / 180
		hips := ankles.Add(pose.Vec3{Y: syntheticLeg * s * math.Cos(e)}).Add(toe.Scale(syntheticLeg * s * math.Sin(e)))
		lHip, rHip := hips.Add(left.Scale(0.1*s)), hips.Sub(left.Scale(0.1*s))

		yaw := yawAt(i)
		chest := hips.Add(pose.Vec3{Y: 0.5 * s})
		half := rotY(left.Scale(0.2*s), yaw)
		lShoulder, rShoulder := chest.Add(half), chest.Sub(half)
		neck := chest.Add(pose.Vec3{Y: 0.08 * s})
		head := chest.Add(pose.Vec3{Y: 0.28 * s}).Add(rotY(toe.Scale(0.03*s), yaw))
		collar := rotY(left.Scale(0.08*s), yaw)

		reach := pose.Vec3{X: reachAt(i) * 0.4 * s}
		hang := pose.Vec3{Y: -0.45 * s}.Add(toe.Scale(0.1 * s))
		lWrist := lShoulder.Add(reach).Add(hang)
		rWrist := rShoulder.Add(reach).Add(hang)
		if i >= p.Grab[0] && i < p.Grab[1] {
			lead := lAnkle
			if p.Stance == pose.Goofy {
				lead = rAnkle
			}
			lWrist = lead.Add(pose.Vec3{Y: 0.05 * s})
		}

		joints := map[pose.JointName]pose.Vec3{
			pose.Pelvis:        hips,
			pose.LeftHip:       lHip,
			pose.RightHip:      rHip,
			pose.Spine1:        hips.Add(neck.Sub(hips).Scale(0.25)),
			pose.Spine2:        hips.Add(neck.Sub(hips).Scale(0.5)),
			pose.Spine3:        hips.Add(neck.Sub(hips).Scale(0.75)),
			pose.LeftKnee:      lHip.Midpoint(lAnkle).Add(toe.Scale(0.05 * s)),
			pose.RightKnee:     rHip.Midpoint(rAnkle).Add(toe.Scale(0.05 * s)),
			pose.LeftAnkle:     lAnkle,
			pose.RightAnkle:    rAnkle,
			pose.LeftFoot:      lAnkle.Add(pose.Vec3{Y: -0.03 * s}).Add(toe.Scale(0.12 * s)),
			pose.RightFoot:     rAnkle.Add(pose.Vec3{Y: -0.03 * s}).Add(toe.Scale(0.12 * s)),
			pose.Neck:          neck,
			pose.LeftCollar:    neck.Add(collar),
			pose.RightCollar:   neck.Sub(collar),
			pose.Head:          head,
			pose.LeftShoulder:  lShoulder,
			pose.RightShoulder: rShoulder,
			pose.LeftElbow:     lShoulder.Midpoint(lWrist).Add(toe.Scale(0.03 * s)),
			pose.RightElbow:    rShoulder.Midpoint(rWrist).Add(toe.Scale(0.03 * s)),
			pose.LeftWrist:     lWrist,
			pose.RightWrist:    rWrist,
			pose.LeftHand:      lWrist.Add(pose.Vec3{Y: -0.05 * s}),
			pose.RightHand:     rWrist.Add(pose.Vec3{Y: -0.05 * s}),
		}

		low := map[pose.JointName]bool{}
		for _, name := range p.LowConfidence[i] {
			low[name] = true
		}
		frame := pose.Frame{
			FrameNumber: i,
			TimestampMs: float64(i) * 1000 / p.FPS,
			Joints:      make(map[pose.JointName]pose.Joint, len(joints)),
		}
		for name, v := range joints {
			c := syntheticConfidence
			if low[name] {
				c = 0.1
			}
			frame.Joints[name] = pose.Joint{X: v.X, Y: v.Y, Z: v.Z, Confidence: c}
		}
		tl.Frames[i] = frame
	}
	return tl
}
