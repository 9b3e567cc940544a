package l1signals

import (
	"math"

	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"gonum.org/v1/gonum/stat"
)

// formJoints make up the body shape compared frame to frame for form variance.
var formJoints = []pose.JointName{
	pose.Head,
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftWrist, pose.RightWrist,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
}

// boardOverhang is how far the board extends past each binding, as a
// fraction of the stance width.
const boardOverhang = 0.5

// deriver evaluates per-frame geometry against a fixed confidence cutoff.
type deriver struct {
	frames []pose.Frame
	cfg    Config
	leg    float64
	ground float64
}

func (d *deriver) pos(f pose.Frame, name pose.JointName) (pose.Vec3, bool) {
	return f.ConfidentPosition(name, d.cfg.MinJointConfidence)
}

func (d *deriver) mid(f pose.Frame, a, b pose.JointName) (pose.Vec3, bool) {
	return f.Midpoint(a, b, d.cfg.MinJointConfidence)
}

func (d *deriver) hipMid(f pose.Frame) (pose.Vec3, bool) {
	return d.mid(f, pose.LeftHip, pose.RightHip)
}

func (d *deriver) ankleMid(f pose.Frame) (pose.Vec3, bool) {
	return d.mid(f, pose.LeftAnkle, pose.RightAnkle)
}

// boardAxis returns the horizontal unit vector from the trail to the lead
// ankle, i.e. toward the nose.
func (d *deriver) boardAxis(f pose.Frame) (pose.Vec3, bool) {
	lead, ok1 := d.pos(f, d.cfg.Stance.LeadAnkle())
	trail, ok2 := d.pos(f, d.cfg.Stance.TrailAnkle())
	if !ok1 || !ok2 {
		return pose.Vec3{}, false
	}
	return lead.Sub(trail).Horizontal().Normalize()
}

// toeSide returns the horizontal unit vector perpendicular to the board
// pointing toward the toe edge. Feet are preferred; knees, which flex
// toward the toe side, are the fallback.
func (d *deriver) toeSide(f pose.Frame, axis pose.Vec3) (pose.Vec3, bool) {
	ankles, ok := d.ankleMid(f)
	if !ok {
		return pose.Vec3{}, false
	}
	var raw pose.Vec3
	if feet, ok := d.mid(f, pose.LeftFoot, pose.RightFoot); ok {
		raw = feet.Sub(ankles)
	} else if knees, ok := d.mid(f, pose.LeftKnee, pose.RightKnee); ok {
		hips, ok := d.hipMid(f)
		if !ok {
			return pose.Vec3{}, false
		}
		raw = knees.Sub(hips.Midpoint(ankles))
	} else {
		return pose.Vec3{}, false
	}
	raw = raw.Horizontal()
	raw = raw.Sub(axis.Scale(raw.Dot(axis)))
	return raw.Normalize()
}

// legLength is the median hip-midpoint to ankle-midpoint distance.
func (d *deriver) legLength() float64 {
	var lengths []float64
	for _, f := range d.frames {
		h, ok1 := d.hipMid(f)
		a, ok2 := d.ankleMid(f)
		if ok1 && ok2 {
			lengths = append(lengths, h.Distance(a))
		}
	}
	if len(lengths) == 0 {
		return math.NaN()
	}
	return dsp.Median(lengths)
}

// groundHeight is a low percentile of the lower ankle's height: the rider
// spends most of any clip on the snow.
func (d *deriver) groundHeight() float64 {
	var heights []float64
	for _, f := range d.frames {
		low := math.Inf(1)
		for _, name := range []pose.JointName{pose.LeftAnkle, pose.RightAnkle} {
			if p, ok := d.pos(f, name); ok {
				low = math.Min(low, p.Y)
			}
		}
		if !math.IsInf(low, 1) {
			heights = append(heights, low)
		}
	}
	if len(heights) == 0 {
		return math.NaN()
	}
	return dsp.Percentile(heights, d.cfg.GroundPercentile)
}

// edgeAngle is the signed lean of the hips over the ankles across the
// board, positive toward the toe edge.
func (d *deriver) edgeAngle(f pose.Frame) (float64, bool) {
	hips, ok1 := d.hipMid(f)
	ankles, ok2 := d.ankleMid(f)
	if !ok1 || !ok2 {
		return 0, false
	}
	axis, ok := d.boardAxis(f)
	if !ok {
		return 0, false
	}
	toe, ok := d.toeSide(f, axis)
	if !ok {
		return 0, false
	}
	lean := hips.Sub(ankles)
	return math.Atan2(lean.Dot(toe), lean.Y) * 180 / math.Pi, true
}

func (d *deriver) hipHeight(f pose.Frame) (float64, bool) {
	h, ok := d.hipMid(f)
	if !ok || math.IsNaN(d.ground) {
		return 0, false
	}
	return h.Y - d.ground, true
}

// ankleToHipRatio is the clearance of the lower ankle above the ground
// divided by the clearance expected at takeoff. It crosses 1.0 from below
// when the rider leaves the surface.
func (d *deriver) ankleToHipRatio(f pose.Frame) (float64, bool) {
	l, ok1 := d.pos(f, pose.LeftAnkle)
	r, ok2 := d.pos(f, pose.RightAnkle)
	if !ok1 || !ok2 || math.IsNaN(d.leg) || d.leg <= 0 || math.IsNaN(d.ground) {
		return 0, false
	}
	clearance := math.Min(l.Y, r.Y) - d.ground
	return clearance / (d.cfg.TakeoffClearanceFraction * d.leg), true
}

func (d *deriver) shoulderAxis(f pose.Frame) (pose.Vec3, bool) {
	l, ok1 := d.pos(f, pose.LeftShoulder)
	r, ok2 := d.pos(f, pose.RightShoulder)
	if !ok1 || !ok2 {
		return pose.Vec3{}, false
	}
	axis := l.Sub(r)
	if axis.Horizontal().Norm() < 1e-9 {
		return pose.Vec3{}, false
	}
	return axis, true
}

// chestDirection is the forward normal of the plane spanned by the
// shoulder axis and the spine.
func (d *deriver) chestDirection(f pose.Frame) (pose.Vec3, bool) {
	axis, ok := d.shoulderAxis(f)
	if !ok {
		return pose.Vec3{}, false
	}
	neck, ok1 := d.pos(f, pose.Neck)
	pelvis, ok2 := d.pos(f, pose.Pelvis)
	if !ok1 || !ok2 {
		return pose.Vec3{}, false
	}
	return axis.Cross(neck.Sub(pelvis)).Normalize()
}

// gazeDirection is the forward normal of the plane spanned by the collar
// axis and the neck-to-head vector.
func (d *deriver) gazeDirection(f pose.Frame) (pose.Vec3, bool) {
	lc, ok1 := d.pos(f, pose.LeftCollar)
	rc, ok2 := d.pos(f, pose.RightCollar)
	neck, ok3 := d.pos(f, pose.Neck)
	head, ok4 := d.pos(f, pose.Head)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return pose.Vec3{}, false
	}
	return lc.Sub(rc).Cross(head.Sub(neck)).Normalize()
}

func (d *deriver) armPosition(f pose.Frame) ArmPosition {
	ls, ok1 := d.pos(f, pose.LeftShoulder)
	rs, ok2 := d.pos(f, pose.RightShoulder)
	lw, ok3 := d.pos(f, pose.LeftWrist)
	rw, ok4 := d.pos(f, pose.RightWrist)
	axis, ok5 := d.boardAxis(f)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return ArmPosition{}
	}
	width := ls.Distance(rs)
	if width < 1e-9 {
		return ArmPosition{}
	}
	down := pose.Up.Scale(-1)
	reach := lw.Midpoint(rw).Sub(ls.Midpoint(rs)).Dot(axis) / width
	return ArmPosition{
		Valid:          true,
		LeftElevation:  pose.AngleBetween(lw.Sub(ls), down),
		RightElevation: pose.AngleBetween(rw.Sub(rs), down),
		Reach:          reach,
		TowardTail:     reach < -d.cfg.ArmReachThreshold,
		TowardNose:     reach > d.cfg.ArmReachThreshold,
	}
}

// stackedness is 1 when head, hips and ankles are vertically aligned and
// falls toward 0 as their horizontal offsets approach body height.
func (d *deriver) stackedness(f pose.Frame) (float64, bool) {
	head, ok1 := d.pos(f, pose.Head)
	hips, ok2 := d.hipMid(f)
	ankles, ok3 := d.ankleMid(f)
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	height := head.Distance(ankles)
	if height < 1e-9 {
		return 0, false
	}
	offset := head.Sub(hips).Horizontal().Norm() + hips.Sub(ankles).Horizontal().Norm()
	return dsp.Clamp(1-offset/height, 0, 1), true
}

// wristToBoard is the distance from the nearer wrist to the board segment,
// in leg lengths.
func (d *deriver) wristToBoard(f pose.Frame) (float64, bool) {
	lead, ok1 := d.pos(f, d.cfg.Stance.LeadAnkle())
	trail, ok2 := d.pos(f, d.cfg.Stance.TrailAnkle())
	if !ok1 || !ok2 || math.IsNaN(d.leg) || d.leg <= 0 {
		return 0, false
	}
	span := lead.Sub(trail).Scale(boardOverhang)
	nose, tail := lead.Add(span), trail.Sub(span)

	best := math.Inf(1)
	for _, w := range []pose.JointName{pose.LeftWrist, pose.RightWrist} {
		p, ok := d.pos(f, w)
		if !ok {
			continue
		}
		best = math.Min(best, p.Distance(pose.ClosestPointOnSegment(p, tail, nose)))
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best / d.leg, true
}

// shape returns the form joints relative to the hip midpoint, in leg lengths.
func (d *deriver) shape(f pose.Frame) ([]float64, bool) {
	hips, ok := d.hipMid(f)
	if !ok || math.IsNaN(d.leg) || d.leg <= 0 {
		return nil, false
	}
	out := make([]float64, 0, 3*len(formJoints))
	for _, name := range formJoints {
		p, ok := d.pos(f, name)
		if !ok {
			return nil, false
		}
		rel := p.Sub(hips).Scale(1 / d.leg)
		out = append(out, rel.X, rel.Y, rel.Z)
	}
	return out, true
}

// formVariance is the mean per-coordinate variance of the body shape over
// a trailing window. A sample is valid only when every frame in its
// window has a valid shape. The second result marks the frames whose
// shape joints were confident.
func (d *deriver) formVariance() (Series, []bool) {
	n := len(d.frames)
	out := newSeries(n)
	w := d.cfg.FormVarianceWindow
	if w < 2 {
		w = 2
	}
	shapes := make([][]float64, n)
	confident := make([]bool, n)
	for i, f := range d.frames {
		if s, ok := d.shape(f); ok {
			shapes[i], confident[i] = s, true
		}
	}
	column := make([]float64, w)
	for i := w - 1; i < n; i++ {
		ok := true
		for k := i - w + 1; k <= i; k++ {
			if shapes[k] == nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		total := 0.0
		dims := len(shapes[i])
		for c := 0; c < dims; c++ {
			for k := 0; k < w; k++ {
				column[k] = shapes[i-w+1+k][c]
			}
			total += stat.Variance(column, nil)
		}
		out.set(i, total/float64(dims))
	}
	return out, confident
}
