package pose

import "math"

// Vec3 is a 3D vector in the timeline's coordinate frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Up is the vertical axis.
var Up = Vec3{Y: 1}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Norm() }
func (v Vec3) Midpoint(o Vec3) Vec3 { return v.Add(o).Scale(0.5) }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Normalize returns the unit vector along v, or false for a near-zero vector.
func (v Vec3) Normalize() (Vec3, bool) {
	n := v.Norm()
	if n < 1e-9 {
		return Vec3{}, false
	}
	return v.Scale(1 / n), true
}

// Horizontal drops the vertical component.
func (v Vec3) Horizontal() Vec3 { return Vec3{X: v.X, Z: v.Z} }

// Yaw returns the heading of the horizontal component in degrees.
func (v Vec3) Yaw() float64 {
	return math.Atan2(v.X, v.Z) * 180 / math.Pi
}

// SignedAngleAboutUp returns the angle in degrees from a to b measured
// about the vertical axis, in (-180, 180].
func SignedAngleAboutUp(a, b Vec3) float64 {
	ha, hb := a.Horizontal(), b.Horizontal()
	cross := ha.Cross(hb).Y
	return math.Atan2(cross, ha.Dot(hb)) * 180 / math.Pi
}

// AngleBetween returns the unsigned angle between a and b in degrees.
func AngleBetween(a, b Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na < 1e-9 || nb < 1e-9 {
		return 0
	}
	c := a.Dot(b) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// ClosestPointOnSegment returns the point on segment ab nearest p.
func ClosestPointOnSegment(p, a, b Vec3) Vec3 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den < 1e-12 {
		return a
	}
	t := p.Sub(a).Dot(ab) / den
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Scale(t))
}

// Unwrap removes 360° jumps from a sequence of angles in degrees so the
// result is continuous. NaN entries are passed through and skipped.
func Unwrap(deg []float64) []float64 {
	out := make([]float64, len(deg))
	last, lastOut := math.NaN(), 0.0
	for i, d := range deg {
		if math.IsNaN(d) {
			out[i] = d
			continue
		}
		if math.IsNaN(last) {
			out[i] = d
		} else {
			out[i] = lastOut + WrapDegrees(d-last)
		}
		last, lastOut = d, out[i]
	}
	return out
}

// WrapDegrees maps an angle into [-180, 180).
func WrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}
