package pose

import (
	"fmt"
)

// JointName identifies a skeleton joint. Names follow the SMPL skeleton
// emitted by the pose collaborator.
type JointName string

const (
	Pelvis        JointName = "pelvis"
	LeftHip       JointName = "left_hip"
	RightHip      JointName = "right_hip"
	Spine1        JointName = "spine1"
	LeftKnee      JointName = "left_knee"
	RightKnee     JointName = "right_knee"
	Spine2        JointName = "spine2"
	LeftAnkle     JointName = "left_ankle"
	RightAnkle    JointName = "right_ankle"
	Spine3        JointName = "spine3"
	LeftFoot      JointName = "left_foot"
	RightFoot     JointName = "right_foot"
	Neck          JointName = "neck"
	LeftCollar    JointName = "left_collar"
	RightCollar   JointName = "right_collar"
	Head          JointName = "head"
	LeftShoulder  JointName = "left_shoulder"
	RightShoulder JointName = "right_shoulder"
	LeftElbow     JointName = "left_elbow"
	RightElbow    JointName = "right_elbow"
	LeftWrist     JointName = "left_wrist"
	RightWrist    JointName = "right_wrist"
	LeftHand      JointName = "left_hand"
	RightHand     JointName = "right_hand"
)

// AllJoints lists the SMPL joints in skeleton order.
func AllJoints() []JointName {
	return []JointName{
		Pelvis, LeftHip, RightHip, Spine1, LeftKnee, RightKnee,
		Spine2, LeftAnkle, RightAnkle, Spine3, LeftFoot, RightFoot,
		Neck, LeftCollar, RightCollar, Head, LeftShoulder, RightShoulder,
		LeftElbow, RightElbow, LeftWrist, RightWrist, LeftHand, RightHand,
	}
}

// Joint is a single joint observation.
type Joint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// Vec returns the joint position.
func (j Joint) Vec() Vec3 { return Vec3{X: j.X, Y: j.Y, Z: j.Z} }

// Frame is one video frame of pose output.
type Frame struct {
	FrameNumber int                 `json:"frameNumber"`
	TimestampMs float64             `json:"timestampMs"`
	Joints      map[JointName]Joint `json:"joints"`
}

// Position returns the position of a joint regardless of its confidence.
func (f Frame) Position(name JointName) (Vec3, bool) {
	j, ok := f.Joints[name]
	if !ok {
		return Vec3{}, false
	}
	return j.Vec(), true
}

// ConfidentPosition returns the joint position only if its confidence is at
// least minConfidence.
func (f Frame) ConfidentPosition(name JointName, minConfidence float64) (Vec3, bool) {
	j, ok := f.Joints[name]
	if !ok || j.Confidence < minConfidence {
		return Vec3{}, false
	}
	return j.Vec(), true
}

// Confident reports whether every named joint is present with confidence
// at least minConfidence.
func (f Frame) Confident(minConfidence float64, names ...JointName) bool {
	for _, n := range names {
		if _, ok := f.ConfidentPosition(n, minConfidence); !ok {
			return false
		}
	}
	return true
}

// Midpoint returns the midpoint of two confident joints.
func (f Frame) Midpoint(a, b JointName, minConfidence float64) (Vec3, bool) {
	pa, okA := f.ConfidentPosition(a, minConfidence)
	pb, okB := f.ConfidentPosition(b, minConfidence)
	if !okA || !okB {
		return Vec3{}, false
	}
	return pa.Midpoint(pb), true
}

// TrickType tags the trick attempted in a video.
type TrickType string

const (
	StraightAir TrickType = "straight_air"
	Frontside   TrickType = "frontside"
	Backside    TrickType = "backside"
)

// ParseTrickType validates a trick type string.
func ParseTrickType(s string) (TrickType, error) {
	switch t := TrickType(s); t {
	case StraightAir, Frontside, Backside:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trick type %q", s)
	}
}

// Rotational reports whether the trick involves a wind-up and snap.
func (t TrickType) Rotational() bool {
	return t == Frontside || t == Backside
}

// Stance is the rider's foot orientation on the board.
type Stance string

const (
	Regular Stance = "regular" // left foot forward
	Goofy   Stance = "goofy"   // right foot forward
)

// ParseStance validates a stance string. An empty string means regular.
func ParseStance(s string) (Stance, error) {
	switch st := Stance(s); st {
	case "":
		return Regular, nil
	case Regular, Goofy:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stance %q", s)
	}
}

// LeadAnkle returns the ankle nearest the nose of the board.
func (s Stance) LeadAnkle() JointName {
	if s == Goofy {
		return RightAnkle
	}
	return LeftAnkle
}

// TrailAnkle returns the ankle nearest the tail of the board.
func (s Stance) TrailAnkle() JointName {
	if s == Goofy {
		return LeftAnkle
	}
	return RightAnkle
}
