package l6archetypes

import "github.com/banshee-data/trick.report/internal/trick/pose"

// TipSource looks up coaching text for an archetype. Implementations are
// pure data lookups.
type TipSource interface {
	Tip(trick pose.TrickType, phase, archetype string) (string, bool)
}

// TipKey identifies a tip. Empty Trick or Phase match any value.
type TipKey struct {
	Trick     pose.TrickType
	Phase     string
	Archetype string
}

// StaticTips is a TipSource backed by a map. Lookup goes from the most
// specific key to the archetype alone, preferring a trick match over a
// phase match.
type StaticTips map[TipKey]string

func (s StaticTips) Tip(trick pose.TrickType, phase, archetype string) (string, bool) {
	for _, k := range []TipKey{
		{trick, phase, archetype},
		{trick, "", archetype},
		{"", phase, archetype},
		{"", "", archetype},
	} {
		if tip, ok := s[k]; ok {
			return tip, true
		}
	}
	return "", false
}

var builtinTips = []struct {
	key TipKey
	tip string
}{
	{TipKey{Archetype: PrematureRotation}, "Hold the wind-up until the lip; let the rotation start from the pop, not before it."},
	{TipKey{Phase: "snap", Archetype: PrematureRotation}, "Keep the shoulders loaded a beat longer so the snap lands on the lip."},
	{TipKey{Trick: pose.Backside, Archetype: PrematureRotation}, "Stay on the heel edge through the lip before opening the shoulders."},
	{TipKey{Archetype: LateRotation}, "Start the rotation at takeoff; the spin should already be going as you leave the lip."},
	{TipKey{Archetype: UnderRotation}, "Commit the head and shoulders further through the spin and spot the landing earlier."},
	{TipKey{Trick: pose.Frontside, Archetype: UnderRotation}, "Look over the lead shoulder and keep turning toward the nose."},
	{TipKey{Archetype: OverRotation}, "Open up and check the rotation with the arms once you spot the landing."},
	{TipKey{Archetype: AsymmetricLanding}, "Land with both feet together and weight centred over the board."},
	{TipKey{Archetype: WeakPop}, "Load the tail and extend the legs explosively at the lip."},
	{TipKey{Archetype: StiffLanding}, "Bend the knees on impact to absorb the landing."},
	{TipKey{Archetype: ArmFlail}, "Keep the arms quiet and close to the body in the air."},
	{TipKey{Archetype: UpperLowerDisconnect}, "Let the hips follow the shoulders so the whole body turns together."},
	{TipKey{Trick: pose.Frontside, Archetype: UpperLowerDisconnect}, "Wind up against the heel edge with the arms, then pull the hips through."},
}

// DefaultTips returns the built-in tip table.
func DefaultTips() StaticTips {
	out := make(StaticTips, len(builtinTips))
	for _, t := range builtinTips {
		out[t.key] = t.tip
	}
	return out
}
