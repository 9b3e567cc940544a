package l2phases

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/trick.report/internal/monitoring"
	"github.com/banshee-data/trick.report/internal/trick/dsp"
	"github.com/banshee-data/trick.report/internal/trick/l1signals"
)

// edgeChange locates the final edge roll before takeoff, as signal indices.
type edgeChange struct {
	found bool
	start int // first index inside the change band (setupCarve ends here)
	cross int // zero crossing of the smoothed edge angle
}

type segmenter struct {
	sig *l1signals.Signals
	cfg Config
}

// Segment partitions the signals into phases. The returned PhaseMap is
// never nil unless the trick type is unknown; when any phase fails the
// map carries the detected phases plus Failures, and the error joins them.
func Segment(sig *l1signals.Signals, cfg Config) (*PhaseMap, error) {
	branch, err := branchFor(cfg.Trick)
	if err != nil {
		return nil, err
	}
	s := &segmenter{sig: sig, cfg: cfg}
	m := &PhaseMap{Trick: cfg.Trick}

	t, perr := s.detectTakeoff()
	if perr != nil {
		m.fail(perr)
		monitoring.Diagf("segment: %v", perr)
		return m, m.Err()
	}
	m.Takeoff = s.takeoffPhase(t)

	land, airEnd, perr := s.detectLanding(t)
	m.Air = s.airPhase(t, airEnd)
	if perr != nil {
		m.fail(perr)
	} else {
		m.Landing = s.landingPhase(land)
	}

	edge, setup, perr := s.detectSetupCarve(t)
	if perr != nil {
		m.fail(perr)
	}
	m.SetupCarve = setup

	windUp, snap, perr := branch.windUpAndSnap(s, edge, t)
	if perr != nil {
		m.fail(perr)
	}
	m.WindUp, m.Snap = windUp, snap

	monitoring.Diagf("segment %s: phases %v, %d failures", cfg.Trick, m.Present(), len(m.Failures))
	return m, m.Err()
}

// detectTakeoff finds the upward crossing of ankleToHipRatio through 1.0
// that stays airborne for at least MinAirFrames. Several sustained
// crossings are resolved only when the longest airborne run dominates. A
// lone crossing is the takeoff even when its run is shorter.
func (s *segmenter) detectTakeoff() (int, *PhaseDetectionError) {
	ratio := s.sig.AnkleToHipRatio
	type candidate struct{ idx, run int }
	var crossings []int
	var cands []candidate
	for i := 1; i < ratio.Len(); i++ {
		cur, ok := ratio.At(i)
		if !ok || cur < 1 {
			continue
		}
		if prev, ok := s.prevValidRatio(i); !ok || prev >= 1 {
			continue
		}
		crossings = append(crossings, i)
		run := s.airborneRun(i)
		if run >= s.cfg.MinAirFrames {
			cands = append(cands, candidate{i, run})
		}
	}

	switch {
	case len(cands) == 0 && len(crossings) == 1:
		monitoring.Diagf("takeoff: lone crossing at frame %d airborne for %d frames",
			s.sig.Frame(crossings[0]), s.airborneRun(crossings[0]))
		return crossings[0], nil
	case len(cands) == 0:
		frames := make([]int, len(crossings))
		for i, idx := range crossings {
			frames[i] = s.sig.Frame(idx)
		}
		reason := "ankleToHipRatio never crosses 1.0"
		if len(crossings) > 0 {
			reason = fmt.Sprintf("no ankleToHipRatio crossing above 1.0 lasts %d or more frames", s.cfg.MinAirFrames)
		}
		return 0, &PhaseDetectionError{Phase: Takeoff, Reason: reason, CandidateFrames: frames}
	case len(cands) == 1:
		return cands[0].idx, nil
	}

	frames := make([]int, len(cands))
	for i, c := range cands {
		frames[i] = s.sig.Frame(c.idx)
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].run > cands[b].run })
	if float64(cands[0].run) >= s.cfg.TakeoffDominanceRatio*float64(cands[1].run) {
		monitoring.Diagf("takeoff: frame %d dominates %d candidates (run %d vs %d)",
			s.sig.Frame(cands[0].idx), len(cands), cands[0].run, cands[1].run)
		return cands[0].idx, nil
	}
	return 0, &PhaseDetectionError{
		Phase:           Takeoff,
		Reason:          "ankleToHipRatio crosses 1.0 several times with no dominant airborne run",
		CandidateFrames: frames,
	}
}

// prevValidRatio returns the latest valid ratio sample before i, looking
// back over at most MaxCrossingGap invalid samples.
func (s *segmenter) prevValidRatio(i int) (float64, bool) {
	for j := i - 1; j >= 0 && i-1-j <= s.cfg.MaxCrossingGap; j-- {
		if v, ok := s.sig.AnkleToHipRatio.At(j); ok {
			return v, true
		}
	}
	return 0, false
}

// airborneRun is the span from i to the last sample with ratio >= 1
// before the ratio drops below 1. Gaps of up to MaxCrossingGap invalid
// samples do not end the run.
func (s *segmenter) airborneRun(i int) int {
	last, gap := i-1, 0
	for k := i; k < s.sig.FrameCount; k++ {
		v, ok := s.sig.AnkleToHipRatio.At(k)
		if !ok {
			gap++
			if gap > s.cfg.MaxCrossingGap {
				break
			}
			continue
		}
		if v < 1 {
			break
		}
		last, gap = k, 0
	}
	return last - i + 1
}

func (s *segmenter) takeoffPhase(t int) *PhaseData {
	frame := s.sig.Frame(t)
	p := newPhase(frame, frame)
	if v, ok := s.sig.HipVelocity.At(t); ok {
		p.Metrics["hipVelocity"] = v
	}
	if v, ok := s.sig.ChestRotation.At(t); ok {
		p.Metrics["chestRotation"] = v
	}
	if v, ok := s.sig.AnkleToHipRatio.At(t); ok {
		p.Metrics["ankleToHipRatio"] = v
	}
	return p
}

// detectLanding returns the landing index: the first downward crossing of
// ankleToHipRatio after takeoff that coincides with an acceleration spike.
// airEnd is the last airborne index either way.
func (s *segmenter) detectLanding(t int) (land, airEnd int, perr *PhaseDetectionError) {
	ratio := s.sig.AnkleToHipRatio
	airEnd = t + s.airborneRun(t) - 1
	threshold := s.cfg.LandingImpactFactor * s.medianAbsAcceleration()

	var crossings []int
	for k := t + 1; k < ratio.Len(); k++ {
		cur, ok := ratio.At(k)
		if !ok || cur >= 1 {
			continue
		}
		if prev, ok := s.prevValidRatio(k); !ok || prev < 1 {
			continue
		}
		crossings = append(crossings, s.sig.Frame(k))
		if _, ok := s.impactNear(k, threshold); ok {
			return k, k - 1, nil
		}
	}
	reason := "ankleToHipRatio never drops back below 1.0 after takeoff"
	if len(crossings) > 0 {
		reason = "no acceleration spike at any return below ankleToHipRatio 1.0"
	}
	return 0, airEnd, &PhaseDetectionError{Phase: Landing, Reason: reason, CandidateFrames: crossings}
}

func (s *segmenter) medianAbsAcceleration() float64 {
	var abs []float64
	for _, v := range s.sig.HipAcceleration.ValidValues() {
		abs = append(abs, math.Abs(v))
	}
	if len(abs) == 0 {
		return 0
	}
	return dsp.Median(abs)
}

// impactNear looks for a local maximum of |hip acceleration| within
// LandingImpactWindow frames of k that reaches threshold.
func (s *segmenter) impactNear(k int, threshold float64) (float64, bool) {
	acc := s.sig.HipAcceleration
	absAt := func(j int) (float64, bool) {
		v, ok := acc.At(j)
		return math.Abs(v), ok
	}
	best, found := 0.0, false
	for j := k - s.cfg.LandingImpactWindow; j <= k+s.cfg.LandingImpactWindow; j++ {
		a, ok := absAt(j)
		if !ok || a == 0 || a < threshold {
			continue
		}
		if l, ok := absAt(j - 1); ok && l > a {
			continue
		}
		if r, ok := absAt(j + 1); ok && r > a {
			continue
		}
		if a > best {
			best, found = a, true
		}
	}
	return best, found
}

func (s *segmenter) airPhase(t, airEnd int) *PhaseData {
	if airEnd <= t {
		return nil
	}
	p := newPhase(s.sig.Frame(t+1), s.sig.Frame(airEnd))
	p.Metrics["airtimeSec"] = float64(airEnd-t+1) / s.sig.FPS

	maxHip := math.Inf(-1)
	for k := t + 1; k <= airEnd; k++ {
		if v, ok := s.sig.HipHeight.At(k); ok {
			maxHip = math.Max(maxHip, v)
		}
	}
	if !math.IsInf(maxHip, -1) {
		p.Metrics["maxHipHeight"] = maxHip
	}
	r0, ok0 := s.sig.ChestRotation.At(t)
	r1, ok1 := s.sig.ChestRotation.At(airEnd)
	if ok0 && ok1 {
		p.Metrics["totalRotation"] = r1 - r0
	}

	start, end := s.longestRun(t+1, airEnd, func(k int) bool {
		v, ok := s.sig.WristToBoard.At(k)
		return ok && v <= s.cfg.GrabProximity
	})
	grabFrames := 0
	if end-start+1 >= s.cfg.MinGrabFrames && start >= 0 {
		p.addSub(SubGrab, s.sig.Frame(start), s.sig.Frame(end))
		grabFrames = end - start + 1
	}
	p.Metrics["grabFrames"] = float64(grabFrames)
	return p
}

// longestRun returns the longest stretch of indices in [from, to] where
// pred holds, or (-1, -2) when there is none.
func (s *segmenter) longestRun(from, to int, pred func(int) bool) (int, int) {
	bestStart, bestEnd := -1, -2
	runStart := -1
	for k := from; k <= to+1; k++ {
		if k <= to && pred(k) {
			if runStart == -1 {
				runStart = k
			}
			continue
		}
		if runStart != -1 && k-1-runStart > bestEnd-bestStart {
			bestStart, bestEnd = runStart, k-1
		}
		runStart = -1
	}
	return bestStart, bestEnd
}

// landingPhase runs from the landing frame until form variance has stayed
// below the stability threshold for RideAwayStableFrames frames.
func (s *segmenter) landingPhase(land int) *PhaseData {
	last := s.sig.FrameCount - 1
	end, stabilized := last, false
	count := 0
	for k := land; k <= last; k++ {
		v, ok := s.sig.FormVariance.At(k)
		if ok && v < s.cfg.RideAwayThreshold {
			count++
			if count >= s.cfg.RideAwayStableFrames {
				end, stabilized = k, true
				break
			}
			continue
		}
		count = 0
	}

	p := newPhase(s.sig.Frame(land), s.sig.Frame(end))
	p.addSub(SubImpact, s.sig.Frame(land), s.sig.Frame(land))
	if end > land {
		p.addSub(SubRideAway, s.sig.Frame(land+1), s.sig.Frame(end))
	}
	threshold := s.cfg.LandingImpactFactor * s.medianAbsAcceleration()
	if impact, ok := s.impactNear(land, threshold); ok {
		p.Metrics["impactAcceleration"] = impact
	}
	if mean, ok := s.meanOver(s.sig.BodyStackedness, land, end); ok {
		p.Metrics["stackedness"] = mean
	}
	p.Metrics["rideAwaySec"] = float64(end-land) / s.sig.FPS
	p.Metrics["stabilized"] = boolMetric(stabilized)
	if !stabilized {
		monitoring.Diagf("landing: form variance never stabilised after frame %d", s.sig.Frame(land))
	}
	return p
}

// detectSetupCarve finds the last edge transition before takeoff. The
// carve runs from the previous transition (or the first frame) to the
// start of the edge change around that transition.
func (s *segmenter) detectSetupCarve(t int) (edgeChange, *PhaseData, *PhaseDetectionError) {
	var before []l1signals.EdgeTransition
	var all []int
	for _, tr := range s.sig.EdgeTransitions {
		all = append(all, tr.Frame)
		if tr.Frame < s.sig.Frame(t) {
			before = append(before, tr)
		}
	}
	if len(before) == 0 {
		return edgeChange{}, nil, &PhaseDetectionError{
			Phase:           SetupCarve,
			Reason:          "no heel/toe edge transition before takeoff",
			CandidateFrames: all,
		}
	}
	last := before[len(before)-1]
	start := 0
	if len(before) > 1 {
		start = s.sig.Index(before[len(before)-2].Frame)
	}

	filled, ok := dsp.FillGaps(s.sig.EdgeAngle.Values, s.sig.EdgeAngle.Valid)
	if !ok {
		return edgeChange{}, nil, &PhaseDetectionError{Phase: SetupCarve, Reason: "no valid edge angle samples"}
	}
	smoothed := dsp.Smooth(filled, s.cfg.EdgeSmoothingWindow, 2)

	cross := s.smoothedCrossing(smoothed, s.sig.Index(last.Frame), start, t, last.FromEdge)
	e0 := cross
	for e0-1 > start && math.Abs(smoothed[e0-1]) < s.cfg.EdgeChangeBandDeg {
		e0--
	}
	if e0 > t-1 {
		e0 = t - 1
	}
	if e0 < start {
		e0 = start
	}

	p := newPhase(s.sig.Frame(start), s.sig.Frame(e0))
	p.addSub(SubEdgeChange, s.sig.Frame(e0), s.sig.Frame(cross))
	p.Metrics["durationSec"] = float64(e0-start+1) / s.sig.FPS
	if mean, ok := s.meanOver(s.sig.EdgeAngle, start, e0); ok {
		p.Metrics["meanEdgeAngle"] = mean
	}
	p.Metrics["transitionSmoothness"] = last.Smoothness
	p.Metrics["edgeChangeStartFrame"] = float64(s.sig.Frame(e0))
	p.Metrics["edgeChangeEndFrame"] = float64(s.sig.Frame(cross))
	monitoring.Diagf("setupCarve: transition at frame %d, edge change [%d, %d]",
		last.Frame, s.sig.Frame(e0), s.sig.Frame(cross))
	return edgeChange{found: true, start: e0, cross: cross}, p, nil
}

// smoothedCrossing returns the zero crossing of the smoothed edge angle,
// in the direction of the transition, nearest the raw transition index.
func (s *segmenter) smoothedCrossing(smoothed []float64, raw, lo, t int, from l1signals.Edge) int {
	best, bestDist := raw, math.MaxInt
	for k := lo + 1; k < t && k < len(smoothed); k++ {
		a, b := smoothed[k-1], smoothed[k]
		crossed := (from == l1signals.EdgeToe && a > 0 && b <= 0) ||
			(from == l1signals.EdgeHeel && a < 0 && b >= 0)
		if !crossed {
			continue
		}
		d := k - raw
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

// windUpFrom grows the wind-up from start while the chest keeps rotating
// away from its starting angle. It ends at the maximum rotation magnitude
// once rotation has fallen back by WindUpDeclineDeg, leaving at least one
// frame for the snap before takeoff.
func (s *segmenter) windUpFrom(start, t int) (windUp, snap *PhaseData, perr *PhaseDetectionError) {
	limit := t - 2
	rot := s.sig.ChestRotation
	for start <= limit {
		if _, ok := rot.At(start); ok {
			break
		}
		start++
	}
	if start > limit {
		return nil, nil, &PhaseDetectionError{
			Phase:           WindUp,
			Reason:          "no valid chest rotation between wind-up start and takeoff",
			CandidateFrames: []int{s.sig.Frame(t)},
		}
	}

	rot0, _ := rot.At(start)
	best, end := 0.0, start
	for k := start; k <= limit; k++ {
		v, ok := rot.At(k)
		if !ok {
			continue
		}
		mag := math.Abs(v - rot0)
		if mag > best {
			best, end = mag, k
		} else if mag < best-s.cfg.WindUpDeclineDeg {
			break
		}
	}

	windUp = newPhase(s.sig.Frame(start), s.sig.Frame(end))
	windUp.Metrics["windUpMagnitude"] = best
	windUp.Metrics["durationSec"] = float64(end-start+1) / s.sig.FPS

	snap = newPhase(s.sig.Frame(end+1), s.sig.Frame(t-1))
	rEnd, ok1 := rot.At(end)
	rTakeoff, ok2 := rot.At(t)
	if ok1 && ok2 {
		speed := math.Abs(rTakeoff-rEnd) / (float64(t-end) / s.sig.FPS)
		snap.Metrics["snapSpeed"] = speed
		snap.Metrics["inSweetspot"] = boolMetric(speed >= s.cfg.SnapSweetspotMin && speed <= s.cfg.SnapSweetspotMax)
	}
	snap.Metrics["durationSec"] = float64(t-end-1) / s.sig.FPS
	return windUp, snap, nil
}

func (s *segmenter) meanOver(series l1signals.Series, from, to int) (float64, bool) {
	sum, n := 0.0, 0
	for k := from; k <= to; k++ {
		if v, ok := series.At(k); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
