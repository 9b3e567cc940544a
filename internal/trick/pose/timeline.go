package pose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Timeline is the full pose output for one video, as handed over by the
// pose/storage collaborator.
type Timeline struct {
	VideoID     string    `json:"videoId"`
	FPS         float64   `json:"fps"`
	DurationSec float64   `json:"durationSec"`
	Trick       TrickType `json:"trick"`
	Stance      Stance    `json:"stance"`
	Frames      []Frame   `json:"frames"`
}

// DecodeTimeline reads a JSON timeline and validates it.
func DecodeTimeline(r io.Reader) (*Timeline, error) {
	var tl Timeline
	dec := json.NewDecoder(r)
	if err := dec.Decode(&tl); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	if err := tl.Prepare(); err != nil {
		return nil, err
	}
	return &tl, nil
}

// Prepare fills defaulted fields of a timeline decoded as part of a larger
// document and validates it.
func (tl *Timeline) Prepare() error {
	if tl.Stance == "" {
		tl.Stance = Regular
	}
	return tl.Validate()
}

// Validate checks the invariants every analysis layer relies on: a
// positive frame rate, a known trick and stance, and strictly increasing
// contiguous frame numbers.
func (tl *Timeline) Validate() error {
	if tl.FPS <= 0 {
		return fmt.Errorf("timeline %q: fps must be positive, got %v", tl.VideoID, tl.FPS)
	}
	if _, err := ParseTrickType(string(tl.Trick)); err != nil {
		return fmt.Errorf("timeline %q: %w", tl.VideoID, err)
	}
	if _, err := ParseStance(string(tl.Stance)); err != nil {
		return fmt.Errorf("timeline %q: %w", tl.VideoID, err)
	}
	if len(tl.Frames) == 0 {
		return fmt.Errorf("timeline %q: no frames", tl.VideoID)
	}
	for i := 1; i < len(tl.Frames); i++ {
		prev, cur := tl.Frames[i-1].FrameNumber, tl.Frames[i].FrameNumber
		if cur != prev+1 {
			return fmt.Errorf("timeline %q: frame numbers not contiguous at index %d (%d after %d)",
				tl.VideoID, i, cur, prev)
		}
	}
	return nil
}

// Duration returns the timeline duration in seconds, preferring the
// collaborator-reported value.
func (tl *Timeline) Duration() float64 {
	if tl.DurationSec > 0 {
		return tl.DurationSec
	}
	return float64(len(tl.Frames)) / tl.FPS
}

// FirstFrame returns the frame number of the first frame.
func (tl *Timeline) FirstFrame() int {
	if len(tl.Frames) == 0 {
		return 0
	}
	return tl.Frames[0].FrameNumber
}

// Index converts a frame number to a slice index, or -1 when out of range.
func (tl *Timeline) Index(frameNumber int) int {
	i := frameNumber - tl.FirstFrame()
	if i < 0 || i >= len(tl.Frames) {
		return -1
	}
	return i
}

// Range returns the frames whose frame numbers lie in [start, end].
// The returned slice aliases the timeline's backing array.
func (tl *Timeline) Range(start, end int) ([]Frame, error) {
	if end < start {
		return nil, fmt.Errorf("invalid frame range [%d, %d]", start, end)
	}
	i, j := tl.Index(start), tl.Index(end)
	if i < 0 || j < 0 {
		return nil, fmt.Errorf("frame range [%d, %d] outside timeline [%d, %d]",
			start, end, tl.FirstFrame(), tl.FirstFrame()+len(tl.Frames)-1)
	}
	return tl.Frames[i : j+1], nil
}

// Fingerprint returns a stable hash of the timeline content. The storage
// collaborator compares fingerprints to decide whether cached derived
// artifacts are stale.
func (tl *Timeline) Fingerprint() (string, error) {
	// encoding/json sorts map keys, so the encoding is canonical.
	data, err := json.Marshal(tl)
	if err != nil {
		return "", fmt.Errorf("fingerprint timeline: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
