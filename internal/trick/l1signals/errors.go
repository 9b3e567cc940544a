package l1signals

import "fmt"

// InsufficientConfidenceError reports a signal the phase segmenter depends
// on that is invalid over too much of the frame range.
type InsufficientConfidenceError struct {
	Signal            string `json:"signal"`
	InvalidFrames     int    `json:"invalidFrames"`
	TotalFrames       int    `json:"totalFrames"`
	FirstInvalidFrame int    `json:"firstInvalidFrame"`
}

func (e *InsufficientConfidenceError) Error() string {
	return fmt.Sprintf("signal %s: %d of %d frames below joint confidence cutoff (first invalid frame %d)",
		e.Signal, e.InvalidFrames, e.TotalFrames, e.FirstInvalidFrame)
}
