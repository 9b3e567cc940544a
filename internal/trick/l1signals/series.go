package l1signals

import (
	"encoding/json"
	"math"

	"github.com/banshee-data/trick.report/internal/trick/pose"
)

// Series is a frame-indexed scalar signal. Index i corresponds to the
// i-th frame of the analysed range. Invalid samples hold NaN internally
// and encode as JSON null.
type Series struct {
	Values []float64
	Valid  []bool
}

func newSeries(n int) Series {
	s := Series{Values: make([]float64, n), Valid: make([]bool, n)}
	for i := range s.Values {
		s.Values[i] = math.NaN()
	}
	return s
}

func (s *Series) set(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	s.Values[i] = v
	s.Valid[i] = true
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Values) }

// At returns the sample at i and whether it is valid.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.Values) || !s.Valid[i] {
		return 0, false
	}
	return s.Values[i], true
}

// invalidCount returns the number of false entries and the index of the
// first one (-1 when all are true).
func invalidCount(valid []bool) (int, int) {
	n, first := 0, -1
	for i, ok := range valid {
		if !ok {
			if first == -1 {
				first = i
			}
			n++
		}
	}
	return n, first
}

// ValidValues returns the valid samples in order.
func (s Series) ValidValues() []float64 {
	out := make([]float64, 0, len(s.Values))
	for i, v := range s.Values {
		if s.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

type seriesJSON struct {
	Values []*float64 `json:"values"`
}

func (s Series) MarshalJSON() ([]byte, error) {
	out := seriesJSON{Values: make([]*float64, len(s.Values))}
	for i := range s.Values {
		if s.Valid[i] {
			v := s.Values[i]
			out.Values[i] = &v
		}
	}
	return json.Marshal(out)
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var in seriesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = newSeries(len(in.Values))
	for i, v := range in.Values {
		if v != nil {
			s.set(i, *v)
		}
	}
	return nil
}

// VectorSeries is a frame-indexed direction signal; invalid samples encode
// as JSON null.
type VectorSeries struct {
	Values []pose.Vec3
	Valid  []bool
}

func newVectorSeries(n int) VectorSeries {
	return VectorSeries{Values: make([]pose.Vec3, n), Valid: make([]bool, n)}
}

// At returns the sample at i and whether it is valid.
func (s VectorSeries) At(i int) (pose.Vec3, bool) {
	if i < 0 || i >= len(s.Values) || !s.Valid[i] {
		return pose.Vec3{}, false
	}
	return s.Values[i], true
}

func (s VectorSeries) MarshalJSON() ([]byte, error) {
	out := make([]*pose.Vec3, len(s.Values))
	for i := range s.Values {
		if s.Valid[i] {
			v := s.Values[i]
			out[i] = &v
		}
	}
	return json.Marshal(struct {
		Values []*pose.Vec3 `json:"values"`
	}{out})
}

func (s *VectorSeries) UnmarshalJSON(data []byte) error {
	var in struct {
		Values []*pose.Vec3 `json:"values"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = newVectorSeries(len(in.Values))
	for i, v := range in.Values {
		if v != nil {
			s.Values[i] = *v
			s.Valid[i] = true
		}
	}
	return nil
}
