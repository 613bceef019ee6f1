package metrics

import (
	"math"
)

// Stability is the fraction of steps on which every watched column stays
// within the threshold in magnitude. With no columns given every
// observation column is watched.
type Stability struct {
	name       string
	threshold  float64
	columns    []string
	idx        []int
	violations int
	samples    int
}

func NewStability(threshold float64, columns ...string) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
		columns:   columns,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Reset(cols []string) {
	s.violations = 0
	s.samples = 0
	s.idx = s.idx[:0]
	if len(s.columns) == 0 {
		for i := range cols {
			s.idx = append(s.idx, i)
		}
		return
	}
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	for _, c := range s.columns {
		if i, ok := pos[c]; ok {
			s.idx = append(s.idx, i)
		}
	}
}

func (s *Stability) Observe(_, obs []float64, _ float64) {
	s.samples++
	for _, i := range s.idx {
		if i >= len(obs) {
			continue
		}
		if v := obs[i]; math.IsNaN(v) || math.Abs(v) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}
