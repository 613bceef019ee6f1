// Package reward provides reward functions evaluated on each observation.
//
// A reward function receives the observation column names together with
// the values so column positions can be resolved once and cached. A
// function reports ok == false when the reward is undefined, which the
// environment treats as a failure.
package reward

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/gridgym/internal/dynamo"
)

type Func func(cols []string, obs []float64) (value float64, ok bool)

// Constant returns v on every step.
func Constant(v float64) Func {
	return func([]string, []float64) (float64, bool) { return v, true }
}

// Tracking penalises deviation of observed columns from fixed references.
type Tracking struct {
	// References maps column name to its set point.
	References map[string]float64
	// Limits maps column name to a hard bound on its magnitude. Exceeding
	// any limit yields -Inf.
	Limits map[string]float64

	names    []string
	refs     []float64
	refIdx   []int
	limNames []string
	limits   []float64
	limIdx   []int
	cols     []string
}

func NewTracking(refs, limits map[string]float64) *Tracking {
	t := &Tracking{References: refs, Limits: limits}
	t.names = sortedKeys(refs)
	t.refs = make([]float64, len(t.names))
	for i, n := range t.names {
		t.refs[i] = refs[n]
	}
	t.limNames = sortedKeys(limits)
	t.limits = make([]float64, len(t.limNames))
	for i, n := range t.limNames {
		t.limits[i] = limits[n]
	}
	return t
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indexOf(cols []string, names []string) ([]int, error) {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := pos[n]
		if !ok {
			return nil, fmt.Errorf("%w: reward column %q", dynamo.ErrUnknownVariable, n)
		}
		idx[i] = j
	}
	return idx, nil
}

// resolve caches column positions. The cache is rebuilt only when a
// different column slice is passed.
func (t *Tracking) resolve(cols []string) error {
	if t.refIdx != nil && sameSlice(t.cols, cols) {
		return nil
	}
	refIdx, err := indexOf(cols, t.names)
	if err != nil {
		return err
	}
	limIdx, err := indexOf(cols, t.limNames)
	if err != nil {
		return err
	}
	t.refIdx, t.limIdx, t.cols = refIdx, limIdx, cols
	return nil
}

func sameSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// Reward is -mean((obs-ref)^2) over the referenced columns.
func (t *Tracking) Reward(cols []string, obs []float64) (float64, bool) {
	if err := t.resolve(cols); err != nil {
		return 0, false
	}
	for i, j := range t.limIdx {
		if j >= len(obs) {
			return 0, false
		}
		if math.Abs(obs[j]) > t.limits[i] {
			return math.Inf(-1), true
		}
	}
	if len(t.refIdx) == 0 {
		return 0, true
	}
	var sse float64
	for i, j := range t.refIdx {
		if j >= len(obs) {
			return 0, false
		}
		d := obs[j] - t.refs[i]
		sse += d * d
	}
	return -sse / float64(len(t.refIdx)), true
}

func (t *Tracking) Func() Func { return t.Reward }
