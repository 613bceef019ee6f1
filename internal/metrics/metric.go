// Package metrics accumulates per-episode statistics from the step stream
// of an environment.
package metrics

import "math"

// Metric observes every step of an episode. Reset is called with the
// observation column names whenever a new episode starts.
type Metric interface {
	Name() string
	Reset(cols []string)
	Observe(action, obs []float64, reward float64)
	Value() float64
}

// Return is the undiscounted sum of finite rewards. Steps with a
// non-finite reward are counted in Failures instead.
type Return struct {
	name     string
	sum      float64
	steps    int
	failures int
}

func NewReturn() *Return {
	return &Return{name: "return"}
}

func (r *Return) Name() string { return r.name }

func (r *Return) Reset([]string) {
	r.sum = 0
	r.steps = 0
	r.failures = 0
}

func (r *Return) Observe(_, _ []float64, reward float64) {
	r.steps++
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		r.failures++
		return
	}
	r.sum += reward
}

func (r *Return) Value() float64 { return r.sum }

func (r *Return) Steps() int { return r.steps }

func (r *Return) Failures() int { return r.failures }

// Snapshot returns the current value of every metric by name.
func Snapshot(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
