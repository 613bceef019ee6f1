package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Axpy returns s + a*other.
func (s State) Axpy(a float64, other State) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] + a*other[i]
	}
	return result
}

// Derivative evaluates dX/dt at a trial time and state.
type Derivative func(t float64, x State) (State, error)

// Interval is a closed simulation time slice [T0, T1].
type Interval struct {
	T0, T1 float64
}

func (iv Interval) Width() float64 { return iv.T1 - iv.T0 }

func (iv Interval) String() string {
	return fmt.Sprintf("[%.6g, %.6g]", iv.T0, iv.T1)
}
