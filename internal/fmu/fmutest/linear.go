// Package fmutest provides an in-memory linear model for tests of code
// that drives an fmu.Model.
package fmutest

import (
	"errors"
	"fmt"

	"github.com/san-kum/gridgym/internal/fmu"
)

// Linear implements dx/dt = A*x + B*u with named states, inputs and
// free parameters. Every method call is appended to Calls.
type Linear struct {
	A      [][]float64
	B      [][]float64
	X0     []float64
	States []string
	Inputs []string
	Params []string

	// EventIterations is the number of ProcessEvents calls that report
	// more events pending before settling.
	EventIterations int
	// DerivativeHook, when set, is consulted before every derivative
	// evaluation and may return an error or replace the derivative.
	DerivativeHook func(t float64, x []float64, dx []float64) ([]float64, error)

	Calls []string

	t       float64
	x       []float64
	u       []float64
	p       []float64
	pending int
}

// Decay returns a model of n independent first-order systems
// dx_i/dt = -rate*x_i + u_i observed directly.
func Decay(n int, rate float64) *Linear {
	l := &Linear{
		A:  make([][]float64, n),
		B:  make([][]float64, n),
		X0: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		l.A[i] = make([]float64, n)
		l.A[i][i] = -rate
		l.B[i] = make([]float64, n)
		l.B[i][i] = 1
		l.X0[i] = 1
		l.States = append(l.States, fmt.Sprintf("x%d", i))
		l.Inputs = append(l.Inputs, fmt.Sprintf("u%d", i))
	}
	return l
}

func (l *Linear) record(name string) { l.Calls = append(l.Calls, name) }

// ResetCalls clears the call log.
func (l *Linear) ResetCalls() { l.Calls = nil }

func (l *Linear) NumStates() int { return len(l.X0) }

func (l *Linear) Reset() error {
	l.record("Reset")
	l.x = append([]float64(nil), l.X0...)
	l.u = make([]float64, len(l.Inputs))
	l.p = make([]float64, len(l.Params))
	l.t = 0
	return nil
}

func (l *Linear) Setup(startTime float64) error {
	l.record("Setup")
	if l.x == nil {
		l.x = append([]float64(nil), l.X0...)
		l.u = make([]float64, len(l.Inputs))
		l.p = make([]float64, len(l.Params))
	}
	l.t = startTime
	l.pending = l.EventIterations
	return nil
}

func (l *Linear) EnterInitializationMode() error { l.record("EnterInitializationMode"); return nil }
func (l *Linear) ExitInitializationMode() error  { l.record("ExitInitializationMode"); return nil }
func (l *Linear) EnterEventMode() error          { l.record("EnterEventMode"); return nil }
func (l *Linear) EnterContinuousMode() error     { l.record("EnterContinuousMode"); return nil }

func (l *Linear) ProcessEvents() (bool, error) {
	l.record("ProcessEvents")
	if l.pending > 0 {
		l.pending--
		return true, nil
	}
	return false, nil
}

func (l *Linear) SetTime(t float64) error {
	l.record("SetTime")
	l.t = t
	return nil
}

func (l *Linear) State() ([]float64, error) {
	l.record("State")
	return append([]float64(nil), l.x...), nil
}

func (l *Linear) SetState(x []float64) error {
	l.record("SetState")
	if len(x) != len(l.x) {
		return errors.New("fmutest: state length mismatch")
	}
	copy(l.x, x)
	return nil
}

func (l *Linear) Derivatives() ([]float64, error) {
	l.record("Derivatives")
	n := len(l.x)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx[i] += l.A[i][j] * l.x[j]
		}
		for j := range l.u {
			if j < len(l.B[i]) {
				dx[i] += l.B[i][j] * l.u[j]
			}
		}
	}
	if l.DerivativeHook != nil {
		return l.DerivativeHook(l.t, append([]float64(nil), l.x...), dx)
	}
	return dx, nil
}

func (l *Linear) DirectionalDerivative(seed []float64) ([]float64, error) {
	l.record("DirectionalDerivative")
	n := len(l.x)
	if len(seed) != n {
		return nil, errors.New("fmutest: seed length mismatch")
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i] += l.A[i][j] * seed[j]
		}
	}
	return out, nil
}

func (l *Linear) Lookup(name string) (fmu.Ref, error) {
	l.record("Lookup")
	for i, s := range l.States {
		if s == name {
			return fmu.Ref(i), nil
		}
	}
	for i, s := range l.Inputs {
		if s == name {
			return fmu.Ref(len(l.States) + i), nil
		}
	}
	for i, s := range l.Params {
		if s == name {
			return fmu.Ref(len(l.States) + len(l.Inputs) + i), nil
		}
	}
	return 0, fmt.Errorf("fmutest: no variable %q", name)
}

func (l *Linear) slot(ref fmu.Ref) (*float64, error) {
	i := int(ref)
	switch {
	case i < len(l.x):
		return &l.x[i], nil
	case i < len(l.x)+len(l.u):
		return &l.u[i-len(l.x)], nil
	case i < len(l.x)+len(l.u)+len(l.p):
		return &l.p[i-len(l.x)-len(l.u)], nil
	}
	return nil, fmt.Errorf("fmutest: bad reference %d", ref)
}

func (l *Linear) SetReal(refs []fmu.Ref, values []float64) error {
	l.record("SetReal")
	for i, ref := range refs {
		p, err := l.slot(ref)
		if err != nil {
			return err
		}
		*p = values[i]
	}
	return nil
}

func (l *Linear) GetReal(refs []fmu.Ref) ([]float64, error) {
	l.record("GetReal")
	out := make([]float64, len(refs))
	for i, ref := range refs {
		p, err := l.slot(ref)
		if err != nil {
			return nil, err
		}
		out[i] = *p
	}
	return out, nil
}

// Time returns the model's current time.
func (l *Linear) Time() float64 { return l.t }

// Param returns the current value of a named parameter.
func (l *Linear) Param(name string) float64 {
	for i, s := range l.Params {
		if s == name {
			return l.p[i]
		}
	}
	return 0
}

// Count returns how many times the named method was called.
func (l *Linear) Count(method string) int {
	n := 0
	for _, c := range l.Calls {
		if c == method {
			n++
		}
	}
	return n
}
