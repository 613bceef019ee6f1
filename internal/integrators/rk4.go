package integrators

import (
	"math"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// DefaultRK4Substeps is used when no fixed step is configured.
const DefaultRK4Substeps = 10

// RK4 integrates with classic fourth order Runge-Kutta at a fixed step.
// It never rejects a step; non-finite results are reported as errors.
type RK4 struct {
	opts           Options
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4(opts Options) *RK4 {
	return &RK4{opts: opts}
}

func (r *RK4) Name() string { return "RK4" }

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) step(f dynamo.Derivative, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	r.ensureScratch(n)

	k1, err := f(t, x)
	if err != nil {
		return nil, err
	}
	if err := checkDims(k1, x); err != nil {
		return nil, err
	}
	copy(r.k1, k1)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	k2, err := f(t+dt*0.5, r.scratch)
	if err != nil {
		return nil, err
	}
	copy(r.k2, k2)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	k3, err := f(t+dt*0.5, r.scratch)
	if err != nil {
		return nil, err
	}
	copy(r.k3, k3)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	k4, err := f(t+dt, r.scratch)
	if err != nil {
		return nil, err
	}
	copy(r.k4, k4)

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result, nil
}

func (r *RK4) Solve(f dynamo.Derivative, _ Jacobian, t0, t1 float64, x0 dynamo.State) (dynamo.State, error) {
	span := t1 - t0
	if span <= 0 {
		return x0.Clone(), nil
	}

	steps := DefaultRK4Substeps
	if r.opts.InitialStep > 0 {
		steps = int(math.Ceil(span / r.opts.InitialStep))
	}
	dt := span / float64(steps)

	x := x0.Clone()
	for i := 0; i < steps; i++ {
		t := t0 + float64(i)*dt
		next, err := r.step(f, x, t, dt)
		if err != nil {
			return nil, err
		}
		if !next.IsValid() {
			return nil, &dynamo.SimulationError{Step: i, Time: t, State: x, Wrapped: dynamo.ErrInvalidState}
		}
		x = next
	}
	return x, nil
}
