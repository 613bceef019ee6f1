package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/gridgym/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// ros2Gamma gives the L-stable two stage ROS2 method of Verwer et al.
var ros2Gamma = 1.0 + 1.0/math.Sqrt2

// Rosenbrock is a linearly implicit second order method for stiff
// systems. Each step solves two linear systems with W = I - gamma*h*J.
// The embedded linearly implicit Euler solution drives step control.
type Rosenbrock struct {
	opts     Options
	safety   float64
	minScale float64
	maxScale float64
	stats    Stats
}

func NewRosenbrock(opts Options) *Rosenbrock {
	return &Rosenbrock{
		opts:     opts.withDefaults(),
		safety:   0.9,
		minScale: 0.2,
		maxScale: 5.0,
	}
}

func (r *Rosenbrock) Name() string { return "Rosenbrock" }

func (r *Rosenbrock) Stats() Stats { return r.stats }

// finiteDifference approximates the Jacobian column by column.
func finiteDifference(f dynamo.Derivative, t float64, x, fx dynamo.State) (*mat.Dense, error) {
	n := len(x)
	jac := mat.NewDense(n, n, nil)
	xp := x.Clone()
	for j := 0; j < n; j++ {
		h := math.Sqrt(2.2e-16) * math.Max(1, math.Abs(x[j]))
		xp[j] = x[j] + h
		fp, err := f(t, xp)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			jac.Set(i, j, (fp[i]-fx[i])/h)
		}
		xp[j] = x[j]
	}
	return jac, nil
}

// attempt returns the second order solution and the scaled error norm
// for a step of size dt. ok is false when W is singular.
func (r *Rosenbrock) attempt(f dynamo.Derivative, jac *mat.Dense, x, fx dynamo.State, t, dt float64) (dynamo.State, float64, bool, error) {
	n := len(x)

	w := mat.NewDense(n, n, nil)
	w.Scale(-ros2Gamma*dt, jac)
	for i := 0; i < n; i++ {
		w.Set(i, i, w.At(i, i)+1)
	}

	var lu mat.LU
	lu.Factorize(w)

	var k1 mat.VecDense
	if err := lu.SolveVecTo(&k1, false, mat.NewVecDense(n, fx.Clone())); err != nil {
		return nil, 0, false, nil
	}

	xStage := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xStage[i] = x[i] + dt*k1.AtVec(i)
	}
	f2, err := f(t+dt, xStage)
	if err != nil {
		return nil, 0, false, err
	}
	r.stats.Evaluations++

	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, f2[i]-2*k1.AtVec(i))
	}
	var k2 mat.VecDense
	if err := lu.SolveVecTo(&k2, false, rhs); err != nil {
		return nil, 0, false, nil
	}

	xNew := make(dynamo.State, n)
	errEst := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(1.5*k1.AtVec(i)+0.5*k2.AtVec(i))
		errEst[i] = 0.5 * dt * (k1.AtVec(i) + k2.AtVec(i))
	}
	if !xNew.IsValid() {
		return xNew, math.Inf(1), true, nil
	}
	return xNew, errNorm(errEst, x, xNew, r.opts), true, nil
}

func (r *Rosenbrock) Solve(f dynamo.Derivative, jacFn Jacobian, t0, t1 float64, x0 dynamo.State) (dynamo.State, error) {
	r.stats = Stats{}
	span := t1 - t0
	if span <= 0 || len(x0) == 0 {
		return x0.Clone(), nil
	}

	fx, err := f(t0, x0)
	if err != nil {
		return nil, err
	}
	r.stats.Evaluations++
	if err := checkDims(fx, x0); err != nil {
		return nil, err
	}

	dt, err := initialStep(f, t0, x0, fx, 2, span, r.opts)
	if err != nil {
		return nil, err
	}

	x := x0.Clone()
	t := t0
	var jac *mat.Dense
	for t < t1 {
		if r.stats.Accepted+r.stats.Rejected >= r.opts.MaxSteps {
			return nil, &dynamo.SimulationError{Step: r.stats.Accepted, Time: t, State: x, Wrapped: dynamo.ErrMaxSteps}
		}
		if dt < r.opts.MinStep {
			return nil, &dynamo.SimulationError{Step: r.stats.Accepted, Time: t, State: x, Wrapped: dynamo.ErrStepTooSmall}
		}

		if jac == nil {
			if jacFn != nil {
				jac, err = jacFn(t, x)
			} else {
				jac, err = finiteDifference(f, t, x, fx)
				r.stats.Evaluations += len(x)
			}
			if err != nil {
				return nil, fmt.Errorf("rosenbrock jacobian at t=%g: %w", t, err)
			}
			if rows, cols := jac.Dims(); rows != len(x) || cols != len(x) {
				return nil, fmt.Errorf("%w: jacobian is %dx%d for %d states", dynamo.ErrDimensionMismatch, rows, cols, len(x))
			}
		}

		last := false
		if t+dt >= t1 {
			dt = t1 - t
			last = true
		}

		xNew, errRatio, ok, err := r.attempt(f, jac, x, fx, t, dt)
		if err != nil {
			return nil, fmt.Errorf("rosenbrock at t=%g: %w", t, err)
		}
		if !ok || errRatio > 1 || math.IsNaN(errRatio) {
			r.stats.Rejected++
			scale := r.minScale
			if ok && !math.IsInf(errRatio, 0) && !math.IsNaN(errRatio) {
				scale = math.Max(r.minScale, r.safety/math.Sqrt(errRatio))
			}
			dt *= scale
			continue
		}

		r.stats.Accepted++
		if last {
			t = t1
		} else {
			t += dt
		}
		x = xNew
		fx, err = f(t, x)
		if err != nil {
			return nil, err
		}
		r.stats.Evaluations++
		jac = nil

		if errRatio > 0 {
			dt *= math.Min(r.maxScale, r.safety/math.Sqrt(errRatio))
		} else {
			dt *= r.maxScale
		}
	}

	return x, nil
}
