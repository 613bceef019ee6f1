package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// Stats counts the work done by the last Solve call.
type Stats struct {
	Accepted    int
	Rejected    int
	Evaluations int
}

type RK45 struct {
	opts     Options
	safety   float64
	minScale float64
	maxScale float64
	stats    Stats
}

func NewRK45(opts Options) *RK45 {
	return &RK45{
		opts:     opts.withDefaults(),
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) Name() string { return "RK45" }

func (r *RK45) Stats() Stats { return r.stats }

// attempt takes one Dormand-Prince step of size dt from (t, x) where k1 =
// f(t, x). It returns the 5th order solution, f at that solution (the
// next k1) and the scaled error norm.
func (r *RK45) attempt(f dynamo.Derivative, x, k1 dynamo.State, t, dt float64) (dynamo.State, dynamo.State, float64, error) {
	n := len(x)

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt*b21*k1[i]
	}
	k2, err := f(t+a2*dt, x2)
	if err != nil {
		return nil, nil, 0, err
	}

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	k3, err := f(t+a3*dt, x3)
	if err != nil {
		return nil, nil, 0, err
	}

	x4 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := f(t+a4*dt, x4)
	if err != nil {
		return nil, nil, 0, err
	}

	x5 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := f(t+a5*dt, x5)
	if err != nil {
		return nil, nil, 0, err
	}

	x6 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := f(t+dt, x6)
	if err != nil {
		return nil, nil, 0, err
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}
	if !xNew.IsValid() {
		r.stats.Evaluations += 5
		return xNew, nil, math.Inf(1), nil
	}

	k7, err := f(t+dt, xNew)
	if err != nil {
		return nil, nil, 0, err
	}
	r.stats.Evaluations += 6

	errEst := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		errEst[i] = dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
	}
	return xNew, k7, errNorm(errEst, x, xNew, r.opts), nil
}

func (r *RK45) Solve(f dynamo.Derivative, _ Jacobian, t0, t1 float64, x0 dynamo.State) (dynamo.State, error) {
	r.stats = Stats{}
	span := t1 - t0
	if span <= 0 {
		return x0.Clone(), nil
	}

	k1, err := f(t0, x0)
	if err != nil {
		return nil, err
	}
	r.stats.Evaluations++
	if err := checkDims(k1, x0); err != nil {
		return nil, err
	}

	dt, err := initialStep(f, t0, x0, k1, 5, span, r.opts)
	if err != nil {
		return nil, err
	}

	x := x0.Clone()
	t := t0
	for t < t1 {
		if r.stats.Accepted+r.stats.Rejected >= r.opts.MaxSteps {
			return nil, &dynamo.SimulationError{Step: r.stats.Accepted, Time: t, State: x, Wrapped: dynamo.ErrMaxSteps}
		}
		if dt < r.opts.MinStep {
			return nil, &dynamo.SimulationError{Step: r.stats.Accepted, Time: t, State: x, Wrapped: dynamo.ErrStepTooSmall}
		}

		last := false
		if t+dt >= t1 {
			dt = t1 - t
			last = true
		}

		xNew, k7, errRatio, err := r.attempt(f, x, k1, t, dt)
		if err != nil {
			return nil, fmt.Errorf("rk45 at t=%g: %w", t, err)
		}

		if errRatio > 1 || math.IsNaN(errRatio) {
			r.stats.Rejected++
			scale := r.minScale
			if !math.IsInf(errRatio, 0) && !math.IsNaN(errRatio) {
				scale = math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
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
		k1 = k7

		if errRatio > 0 {
			dt *= math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
		} else {
			dt *= r.maxScale
		}
	}

	return x, nil
}
