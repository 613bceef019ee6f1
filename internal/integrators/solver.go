// Package integrators implements the adaptive ODE solvers used to advance
// a model over one simulation interval.
package integrators

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/gridgym/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Jacobian returns d(dx)/dx at a trial time and state. Solvers that do not
// need it ignore it; stiff solvers fall back to finite differences when it
// is nil.
type Jacobian func(t float64, x dynamo.State) (*mat.Dense, error)

// Solver integrates dx/dt = f(t, x) from t0 to t1 and returns x(t1).
type Solver interface {
	Name() string
	Solve(f dynamo.Derivative, jac Jacobian, t0, t1 float64, x0 dynamo.State) (dynamo.State, error)
}

type Options struct {
	RelTol float64
	AbsTol float64
	// InitialStep of zero selects the first step automatically.
	InitialStep float64
	MinStep     float64
	MaxSteps    int
}

func DefaultOptions() Options {
	return Options{
		RelTol:   1e-3,
		AbsTol:   1e-6,
		MinStep:  1e-12,
		MaxSteps: 100000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RelTol <= 0 {
		o.RelTol = d.RelTol
	}
	if o.AbsTol <= 0 {
		o.AbsTol = d.AbsTol
	}
	if o.MinStep <= 0 {
		o.MinStep = d.MinStep
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	return o
}

var registry = map[string]func(Options) Solver{
	"RK45":       func(o Options) Solver { return NewRK45(o) },
	"RK4":        func(o Options) Solver { return NewRK4(o) },
	"ROSENBROCK": func(o Options) Solver { return NewRosenbrock(o) },
	"LSODA":      func(o Options) Solver { return NewAuto(o) },
}

// New returns the solver registered under method (case-insensitive).
func New(method string, opts Options) (Solver, error) {
	fn, ok := registry[strings.ToUpper(method)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", dynamo.ErrUnknownSolver, method, Methods())
	}
	return fn(opts), nil
}

func Methods() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// errNorm is the RMS of err scaled by atol + rtol*max(|x|, |xNew|).
func errNorm(errEst, x, xNew dynamo.State, opts Options) float64 {
	if len(errEst) == 0 {
		return 0
	}
	sum := 0.0
	for i := range errEst {
		scale := opts.AbsTol + opts.RelTol*math.Max(math.Abs(x[i]), math.Abs(xNew[i]))
		r := errEst[i] / scale
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(errEst)))
}

func rmsScaled(v, x dynamo.State, opts Options) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for i := range v {
		r := v[i] / (opts.AbsTol + opts.RelTol*math.Abs(x[i]))
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(v)))
}

// initialStep picks a first step from the local scale of x and f, as in
// Hairer, Norsett & Wanner, Solving ODEs I, II.4.
func initialStep(f dynamo.Derivative, t0 float64, x0, f0 dynamo.State, order int, span float64, opts Options) (float64, error) {
	if opts.InitialStep > 0 {
		return math.Min(opts.InitialStep, span), nil
	}
	if len(x0) == 0 {
		return span, nil
	}
	d0 := rmsScaled(x0, x0, opts)
	d1 := rmsScaled(f0, x0, opts)
	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	f1, err := f(t0+h0, x0.Axpy(h0, f0))
	if err != nil {
		return 0, err
	}
	d2 := rmsScaled(f1.Sub(f0), x0, opts) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1.0/float64(order+1))
	}
	h := math.Min(math.Min(100*h0, h1), span)
	if math.IsNaN(h) || h <= 0 {
		h = math.Min(1e-6, span)
	}
	return h, nil
}

func checkDims(f0, x0 dynamo.State) error {
	if len(f0) != len(x0) {
		return fmt.Errorf("%w: derivative has %d entries, state %d", dynamo.ErrDimensionMismatch, len(f0), len(x0))
	}
	return nil
}
