package integrators

import (
	"errors"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// DefaultNonStiffBudget is the number of RK45 steps per interval after
// which a problem is treated as stiff.
const DefaultNonStiffBudget = 500

// Auto starts every interval with RK45 and switches to Rosenbrock once the
// explicit method exhausts its step budget or its step collapses. The
// switch is sticky for the lifetime of the solver.
type Auto struct {
	nonstiff *RK45
	stiff    *Rosenbrock
	isStiff  bool
}

func NewAuto(opts Options) *Auto {
	explicit := opts
	if explicit.MaxSteps <= 0 || explicit.MaxSteps > DefaultNonStiffBudget {
		explicit.MaxSteps = DefaultNonStiffBudget
	}
	return &Auto{
		nonstiff: NewRK45(explicit),
		stiff:    NewRosenbrock(opts),
	}
}

func (a *Auto) Name() string { return "LSODA" }

// Stiff reports whether the solver has switched to the implicit method.
func (a *Auto) Stiff() bool { return a.isStiff }

func (a *Auto) Solve(f dynamo.Derivative, jac Jacobian, t0, t1 float64, x0 dynamo.State) (dynamo.State, error) {
	if !a.isStiff {
		x, err := a.nonstiff.Solve(f, jac, t0, t1, x0)
		if err == nil {
			return x, nil
		}
		if !errors.Is(err, dynamo.ErrMaxSteps) && !errors.Is(err, dynamo.ErrStepTooSmall) {
			return nil, err
		}
		a.isStiff = true
	}
	return a.stiff.Solve(f, jac, t0, t1, x0)
}
