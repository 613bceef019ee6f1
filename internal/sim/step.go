// Package sim implements the integration step: advancing a model over one
// simulation interval with an adaptive solver and committing the result.
package sim

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/fmu"
	"github.com/san-kum/gridgym/internal/integrators"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// IntegrationError reports a failed interval. The model state is left at
// the interval start when possible.
type IntegrationError struct {
	Interval dynamo.Interval
	Solver   string
	Err      error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integrate %s over %s: %v", e.Solver, e.Interval, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

type Stepper struct {
	sync   *fmu.Synchronizer
	solver integrators.Solver
	logger *zap.Logger

	derivatives int
	jacobians   int
}

func NewStepper(s *fmu.Synchronizer, solver integrators.Solver, logger *zap.Logger) *Stepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{sync: s, solver: solver, logger: logger}
}

func (s *Stepper) Solver() integrators.Solver { return s.solver }

// Evaluations returns the derivative and Jacobian evaluations since creation.
func (s *Stepper) Evaluations() (derivatives, jacobians int) {
	return s.derivatives, s.jacobians
}

func (s *Stepper) derivative(t float64, x dynamo.State) (dynamo.State, error) {
	inst := s.sync.Instance()
	if err := inst.SetTime(t); err != nil {
		return nil, err
	}
	if err := inst.SetState(x); err != nil {
		return nil, err
	}
	s.derivatives++
	return inst.Derivatives()
}

// jacobian composes d(dx)/dx from directional derivatives. The matrix is
// seeded with the identity and column j is replaced by J*e_j.
func (s *Stepper) jacobian(t float64, x dynamo.State) (*mat.Dense, error) {
	inst := s.sync.Instance()
	if err := inst.SetTime(t); err != nil {
		return nil, err
	}
	if err := inst.SetState(x); err != nil {
		return nil, err
	}
	s.jacobians++

	n := len(x)
	jac := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		jac.Set(i, i, 1)
	}
	seed := make([]float64, n)
	for j := 0; j < n; j++ {
		mat.Col(seed, j, jac)
		col, err := inst.DirectionalDerivative(seed)
		if err != nil {
			return nil, err
		}
		if len(col) != n {
			return nil, fmt.Errorf("%w: directional derivative has %d entries, want %d", dynamo.ErrDimensionMismatch, len(col), n)
		}
		jac.SetCol(j, col)
	}
	return jac, nil
}

// Advance integrates the model over iv, writes x(iv.T1) back into the
// model and returns the bound outputs.
func (s *Stepper) Advance(iv dynamo.Interval) ([]float64, error) {
	inst := s.sync.Instance()
	s.logger.Debug("simulation started",
		zap.Float64("t0", iv.T0),
		zap.Float64("t1", iv.T1),
		zap.String("solver", s.solver.Name()))

	x0, err := inst.State()
	if err != nil {
		return nil, &IntegrationError{Interval: iv, Solver: s.solver.Name(), Err: err}
	}

	x1, err := s.solver.Solve(s.derivative, s.jacobian, iv.T0, iv.T1, x0)
	if err == nil && !x1.IsValid() {
		err = dynamo.ErrInvalidState
	}
	if err != nil {
		s.restore(iv.T0, x0)
		return nil, &IntegrationError{Interval: iv, Solver: s.solver.Name(), Err: err}
	}

	if err := inst.SetTime(iv.T1); err != nil {
		return nil, &IntegrationError{Interval: iv, Solver: s.solver.Name(), Err: err}
	}
	if err := inst.SetState(x1); err != nil {
		return nil, &IntegrationError{Interval: iv, Solver: s.solver.Name(), Err: err}
	}
	return s.sync.PullOutputs()
}

func (s *Stepper) restore(t float64, x dynamo.State) {
	inst := s.sync.Instance()
	if inst.Mode() != fmu.Continuous {
		return
	}
	if err := inst.SetTime(t); err != nil {
		s.logger.Warn("could not restore model time", zap.Error(err))
		return
	}
	if err := inst.SetState(x); err != nil {
		s.logger.Warn("could not restore model state", zap.Error(err))
	}
}
