package dynamo

import "errors"

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrMaxSteps indicates the solver exhausted its step budget for one interval.
	ErrMaxSteps = errors.New("dynamo: solver exceeded maximum number of steps")

	// ErrDimensionMismatch indicates mismatched vector dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrArity indicates an action whose length differs from the declared inputs.
	ErrArity = errors.New("dynamo: action length does not match model inputs")

	// ErrNotReset indicates Step was called before Reset.
	ErrNotReset = errors.New("dynamo: environment used before reset")

	// ErrInvalidConfig indicates a fatal configuration problem.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrModelMode indicates a model call made in the wrong lifecycle mode.
	ErrModelMode = errors.New("dynamo: model call not allowed in current mode")

	// ErrUnknownVariable indicates a name the model cannot resolve.
	ErrUnknownVariable = errors.New("dynamo: unknown model variable")

	// ErrRecordLength indicates a history record that does not fit the schema.
	ErrRecordLength = errors.New("dynamo: record length does not match columns")

	// ErrUnknownSolver indicates an unregistered solver method.
	ErrUnknownSolver = errors.New("dynamo: unknown solver method")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
