package fmu

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
)

type Mode int

const (
	Created Mode = iota
	Initializing
	EventSettling
	Continuous
	Failed
)

func (m Mode) String() string {
	switch m {
	case Created:
		return "CREATED"
	case Initializing:
		return "INITIALIZING"
	case EventSettling:
		return "EVENT_SETTLING"
	case Continuous:
		return "CONTINUOUS"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// DefaultMaxEventIterations bounds event iteration during initialization.
const DefaultMaxEventIterations = 100

// Instance wraps a Model and rejects calls made in the wrong mode.
type Instance struct {
	model         Model
	mode          Mode
	maxIterations int
}

func NewInstance(m Model) *Instance {
	return &Instance{model: m, mode: Created, maxIterations: DefaultMaxEventIterations}
}

// SetMaxEventIterations changes the event iteration bound; n <= 0 restores the default.
func (in *Instance) SetMaxEventIterations(n int) {
	if n <= 0 {
		n = DefaultMaxEventIterations
	}
	in.maxIterations = n
}

func (in *Instance) Mode() Mode { return in.mode }

func (in *Instance) NumStates() int { return in.model.NumStates() }

func (in *Instance) guard(op string, allowed ...Mode) error {
	for _, m := range allowed {
		if in.mode == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in mode %s", dynamo.ErrModelMode, op, in.mode)
}

func (in *Instance) fail(op string, err error) error {
	in.mode = Failed
	return fmt.Errorf("fmu: %s: %w", op, err)
}

// Reset returns the model to CREATED. It is allowed from every mode.
func (in *Instance) Reset() error {
	if err := in.model.Reset(); err != nil {
		return in.fail("reset", err)
	}
	in.mode = Created
	return nil
}

func (in *Instance) Setup(startTime float64) error {
	if err := in.guard("setup", Created); err != nil {
		return err
	}
	if err := in.model.Setup(startTime); err != nil {
		return in.fail("setup", err)
	}
	if err := in.model.EnterInitializationMode(); err != nil {
		return in.fail("enter initialization", err)
	}
	in.mode = Initializing
	return nil
}

func (in *Instance) ExitInitialization() error {
	if err := in.guard("exit initialization", Initializing); err != nil {
		return err
	}
	if err := in.model.ExitInitializationMode(); err != nil {
		return in.fail("exit initialization", err)
	}
	in.mode = EventSettling
	return nil
}

// SettleEvents iterates event updates until the model needs no more and
// returns the number of iterations performed. At least one iteration
// always runs.
func (in *Instance) SettleEvents() (int, error) {
	if err := in.guard("settle events", EventSettling); err != nil {
		return 0, err
	}
	for i := 1; ; i++ {
		if i > in.maxIterations {
			in.mode = Failed
			return i - 1, fmt.Errorf("fmu: event iteration did not settle after %d iterations", in.maxIterations)
		}
		if err := in.model.EnterEventMode(); err != nil {
			return i, in.fail("enter event mode", err)
		}
		more, err := in.model.ProcessEvents()
		if err != nil {
			return i, in.fail("process events", err)
		}
		if !more {
			return i, nil
		}
	}
}

func (in *Instance) EnterContinuous() error {
	if err := in.guard("enter continuous mode", EventSettling); err != nil {
		return err
	}
	if err := in.model.EnterContinuousMode(); err != nil {
		return in.fail("enter continuous mode", err)
	}
	in.mode = Continuous
	return nil
}

// Initialize runs the whole start-up sequence from CREATED to CONTINUOUS.
func (in *Instance) Initialize(startTime float64) (int, error) {
	if err := in.Setup(startTime); err != nil {
		return 0, err
	}
	if err := in.ExitInitialization(); err != nil {
		return 0, err
	}
	n, err := in.SettleEvents()
	if err != nil {
		return n, err
	}
	return n, in.EnterContinuous()
}

func (in *Instance) SetTime(t float64) error {
	if err := in.guard("set time", Continuous); err != nil {
		return err
	}
	if err := in.model.SetTime(t); err != nil {
		return in.fail("set time", err)
	}
	return nil
}

func (in *Instance) State() (dynamo.State, error) {
	if err := in.guard("get state", Continuous); err != nil {
		return nil, err
	}
	x, err := in.model.State()
	if err != nil {
		return nil, in.fail("get state", err)
	}
	return dynamo.State(x).Clone(), nil
}

func (in *Instance) SetState(x dynamo.State) error {
	if err := in.guard("set state", Continuous); err != nil {
		return err
	}
	if len(x) != in.model.NumStates() {
		return fmt.Errorf("%w: state has %d entries, model has %d", dynamo.ErrDimensionMismatch, len(x), in.model.NumStates())
	}
	if err := in.model.SetState(x.Clone()); err != nil {
		return in.fail("set state", err)
	}
	return nil
}

func (in *Instance) Derivatives() (dynamo.State, error) {
	if err := in.guard("get derivatives", Continuous); err != nil {
		return nil, err
	}
	dx, err := in.model.Derivatives()
	if err != nil {
		return nil, in.fail("get derivatives", err)
	}
	return dx, nil
}

func (in *Instance) DirectionalDerivative(seed []float64) ([]float64, error) {
	if err := in.guard("get directional derivative", Continuous); err != nil {
		return nil, err
	}
	col, err := in.model.DirectionalDerivative(seed)
	if err != nil {
		return nil, in.fail("get directional derivative", err)
	}
	return col, nil
}

// Lookup resolves a variable name. Unknown names do not fail the instance.
func (in *Instance) Lookup(name string) (Ref, error) {
	if err := in.guard("lookup", Created, Initializing, EventSettling, Continuous); err != nil {
		return 0, err
	}
	ref, err := in.model.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", dynamo.ErrUnknownVariable, name, err)
	}
	return ref, nil
}

func (in *Instance) SetReal(refs []Ref, values []float64) error {
	if err := in.guard("set real", Created, Initializing, EventSettling, Continuous); err != nil {
		return err
	}
	if len(refs) != len(values) {
		return fmt.Errorf("%w: %d references, %d values", dynamo.ErrDimensionMismatch, len(refs), len(values))
	}
	if err := in.model.SetReal(refs, values); err != nil {
		return in.fail("set real", err)
	}
	return nil
}

func (in *Instance) GetReal(refs []Ref) ([]float64, error) {
	if err := in.guard("get real", Created, Initializing, EventSettling, Continuous); err != nil {
		return nil, err
	}
	values, err := in.model.GetReal(refs)
	if err != nil {
		return nil, in.fail("get real", err)
	}
	return values, nil
}
