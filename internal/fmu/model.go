package fmu

// Ref addresses a real-valued model variable.
type Ref uint32

// Model is the compiled dynamical model. Implementations are not expected
// to be safe for concurrent use.
type Model interface {
	Reset() error
	Setup(startTime float64) error
	EnterInitializationMode() error
	ExitInitializationMode() error
	EnterEventMode() error
	// ProcessEvents performs one event update and reports whether
	// another iteration is needed.
	ProcessEvents() (more bool, err error)
	EnterContinuousMode() error

	NumStates() int
	SetTime(t float64) error
	State() ([]float64, error)
	SetState(x []float64) error
	Derivatives() ([]float64, error)
	// DirectionalDerivative returns J*seed where J = d(dx)/dx at the
	// current time and state.
	DirectionalDerivative(seed []float64) ([]float64, error)

	Lookup(name string) (Ref, error)
	SetReal(refs []Ref, values []float64) error
	GetReal(refs []Ref) ([]float64, error)
}
