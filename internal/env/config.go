package env

import (
	"fmt"
	"math"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/integrators"
	"github.com/san-kum/gridgym/internal/reward"
	"github.com/san-kum/gridgym/internal/viz"
)

type VizMode string

const (
	VizEpisode VizMode = "episode"
	VizStep    VizMode = "step"
	VizNone    VizMode = "none"
)

func (m VizMode) valid() bool {
	switch m {
	case VizEpisode, VizStep, VizNone, "":
		return true
	}
	return false
}

type Config struct {
	TimeStep  float64
	TimeStart float64
	// MaxEpisodeSteps limits the episode length. Negative values
	// (Unbounded) disable the limit; zero makes every episode terminal
	// right after Reset.
	MaxEpisodeSteps int

	SolverMethod  string
	SolverOptions integrators.Options

	// Reward defaults to a constant 1.
	Reward reward.Func

	Inputs      []string
	Outputs     history.Spec
	Measurement []string
	Params      map[string]Param

	// MaxEventIterations bounds event settling at reset. Zero uses the
	// instance default.
	MaxEventIterations int

	VizMode VizMode
	VizCols viz.Selector
	History string
}

func DefaultConfig() Config {
	return Config{
		TimeStep:        1e-4,
		TimeStart:       0,
		MaxEpisodeSteps: 200,
		SolverMethod:    "LSODA",
		Reward:          reward.Constant(1),
		VizMode:         VizEpisode,
		History:         "full",
	}
}

// Columns returns the observation column names: outputs followed by
// measurement.
func (c Config) Columns() []string {
	return history.Flatten(c.columnSpec())
}

func (c Config) columnSpec() history.Spec {
	return history.Extend(c.Outputs, c.Measurement...)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", dynamo.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks everything that can be checked without a model.
func (c Config) Validate() error {
	if c.TimeStep <= 0 || math.IsNaN(c.TimeStep) || math.IsInf(c.TimeStep, 0) {
		return invalid("time_step must be positive, got %g", c.TimeStep)
	}
	if math.IsNaN(c.TimeStart) || math.IsInf(c.TimeStart, 0) {
		return invalid("time_start must be finite, got %g", c.TimeStart)
	}
	if len(c.Inputs) == 0 {
		return invalid("model_input is required")
	}
	if c.Outputs == nil || len(history.Flatten(c.Outputs)) == 0 {
		return invalid("model_output is required")
	}
	if !c.VizMode.valid() {
		return invalid("viz_mode must be one of episode, step, none; got %q", c.VizMode)
	}
	if err := unique("model_input", c.Inputs); err != nil {
		return err
	}
	if err := unique("observation column", c.Columns()); err != nil {
		return err
	}
	for name, p := range c.Params {
		if p == nil {
			return invalid("model_params[%q] is nil", name)
		}
	}
	if _, err := viz.Compile(c.VizCols); err != nil {
		return err
	}
	if _, err := integrators.New(c.solverMethod(), c.SolverOptions); err != nil {
		return fmt.Errorf("%w: solver_method: %w", dynamo.ErrInvalidConfig, err)
	}
	return nil
}

func unique(what string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return invalid("duplicate %s %q", what, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (c Config) solverMethod() string {
	if c.SolverMethod == "" {
		return "LSODA"
	}
	return c.SolverMethod
}
