package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/control"
	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/grid"
	"github.com/san-kum/gridgym/internal/integrators"
	"github.com/san-kum/gridgym/internal/metrics"
)

// AgentFactory builds an agent driving the given model inputs with
// control interval dt.
type AgentFactory func(cfg config.AgentConfig, inputs []string, dt float64) (control.Agent, error)

type Registry struct {
	agents map[string]AgentFactory
}

func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]AgentFactory)}

	r.agents["zero"] = func(_ config.AgentConfig, inputs []string, _ float64) (control.Agent, error) {
		return control.NewZero(len(inputs)), nil
	}
	r.agents["constant"] = func(cfg config.AgentConfig, inputs []string, _ float64) (control.Agent, error) {
		if len(cfg.Values) != len(inputs) {
			return nil, fmt.Errorf("%w: constant agent has %d values for %d inputs", dynamo.ErrInvalidConfig, len(cfg.Values), len(inputs))
		}
		return control.NewConstant(cfg.Values...), nil
	}
	r.agents["current_pi"] = func(cfg config.AgentConfig, inputs []string, dt float64) (control.Agent, error) {
		if err := cfg.PI.Validate(); err != nil {
			return nil, err
		}
		refs := make([]control.CurrentRef, len(cfg.References))
		for i, ref := range cfg.References {
			refs[i] = control.CurrentRef{Inverter: ref.Inverter, D: ref.D, Q: ref.Q}
		}
		agent := control.NewCurrentPI(cfg.PI, dt, refs...)
		if got := agent.Inputs(); !sameNames(got, inputs) {
			return nil, fmt.Errorf("%w: current_pi drives %v but model_input is %v", dynamo.ErrInvalidConfig, got, inputs)
		}
		return agent, nil
	}

	r.agents["droop"] = func(cfg config.AgentConfig, inputs []string, dt float64) (control.Agent, error) {
		if err := cfg.Droop.Validate(); err != nil {
			return nil, err
		}
		if err := cfg.QDroop.Validate(); err != nil {
			return nil, err
		}
		inverters, err := inverterPairs(inputs)
		if err != nil {
			return nil, err
		}
		return control.NewVoltageDroop(cfg.Droop, cfg.QDroop, dt, inverters...), nil
	}

	return r
}

// inverterPairs reads inverter names from inputs ordered as
// name.u.d, name.u.q per inverter.
func inverterPairs(inputs []string) ([]string, error) {
	if len(inputs) == 0 || len(inputs)%2 != 0 {
		return nil, fmt.Errorf("%w: droop agent needs u.d/u.q input pairs, got %v", dynamo.ErrInvalidConfig, inputs)
	}
	var names []string
	for i := 0; i < len(inputs); i += 2 {
		name, ok := strings.CutSuffix(inputs[i], ".u.d")
		if !ok || inputs[i+1] != name+".u.q" {
			return nil, fmt.Errorf("%w: droop agent needs u.d/u.q input pairs, got %v", dynamo.ErrInvalidConfig, inputs)
		}
		names = append(names, name)
	}
	return names, nil
}

// Register adds or replaces an agent kind.
func (r *Registry) Register(kind string, fn AgentFactory) {
	r.agents[kind] = fn
}

func (r *Registry) GetAgent(cfg config.AgentConfig, inputs []string, dt float64) (control.Agent, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = "zero"
	}
	fn, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown agent %q (available: %v)", dynamo.ErrInvalidConfig, kind, r.ListAgents())
	}
	return fn(cfg, inputs, dt)
}

func (r *Registry) ListAgents() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListModels() []string {
	return grid.PresetNames()
}

func (r *Registry) ListSolvers() []string {
	return integrators.Methods()
}

// StabilityLimit is the bus voltage magnitude treated as unstable.
const StabilityLimit = 1000.0

// DefaultMetrics returns fresh metrics for one environment.
func (r *Registry) DefaultMetrics() []metrics.Metric {
	return []metrics.Metric{
		metrics.NewReturn(),
		metrics.NewStability(StabilityLimit, "bus.v.d", "bus.v.q"),
		metrics.NewControlEffort(),
	}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
