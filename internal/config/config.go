// Package config loads environment configurations from YAML.
//
// Keys follow the environment options: time_step, time_start, reward,
// solver_method, max_episode_steps (null for unbounded), model_params,
// model_input, model_output, viz_mode, viz_cols, history and measurement.
// model_output and viz_cols are kept as YAML nodes so mapping order is
// preserved.
package config

import (
	"fmt"
	"os"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/env"
	"github.com/san-kum/gridgym/internal/grid"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/integrators"
	"github.com/san-kum/gridgym/internal/params"
	"github.com/san-kum/gridgym/internal/reward"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeStep        = 1e-4
	DefaultMaxEpisodeSteps = 200
	DefaultModel           = "single_inverter"
	DefaultSolver          = "LSODA"
)

type Config struct {
	Model           string                 `yaml:"model"`
	Network         *grid.Network          `yaml:"network,omitempty"`
	TimeStep        float64                `yaml:"time_step"`
	TimeStart       float64                `yaml:"time_start"`
	MaxEpisodeSteps *int                   `yaml:"max_episode_steps"`
	SolverMethod    string                 `yaml:"solver_method"`
	Solver          SolverConfig           `yaml:"solver,omitempty"`
	Reward          RewardConfig           `yaml:"reward"`
	ModelInput      []string               `yaml:"model_input,omitempty"`
	ModelOutput     yaml.Node              `yaml:"model_output,omitempty"`
	Measurement     []string               `yaml:"measurement,omitempty"`
	ModelParams     map[string]ParamConfig `yaml:"model_params,omitempty"`
	VizMode         string                 `yaml:"viz_mode"`
	VizCols         yaml.Node              `yaml:"viz_cols,omitempty"`
	History         string                 `yaml:"history"`
	Agent           AgentConfig            `yaml:"agent"`
	Episodes        int                    `yaml:"episodes,omitempty"`
}

type SolverConfig struct {
	RelTol      float64 `yaml:"rtol,omitempty"`
	AbsTol      float64 `yaml:"atol,omitempty"`
	InitialStep float64 `yaml:"first_step,omitempty"`
	MinStep     float64 `yaml:"min_step,omitempty"`
	MaxSteps    int     `yaml:"max_steps,omitempty"`
}

type RewardConfig struct {
	Kind      string             `yaml:"kind"`
	Value     float64            `yaml:"value,omitempty"`
	Reference map[string]float64 `yaml:"reference,omitempty"`
	Limits    map[string]float64 `yaml:"limits,omitempty"`
}

type CurrentRefConfig struct {
	Inverter string  `yaml:"inverter"`
	D        float64 `yaml:"d"`
	Q        float64 `yaml:"q"`
}

type AgentConfig struct {
	Kind       string             `yaml:"kind"`
	Values     []float64          `yaml:"values,omitempty"`
	PI         params.PI          `yaml:"pi,omitempty"`
	References []CurrentRefConfig `yaml:"references,omitempty"`
	// Droop is the P-V characteristic of the droop agent and QDroop its
	// reactive-power counterpart. A zero QDroop holds u.q at 0.
	Droop  params.Droop `yaml:"droop,omitempty"`
	QDroop params.Droop `yaml:"qdroop,omitempty"`
}

func intPtr(v int) *int { return &v }

func DefaultConfig() *Config {
	return &Config{
		Model:           DefaultModel,
		TimeStep:        DefaultTimeStep,
		MaxEpisodeSteps: intPtr(DefaultMaxEpisodeSteps),
		SolverMethod:    DefaultSolver,
		Reward:          RewardConfig{Kind: "constant", Value: 1},
		VizMode:         string(env.VizEpisode),
		History:         "full",
		Agent:           AgentConfig{Kind: "zero"},
		Episodes:        1,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a copy that shares no slices or maps with c. YAML nodes
// are shared; they are only read.
func (c *Config) Clone() *Config {
	out := *c
	if c.Network != nil {
		net := *c.Network
		net.Inverters = append([]grid.Inverter(nil), c.Network.Inverters...)
		out.Network = &net
	}
	if c.MaxEpisodeSteps != nil {
		out.MaxEpisodeSteps = intPtr(*c.MaxEpisodeSteps)
	}
	out.ModelInput = append([]string(nil), c.ModelInput...)
	out.Measurement = append([]string(nil), c.Measurement...)
	out.Agent.Values = append([]float64(nil), c.Agent.Values...)
	out.Agent.References = append([]CurrentRefConfig(nil), c.Agent.References...)
	if c.ModelParams != nil {
		out.ModelParams = make(map[string]ParamConfig, len(c.ModelParams))
		for k, v := range c.ModelParams {
			out.ModelParams[k] = v
		}
	}
	return &out
}

// GridNetwork returns the network override or the named preset.
func (c *Config) GridNetwork() (grid.Network, error) {
	if c.Network != nil {
		return *c.Network, nil
	}
	return grid.Preset(c.Model)
}

// Unbounded reports whether max_episode_steps was set to null.
func (c *Config) Unbounded() bool { return c.MaxEpisodeSteps == nil }

// SetMaxEpisodeSteps sets the limit; negative values mean unbounded.
func (c *Config) SetMaxEpisodeSteps(n int) {
	if n < 0 {
		c.MaxEpisodeSteps = nil
		return
	}
	c.MaxEpisodeSteps = intPtr(n)
}

func (r RewardConfig) Build() (reward.Func, error) {
	switch r.Kind {
	case "", "constant":
		return reward.Constant(r.Value), nil
	case "tracking":
		if len(r.Reference) == 0 {
			return nil, fmt.Errorf("%w: tracking reward needs a reference", dynamo.ErrInvalidConfig)
		}
		return reward.NewTracking(r.Reference, r.Limits).Func(), nil
	}
	return nil, fmt.Errorf("%w: unknown reward kind %q", dynamo.ErrInvalidConfig, r.Kind)
}

// EnvConfig resolves the file configuration into an environment
// configuration for the given network. Inputs and outputs default to the
// network's own.
func (c *Config) EnvConfig(net grid.Network) (env.Config, error) {
	out := env.DefaultConfig()
	out.TimeStep = c.TimeStep
	out.TimeStart = c.TimeStart
	out.MaxEpisodeSteps = env.Unbounded
	if c.MaxEpisodeSteps != nil {
		out.MaxEpisodeSteps = *c.MaxEpisodeSteps
	}
	out.SolverMethod = c.SolverMethod
	out.SolverOptions = integrators.Options{
		RelTol:      c.Solver.RelTol,
		AbsTol:      c.Solver.AbsTol,
		InitialStep: c.Solver.InitialStep,
		MinStep:     c.Solver.MinStep,
		MaxSteps:    c.Solver.MaxSteps,
	}

	var err error
	if out.Reward, err = c.Reward.Build(); err != nil {
		return env.Config{}, err
	}

	out.Inputs = c.ModelInput
	if len(out.Inputs) == 0 {
		out.Inputs = net.Inputs()
	}
	out.Outputs = net.Outputs()
	if !c.ModelOutput.IsZero() {
		if out.Outputs, err = history.ParseSpec(&c.ModelOutput); err != nil {
			return env.Config{}, fmt.Errorf("%w: model_output: %v", dynamo.ErrInvalidConfig, err)
		}
	}
	out.Measurement = c.Measurement

	out.Params = make(map[string]env.Param, len(c.ModelParams))
	for name, p := range c.ModelParams {
		if out.Params[name], err = p.Param(); err != nil {
			return env.Config{}, fmt.Errorf("model_params[%q]: %w", name, err)
		}
	}

	out.VizMode = env.VizMode(c.VizMode)
	if out.VizCols, err = ParseSelector(&c.VizCols); err != nil {
		return env.Config{}, err
	}
	out.History = c.History
	return out, out.Validate()
}
