package config

import (
	"sort"

	"github.com/san-kum/gridgym/internal/params"
)

func preset(model string, steps int, agent AgentConfig, p map[string]ParamConfig) *Config {
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.MaxEpisodeSteps = intPtr(steps)
	cfg.Agent = agent
	cfg.ModelParams = p
	return cfg
}

var currentPI = params.NewPI(0.5, 100, -600, 600)

// 300 W/V puts a 10 kW inverter about 10% below 325 V at full load.
var (
	pvDroop = params.Droop{Filter: params.Filter{Gain: 300, Tau: 5e-3}, Nominal: 325}
	qDroop  = params.Droop{Filter: params.Filter{Gain: 300, Tau: 5e-3}}
)

var Presets = map[string]map[string]*Config{
	"single_inverter": {
		"open_loop": preset("single_inverter", 500,
			AgentConfig{Kind: "constant", Values: []float64{325, 0}}, nil),
		"current_control": preset("single_inverter", 1000,
			AgentConfig{Kind: "current_pi", PI: currentPI, References: []CurrentRefConfig{{Inverter: "inverter1", D: 10}}}, nil),
		"load_step": preset("single_inverter", 1000,
			AgentConfig{Kind: "constant", Values: []float64{325, 0}},
			map[string]ParamConfig{"load.R": {Step: &StepShape{At: 0.05, Before: 20, After: 10}}}),
	},
	"two_inverter": {
		"open_loop": preset("two_inverter", 500,
			AgentConfig{Kind: "constant", Values: []float64{325, 0, 325, 0}}, nil),
		"breaker_trip": preset("two_inverter", 1000,
			AgentConfig{Kind: "constant", Values: []float64{325, 0, 325, 0}},
			map[string]ParamConfig{"load.breaker": {Step: &StepShape{At: 0.05, Before: 1, After: 0}}}),
		"droop": preset("two_inverter", 1000,
			AgentConfig{Kind: "droop", Droop: pvDroop, QDroop: qDroop}, nil),
	},
	"islanded": {
		"no_load": preset("islanded", 200,
			AgentConfig{Kind: "zero"}, nil),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
