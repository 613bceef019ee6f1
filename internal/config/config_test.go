package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/env"
	"github.com/san-kum/gridgym/internal/grid"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/viz"
)

const fullYAML = `
model: two_inverter
time_step: 0.0002
time_start: 0.5
max_episode_steps: null
solver_method: Rosenbrock
solver:
  rtol: 1.0e-6
reward:
  kind: tracking
  reference: {bus.v.d: 325}
  limits: {load.i.d: 100}
model_input: [inverter1.u.d, inverter1.u.q, inverter2.u.d, inverter2.u.q]
model_output:
  load:
    i: [d, q]
  bus:
    v:
      - [d, q]
measurement: [agent.err]
model_params:
  net.freq: 50
  load.R:
    step: {at: 0.01, before: 20, after: 10}
viz_mode: episode
viz_cols:
  - "bus.*"
  - title: currents
    series: [load.i.d, load.i.q]
    styles:
      load.i.q: {label: iq, color: "#ff0000", width: 2}
history: full
`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, cfg.Model)
	}
	if cfg.TimeStep <= 0 {
		t.Error("time step should be positive")
	}
	if cfg.Unbounded() || *cfg.MaxEpisodeSteps != DefaultMaxEpisodeSteps {
		t.Errorf("expected %d steps by default", DefaultMaxEpisodeSteps)
	}

	net, err := cfg.GridNetwork()
	if err != nil {
		t.Fatalf("grid network: %v", err)
	}
	ec, err := cfg.EnvConfig(net)
	if err != nil {
		t.Fatalf("env config: %v", err)
	}
	if len(ec.Inputs) != 2 || len(ec.Columns()) != 6 {
		t.Errorf("expected network inputs and outputs, got %v and %v", ec.Inputs, ec.Columns())
	}
	if _, ok := ec.VizCols.(viz.MatchAll); !ok {
		t.Errorf("expected MatchAll selector, got %T", ec.VizCols)
	}
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Unbounded() {
		t.Error("null max_episode_steps should be unbounded")
	}

	net, err := cfg.GridNetwork()
	if err != nil {
		t.Fatalf("grid network: %v", err)
	}
	ec, err := cfg.EnvConfig(net)
	if err != nil {
		t.Fatalf("env config: %v", err)
	}

	if ec.MaxEpisodeSteps != env.Unbounded {
		t.Errorf("expected unbounded, got %d", ec.MaxEpisodeSteps)
	}
	if ec.TimeStep != 0.0002 || ec.TimeStart != 0.5 || ec.SolverMethod != "Rosenbrock" {
		t.Errorf("unexpected timing/solver %+v", ec)
	}
	if ec.SolverOptions.RelTol != 1e-6 {
		t.Errorf("expected rtol 1e-6, got %g", ec.SolverOptions.RelTol)
	}

	wantCols := []string{"load.i.d", "load.i.q", "bus.v.d", "bus.v.q", "agent.err"}
	if got := ec.Columns(); !equal(got, wantCols) {
		t.Errorf("expected columns %v, got %v", wantCols, got)
	}
	groups := history.Groups(ec.Outputs)
	if len(groups) != 3 || len(groups[2]) != 2 {
		t.Errorf("unexpected groups %v", groups)
	}

	if ec.Params["net.freq"].At(0) != 50 {
		t.Error("expected constant frequency")
	}
	if ec.Params["load.R"].At(0) != 20 || ec.Params["load.R"].At(0.02) != 10 {
		t.Error("expected load step from 20 to 10")
	}

	r, ok := ec.Reward(wantCols, []float64{0, 0, 325, 0, 0})
	if !ok || r != 0 {
		t.Errorf("expected zero tracking error, got %f %v", r, ok)
	}

	sel, ok := ec.VizCols.(viz.Globs)
	if !ok {
		t.Fatalf("expected Globs selector, got %T", ec.VizCols)
	}
	if len(sel.Patterns) != 1 || sel.Patterns[0] != "bus.*" || len(sel.Templates) != 1 {
		t.Fatalf("unexpected selector %+v", sel)
	}
	tmpl := sel.Templates[0]
	if tmpl.Title != "currents" || !equal(tmpl.Columns(), []string{"load.i.d", "load.i.q"}) {
		t.Errorf("unexpected template %+v", tmpl)
	}
	if tmpl.Series[1].Style.Label != "iq" || tmpl.Series[1].Style.Color == nil {
		t.Errorf("expected style on load.i.q, got %+v", tmpl.Series[1].Style)
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want func(viz.Selector) bool
	}{
		{"absent", "model: single_inverter\n", func(s viz.Selector) bool { _, ok := s.(viz.MatchAll); return ok }},
		{"null", "viz_cols: null\n", func(s viz.Selector) bool { _, ok := s.(viz.MatchAll); return ok }},
		{"regex", "viz_cols: 'bus\\..*'\n", func(s viz.Selector) bool { return s == viz.Regex(`bus\..*`) }},
		{"templates only", "viz_cols:\n  - {title: t, series: [bus.v.d]}\n", func(s viz.Selector) bool {
			tm, ok := s.(viz.Templates)
			return ok && len(tm) == 1
		}},
		{"globs", "viz_cols: ['*.i.d', 'bus.*']\n", func(s viz.Selector) bool {
			g, ok := s.(viz.Globs)
			return ok && len(g.Patterns) == 2 && g.Templates == nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.src))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			sel, err := ParseSelector(&cfg.VizCols)
			if err != nil {
				t.Fatalf("selector: %v", err)
			}
			if !tt.want(sel) {
				t.Errorf("unexpected selector %#v", sel)
			}
		})
	}
}

func TestEnvConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad viz mode", "viz_mode: video\n"},
		{"bad viz_cols kind", "viz_cols: {a: 1}\n"},
		{"nested list in viz_cols", "viz_cols: [[a]]\n"},
		{"bad regex", "viz_cols: '('\n"},
		{"zero time step", "time_step: 0\n"},
		{"unknown reward", "reward: {kind: magic}\n"},
		{"tracking without reference", "reward: {kind: tracking}\n"},
		{"two param shapes", "model_params:\n  load.R: {step: {at: 1}, ramp: {t0: 0, t1: 1}}\n"},
		{"empty ramp", "model_params:\n  load.R: {ramp: {t0: 1, t1: 1}}\n"},
		{"bad color", "viz_cols:\n  - {title: t, series: [a], styles: {a: {color: red}}}\n"},
		{"unknown solver", "solver_method: BDF\n"},
		{"empty output", "model_output: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.src))
			if err != nil {
				if !errors.Is(err, dynamo.ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig from parse, got %v", err)
				}
				return
			}
			net, _ := cfg.GridNetwork()
			_, err = cfg.EnvConfig(net)
			if !errors.Is(err, dynamo.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Unbounded() || loaded.Model != "two_inverter" || loaded.SolverMethod != "Rosenbrock" {
		t.Errorf("unexpected round trip %+v", loaded)
	}

	net, _ := loaded.GridNetwork()
	ec, err := loaded.EnvConfig(net)
	if err != nil {
		t.Fatalf("env config after reload: %v", err)
	}
	if got := ec.Columns(); len(got) != 5 || got[0] != "load.i.d" {
		t.Errorf("column order not preserved: %v", got)
	}
	if ec.Params["load.R"].At(1) != 10 || ec.Params["net.freq"].At(0) != 50 {
		t.Error("parameters not preserved")
	}
}

func TestNetworkOverride(t *testing.T) {
	cfg, err := Parse([]byte("network:\n  inverters: [{r: 1, l: 0.001}]\n  c: 1.0e-5\n  load_r: 5\n  load_l: 0.001\n  freq: 60\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	net, err := cfg.GridNetwork()
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if net.Freq != 60 || len(net.Inverters) != 1 || net.Inverters[0].R != 1 {
		t.Errorf("unexpected network %+v", net)
	}
	if _, err := grid.NewModel(net); err != nil {
		t.Errorf("override should build a model: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("single_inverter", "current_control")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Agent.Kind != "current_pi" || len(cfg.Agent.References) != 1 {
		t.Errorf("unexpected agent %+v", cfg.Agent)
	}

	cfg.Agent.References[0].D = 99
	*cfg.MaxEpisodeSteps = 1
	again := GetPreset("single_inverter", "current_control")
	if again.Agent.References[0].D == 99 || *again.MaxEpisodeSteps == 1 {
		t.Error("GetPreset must return an independent copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("single_inverter", "nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if GetPreset("nonexistent", "open_loop") != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("two_inverter")
	if !equal(presets, []string{"breaker_trip", "open_loop"}) {
		t.Errorf("unexpected presets %v", presets)
	}
	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent model")
	}
	for _, model := range ListModels() {
		if _, err := grid.Preset(model); err != nil {
			t.Errorf("preset model %s has no grid: %v", model, err)
		}
		for _, name := range ListPresets(model) {
			cfg := GetPreset(model, name)
			net, err := cfg.GridNetwork()
			if err != nil {
				t.Fatalf("%s/%s: %v", model, name, err)
			}
			if _, err := cfg.EnvConfig(net); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
		}
	}
}

func equal(a, b []string) bool {
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
