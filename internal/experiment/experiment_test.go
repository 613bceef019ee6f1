package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/control"
	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/env"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openLoop(t *testing.T, steps int) *config.Config {
	t.Helper()
	cfg := config.GetPreset("single_inverter", "open_loop")
	require.NotNil(t, cfg)
	cfg.SetMaxEpisodeSteps(steps)
	cfg.VizMode = string(env.VizNone)
	return cfg
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"constant", "current_pi", "droop", "zero"}, r.ListAgents())
	assert.Contains(t, r.ListModels(), "single_inverter")
	assert.Contains(t, r.ListSolvers(), "LSODA")

	inputs := []string{"inverter1.u.d", "inverter1.u.q"}

	a, err := r.GetAgent(config.AgentConfig{}, inputs, 1e-4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, a.Act(nil))

	_, err = r.GetAgent(config.AgentConfig{Kind: "constant", Values: []float64{1}}, inputs, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	_, err = r.GetAgent(config.AgentConfig{Kind: "mpc"}, inputs, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	pi := config.GetPreset("single_inverter", "current_control").Agent
	_, err = r.GetAgent(pi, inputs, 1e-4)
	assert.NoError(t, err)
	_, err = r.GetAgent(pi, []string{"inverter2.u.d", "inverter2.u.q"}, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	pi.PI = params.PI{KP: 0.5, KI: 100}
	_, err = r.GetAgent(pi, inputs, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig, "empty output range")

	droop := config.GetPreset("two_inverter", "droop").Agent
	a, err = r.GetAgent(droop, []string{"inverter1.u.d", "inverter1.u.q", "inverter2.u.d", "inverter2.u.q"}, 1e-4)
	require.NoError(t, err)
	assert.Equal(t, []string{"inverter1.u.d", "inverter1.u.q", "inverter2.u.d", "inverter2.u.q"},
		a.(*control.VoltageDroop).Inputs())
	_, err = r.GetAgent(droop, []string{"inverter1.u.q", "inverter1.u.d"}, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	droop.Droop.Tau = -1
	_, err = r.GetAgent(droop, inputs, 1e-4)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestBreakerTripsMidEpisode(t *testing.T) {
	cfg := config.GetPreset("two_inverter", "breaker_trip")
	require.NotNil(t, cfg)
	cfg.SetMaxEpisodeSteps(520)
	cfg.VizMode = string(env.VizNone)

	x, err := New(cfg)
	require.NoError(t, err)
	res, err := x.Episode(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, env.DoneTimeLimit.String(), res.Status)

	h, ok := x.Env().History().(*history.Full)
	require.True(t, ok)
	load, ok := h.Column("load.i.d")
	require.True(t, ok)
	assert.NotZero(t, load[400], "load current flows before the trip at 0.05 s")
	assert.Zero(t, load[len(load)-1], "load current is cut once the breaker opens")
}

func TestDroopEpisode(t *testing.T) {
	cfg := config.GetPreset("two_inverter", "droop")
	require.NotNil(t, cfg)
	cfg.SetMaxEpisodeSteps(50)
	cfg.VizMode = string(env.VizNone)

	x, err := New(cfg)
	require.NoError(t, err)
	res, err := x.Episode(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Steps)
	assert.Equal(t, env.DoneTimeLimit.String(), res.Status)
}

func TestEpisode(t *testing.T) {
	var calls int
	var lastDone bool
	x, err := New(openLoop(t, 20),
		WithLogger(zaptest.NewLogger(t)),
		WithObserver(func(step int, obs []float64, _ float64, done bool) {
			calls++
			lastDone = done
			assert.Len(t, obs, 6)
		}))
	require.NoError(t, err)
	assert.NotEmpty(t, x.ID())

	res, err := x.Episode(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 20, res.Steps)
	assert.Equal(t, 20.0, res.Return)
	assert.Equal(t, env.DoneTimeLimit.String(), res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, 20.0, res.Metrics["return"])
	assert.Equal(t, 1.0, res.Metrics["stability"])
	assert.Greater(t, res.Metrics["control_effort"], 0.0)
	assert.Equal(t, 20, calls)
	assert.True(t, lastDone)
	assert.Equal(t, 21, x.Env().History().Len())
}

func TestEpisodeCancelled(t *testing.T) {
	x, err := New(openLoop(t, 20))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = x.Episode(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEpisodeFailure(t *testing.T) {
	cfg := openLoop(t, 20)
	cfg.Reward = config.RewardConfig{
		Kind:      "tracking",
		Reference: map[string]float64{"bus.v.d": 0},
		Limits:    map[string]float64{"bus.v.d": 1},
	}
	x, err := New(cfg)
	require.NoError(t, err)

	res, err := x.Episode(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)
	assert.True(t, math.IsInf(res.Return, -1))
	assert.Equal(t, env.DoneFailure.String(), res.Status)
}

func TestRun(t *testing.T) {
	cfg := openLoop(t, 5)
	cfg.Episodes = 3
	x, err := New(cfg)
	require.NoError(t, err)

	results, err := x.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, i, res.Episode)
		assert.Equal(t, x.ID(), res.RunID)
		assert.Equal(t, 5, res.Steps)
	}
}

func TestNewErrors(t *testing.T) {
	cfg := openLoop(t, 5)
	cfg.Model = "microgrid9000"
	_, err := New(cfg)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)

	cfg = openLoop(t, 5)
	cfg.Agent.Values = []float64{1, 2, 3}
	_, err = New(cfg)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}

func TestSweep(t *testing.T) {
	base := openLoop(t, 10)
	cfgs := Sweep(base, "load.R", []float64{10, 20, 40})
	require.Len(t, cfgs, 3)
	assert.Nil(t, base.ModelParams, "sweep must not modify the base configuration")
	assert.Equal(t, 40.0, *cfgs[2].ModelParams["load.R"].Constant)

	results, err := Ensemble(context.Background(), cfgs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, runs := range results {
		require.Len(t, runs, 1)
		assert.Equal(t, 10, runs[0].Steps)
		assert.Equal(t, env.DoneTimeLimit.String(), runs[0].Status)
	}
}

func TestEnsembleError(t *testing.T) {
	bad := openLoop(t, 5)
	bad.Agent = config.AgentConfig{Kind: "mpc"}
	_, err := Ensemble(context.Background(), []*config.Config{openLoop(t, 5), bad}, 0)
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
}
