package env

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/fmu"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/integrators"
	"github.com/san-kum/gridgym/internal/metrics"
	"github.com/san-kum/gridgym/internal/reward"
	"github.com/san-kum/gridgym/internal/sim"
	"github.com/san-kum/gridgym/internal/viz"
	"go.uber.org/zap"
)

// Status is the episode outcome derived from the clock and failure flag.
type Status int

const (
	Running Status = iota
	DoneTimeLimit
	DoneFailure
)

func (s Status) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case DoneTimeLimit:
		return "DONE_TIME_LIMIT"
	case DoneFailure:
		return "DONE_FAILURE"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type phase int

const (
	uninitialized phase = iota
	ready
	running
	terminal
)

// Info carries diagnostics for one step. A failed integration sets
// "error".
type Info map[string]any

type Option func(*Env)

func WithLogger(l *zap.Logger) Option {
	return func(e *Env) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistory replaces the history selected by Config.History.
func WithHistory(h history.History) Option {
	return func(e *Env) { e.hist = h }
}

func WithMetrics(ms ...metrics.Metric) Option {
	return func(e *Env) { e.metrics = append(e.metrics, ms...) }
}

type scheduled struct {
	name  string
	param Param
}

type Env struct {
	cfg     Config
	logger  *zap.Logger
	inst    *fmu.Instance
	sync    *fmu.Synchronizer
	stepper *sim.Stepper
	hist    history.History
	filter  *viz.Filter
	reward  reward.Func
	metrics []metrics.Metric

	columns    []string
	outputs    []string
	params     []scheduled
	paramNames []string

	clock       Clock
	phase       phase
	failed      bool
	measurement []float64
	lastOutputs []float64
	lastObs     []float64
}

// New validates cfg and wraps model. The environment must be Reset
// before the first Step.
func New(model fmu.Model, cfg Config, opts ...Option) (*Env, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is nil", dynamo.ErrInvalidConfig)
	}
	e := &Env{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if err := cfg.Validate(); err != nil {
		e.logger.Error("invalid environment configuration", zap.Error(err))
		return nil, err
	}

	solver, err := integrators.New(cfg.solverMethod(), cfg.SolverOptions)
	if err != nil {
		return nil, err
	}
	e.filter, err = viz.Compile(cfg.VizCols)
	if err != nil {
		return nil, err
	}
	if e.hist == nil {
		if e.hist, err = history.New(cfg.History); err != nil {
			return nil, err
		}
	}
	if _, ok := cfg.VizCols.(viz.MatchAll); cfg.VizCols == nil || ok {
		e.logger.Info("plotting all data series; set viz_cols to select specific plots")
	}

	e.reward = cfg.Reward
	if e.reward == nil {
		e.reward = reward.Constant(1)
	}

	e.inst = fmu.NewInstance(model)
	if cfg.MaxEventIterations > 0 {
		e.inst.SetMaxEventIterations(cfg.MaxEventIterations)
	}
	e.sync = fmu.NewSynchronizer(e.inst)
	e.stepper = sim.NewStepper(e.sync, solver, e.logger)

	e.hist.SetColumns(cfg.columnSpec())
	e.columns = e.hist.Columns()
	e.outputs = history.Flatten(cfg.Outputs)

	for name, p := range cfg.Params {
		e.params = append(e.params, scheduled{name: name, param: p})
	}
	sort.Slice(e.params, func(i, j int) bool { return e.params[i].name < e.params[j].name })
	for _, p := range e.params {
		e.paramNames = append(e.paramNames, p.name)
	}

	e.clock = NewClock(cfg.TimeStart, cfg.TimeStep, cfg.MaxEpisodeSteps)
	e.measurement = make([]float64, len(cfg.Measurement))
	return e, nil
}

func (e *Env) pushParams(t float64) error {
	if len(e.params) == 0 {
		return nil
	}
	values := make([]float64, len(e.params))
	for i, p := range e.params {
		values[i] = p.param.At(t)
	}
	return e.sync.Push(e.paramNames, values)
}

func (e *Env) observation(outputs []float64) []float64 {
	obs := make([]float64, 0, len(outputs)+len(e.measurement))
	obs = append(obs, outputs...)
	return append(obs, e.measurement...)
}

// Reset restarts the model and returns the initial observation. The
// initial observation is produced by one integration over the first
// interval, which is not consumed: the first Step integrates it again.
func (e *Env) Reset() ([]float64, error) {
	e.logger.Debug("resetting model")
	e.phase = uninitialized

	if err := e.inst.Reset(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := e.sync.Resolve(e.paramNames); err != nil {
		return nil, fmt.Errorf("reset: model_params: %w", err)
	}
	if err := e.pushParams(e.cfg.TimeStart); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	events, err := e.inst.Initialize(e.cfg.TimeStart)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := e.sync.BindOutputs(e.outputs); err != nil {
		return nil, fmt.Errorf("reset: model_output: %w", err)
	}
	if err := e.sync.Resolve(e.cfg.Inputs); err != nil {
		return nil, fmt.Errorf("reset: model_input: %w", err)
	}

	e.clock.Reset()
	e.hist.Reset()
	for i := range e.measurement {
		e.measurement[i] = 0
	}

	outputs, err := e.stepper.Advance(e.clock.Interval())
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	obs := e.observation(outputs)
	if err := e.hist.Append(obs); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	e.lastOutputs = outputs
	e.lastObs = obs
	e.failed = false
	for _, m := range e.metrics {
		m.Reset(e.columns)
	}

	e.phase = ready
	if e.clock.Expired() {
		e.phase = terminal
	}
	e.logger.Debug("model reset",
		zap.Int("event_iterations", events),
		zap.Stringer("interval", e.clock.Interval()))
	return clone(obs), nil
}

// Step applies action for one interval. Simulation failures end the
// episode with done == true and are reported through the reward and
// Info, never as an error. Errors are returned only for misuse: stepping
// before Reset or an action of the wrong length.
func (e *Env) Step(action []float64) ([]float64, float64, bool, Info, error) {
	switch e.phase {
	case uninitialized:
		return nil, 0, false, nil, fmt.Errorf("step: %w", dynamo.ErrNotReset)
	case terminal:
		e.logger.Warn("step called after the episode returned done; call Reset before stepping again",
			zap.Int("steps", e.clock.Steps()))
		return clone(e.lastObs), math.Inf(-1), true, Info{}, nil
	}

	if len(action) != len(e.cfg.Inputs) {
		err := fmt.Errorf("%w: action has %d values, model has %d inputs", dynamo.ErrArity, len(action), len(e.cfg.Inputs))
		e.logger.Error("invalid action", zap.Error(err))
		return nil, 0, false, nil, err
	}
	e.phase = running

	iv := e.clock.Interval()
	e.logger.Debug("step", zap.Stringer("interval", iv), zap.Float64s("action", action))

	if err := e.sync.Push(e.cfg.Inputs, action); err != nil {
		return e.fail(action, err)
	}
	if err := e.pushParams(iv.T0); err != nil {
		return e.fail(action, err)
	}
	outputs, err := e.stepper.Advance(iv)
	if err != nil {
		return e.fail(action, err)
	}

	obs := e.observation(outputs)
	if err := e.hist.Append(obs); err != nil {
		return nil, 0, false, nil, err
	}
	e.lastOutputs = outputs
	e.lastObs = obs

	r, ok := e.reward(e.columns, obs)
	if !ok {
		r = math.NaN()
	}
	e.failed = !ok || math.IsNaN(r) || math.IsInf(r, -1)

	e.clock.tick()
	done := e.failed || e.clock.Expired()
	if !done {
		e.clock.advance()
	}
	e.observe(action, obs, r)
	if done {
		e.finish()
	}
	return clone(obs), r, done, Info{}, nil
}

// fail ends the episode after a model or integration fault. The model
// state has been restored to the interval start where possible, so the
// observation repeats the last known outputs.
func (e *Env) fail(action []float64, cause error) ([]float64, float64, bool, Info, error) {
	outputs := e.lastOutputs
	if e.inst.Mode() == fmu.Continuous {
		if out, err := e.sync.PullOutputs(); err == nil {
			outputs = out
		}
	}
	obs := e.observation(outputs)
	if err := e.hist.Append(obs); err != nil {
		return nil, 0, false, nil, errors.Join(cause, err)
	}
	e.lastOutputs = outputs
	e.lastObs = obs
	e.failed = true
	e.clock.tick()

	r := math.Inf(-1)
	e.observe(action, obs, r)
	e.logger.Warn("simulation failed", zap.Stringer("interval", e.clock.Interval()), zap.Error(cause))
	e.finish()
	return clone(obs), r, true, Info{"error": cause.Error()}, nil
}

func (e *Env) observe(action, obs []float64, r float64) {
	for _, m := range e.metrics {
		m.Observe(action, obs, r)
	}
}

func (e *Env) finish() {
	e.phase = terminal
	fields := []zap.Field{
		zap.Stringer("status", e.Status()),
		zap.Int("steps", e.clock.Steps()),
	}
	for _, m := range e.metrics {
		fields = append(fields, zap.Float64(m.Name(), m.Value()))
	}
	e.logger.Info("episode terminated", fields...)
}

// SetMeasurement sets the values appended to every following observation.
func (e *Env) SetMeasurement(values []float64) error {
	if len(values) != len(e.measurement) {
		return fmt.Errorf("%w: measurement has %d values, want %d", dynamo.ErrArity, len(values), len(e.measurement))
	}
	copy(e.measurement, values)
	return nil
}

func (e *Env) AddMetric(m metrics.Metric) {
	m.Reset(e.columns)
	e.metrics = append(e.metrics, m)
}

// Metrics returns the current value of every attached metric.
func (e *Env) Metrics() map[string]float64 { return metrics.Snapshot(e.metrics) }

// Render returns figures of the episode history. It does nothing unless
// close is set and the viz mode is episode.
func (e *Env) Render(close bool) ([]viz.Figure, error) {
	if !close || e.cfg.VizMode != VizEpisode {
		return nil, nil
	}
	r := viz.Renderer{Start: e.cfg.TimeStart, Step: e.cfg.TimeStep}
	return r.Render(e.hist, e.filter)
}

// Close finishes rendering and returns any figures produced.
func (e *Env) Close() ([]viz.Figure, error) {
	return e.Render(true)
}

func (e *Env) Status() Status {
	switch {
	case e.failed:
		return DoneFailure
	case e.clock.Expired():
		return DoneTimeLimit
	}
	return Running
}

// Done reports whether the current episode has ended.
func (e *Env) Done() bool { return e.phase == terminal }

func (e *Env) Clock() Clock { return e.clock }

func (e *Env) Config() Config { return e.cfg }

func (e *Env) Columns() []string { return e.columns }

func (e *Env) Inputs() []string { return e.cfg.Inputs }

func (e *Env) History() history.History { return e.hist }

func (e *Env) Filter() *viz.Filter { return e.filter }

// Observation returns the most recent observation.
func (e *Env) Observation() []float64 { return clone(e.lastObs) }

// Pull reads named model variables.
func (e *Env) Pull(names ...string) ([]float64, error) { return e.sync.Pull(names) }

func (e *Env) Solver() string { return e.stepper.Solver().Name() }

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
