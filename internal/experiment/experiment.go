// Package experiment runs agents against grid environments built from a
// configuration: single episodes, repeated episodes and parallel sweeps.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/control"
	"github.com/san-kum/gridgym/internal/env"
	"github.com/san-kum/gridgym/internal/grid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer is called after every step with the step index, observation,
// reward and done flag.
type Observer func(step int, obs []float64, reward float64, done bool)

type Option func(*Experiment)

func WithLogger(l *zap.Logger) Option {
	return func(x *Experiment) {
		if l != nil {
			x.logger = l
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(x *Experiment) { x.registry = r }
}

func WithObserver(fn Observer) Option {
	return func(x *Experiment) { x.observers = append(x.observers, fn) }
}

type Experiment struct {
	id        string
	cfg       *config.Config
	logger    *zap.Logger
	registry  *Registry
	observers []Observer

	net   grid.Network
	env   *env.Env
	agent control.Agent
}

// Result summarizes one episode.
type Result struct {
	RunID    string             `json:"run_id"`
	Episode  int                `json:"episode"`
	Steps    int                `json:"steps"`
	Return   float64            `json:"return"`
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Solver   string             `json:"solver"`
	Metrics  map[string]float64 `json:"metrics"`
	Duration time.Duration      `json:"duration"`
}

// New builds the grid model, environment and agent described by cfg.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	x := &Experiment{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.registry == nil {
		x.registry = NewRegistry()
	}
	x.logger = x.logger.With(zap.String("run_id", x.id))

	net, err := cfg.GridNetwork()
	if err != nil {
		return nil, err
	}
	model, err := grid.NewModel(net)
	if err != nil {
		return nil, err
	}
	ec, err := cfg.EnvConfig(net)
	if err != nil {
		return nil, err
	}
	x.agent, err = x.registry.GetAgent(cfg.Agent, ec.Inputs, ec.TimeStep)
	if err != nil {
		return nil, err
	}
	x.env, err = env.New(model, ec,
		env.WithLogger(x.logger),
		env.WithMetrics(x.registry.DefaultMetrics()...))
	if err != nil {
		return nil, err
	}
	x.net = net
	return x, nil
}

func (x *Experiment) ID() string { return x.id }

func (x *Experiment) Env() *env.Env { return x.env }

func (x *Experiment) Agent() control.Agent { return x.agent }

func (x *Experiment) Network() grid.Network { return x.net }

func (x *Experiment) Config() *config.Config { return x.cfg }

// Episode runs one episode from Reset until done. Cancelling ctx stops
// the episode between steps and returns ctx.Err().
func (x *Experiment) Episode(ctx context.Context, n int) (*Result, error) {
	start := time.Now()
	obs, err := x.env.Reset()
	if err != nil {
		return nil, err
	}
	if err := x.agent.Reset(x.env.Columns()); err != nil {
		return nil, err
	}

	res := &Result{RunID: x.id, Episode: n, Solver: x.env.Solver()}
	for done := x.env.Done(); !done; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var (
			r    float64
			info env.Info
		)
		obs, r, done, info, err = x.env.Step(x.agent.Act(obs))
		if err != nil {
			return nil, fmt.Errorf("episode %d step %d: %w", n, res.Steps, err)
		}
		res.Steps++
		res.Return += r
		if msg, ok := info["error"].(string); ok {
			res.Error = msg
		}
		for _, fn := range x.observers {
			fn(res.Steps, obs, r, done)
		}
	}

	res.Status = x.env.Status().String()
	res.Metrics = x.env.Metrics()
	res.Duration = time.Since(start)
	x.logger.Info("episode finished",
		zap.Int("episode", n),
		zap.Int("steps", res.Steps),
		zap.Float64("return", res.Return),
		zap.String("status", res.Status),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// Run runs cfg.Episodes episodes, at least one.
func (x *Experiment) Run(ctx context.Context) ([]*Result, error) {
	n := x.cfg.Episodes
	if n < 1 {
		n = 1
	}
	results := make([]*Result, 0, n)
	for i := 0; i < n; i++ {
		res, err := x.Episode(ctx, i)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Ensemble runs one experiment per configuration with at most limit
// running at once. Results keep the order of cfgs. The first error
// cancels the remaining runs.
func Ensemble(ctx context.Context, cfgs []*config.Config, limit int, opts ...Option) ([][]*Result, error) {
	results := make([][]*Result, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			x, err := New(cfg, opts...)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			res, err := x.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sweep returns one copy of base per value with the named model
// parameter held constant at that value.
func Sweep(base *config.Config, param string, values []float64) []*config.Config {
	cfgs := make([]*config.Config, len(values))
	for i, v := range values {
		cfg := base.Clone()
		if cfg.ModelParams == nil {
			cfg.ModelParams = make(map[string]config.ParamConfig)
		}
		cfg.ModelParams[param] = config.ConstantParam(v)
		cfgs[i] = cfg
	}
	return cfgs
}
