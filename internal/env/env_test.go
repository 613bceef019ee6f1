package env_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/env"
	"github.com/san-kum/gridgym/internal/fmu/fmutest"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/integrators"
	"github.com/san-kum/gridgym/internal/metrics"
	"github.com/san-kum/gridgym/internal/reward"
	"github.com/san-kum/gridgym/internal/viz"
)

func baseConfig() env.Config {
	cfg := env.DefaultConfig()
	cfg.TimeStep = 0.1
	cfg.MaxEpisodeSteps = 3
	cfg.SolverMethod = "RK45"
	cfg.SolverOptions = integrators.Options{RelTol: 1e-8, AbsTol: 1e-10}
	cfg.Inputs = []string{"u0"}
	cfg.Outputs = history.Names("x0")
	cfg.VizMode = env.VizNone
	return cfg
}

// sequence returns a reward function yielding values in order and 1
// once they run out.
func sequence(values ...float64) reward.Func {
	i := 0
	return func([]string, []float64) (float64, bool) {
		if i >= len(values) {
			return 1, true
		}
		v := values[i]
		i++
		return v, true
	}
}

var _ = Describe("Env", func() {
	var (
		model *fmutest.Linear
		cfg   env.Config
		logs  *observer.ObservedLogs
		e     *env.Env
	)

	build := func(opts ...env.Option) {
		var core zapcore.Core
		core, logs = observer.New(zapcore.WarnLevel)
		var err error
		e, err = env.New(model, cfg, append([]env.Option{env.WithLogger(zap.New(core))}, opts...)...)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		model = fmutest.Decay(1, 1)
		cfg = baseConfig()
	})

	Describe("construction", func() {
		It("rejects a configuration without inputs", func() {
			cfg.Inputs = nil
			_, err := env.New(model, cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		})

		It("rejects malformed viz_cols", func() {
			cfg.VizCols = viz.Regex("(")
			_, err := env.New(model, cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		})

		It("fails fast when stepping before reset", func() {
			build()
			_, _, _, _, err := e.Step([]float64{0})
			Expect(err).To(MatchError(dynamo.ErrNotReset))
		})
	})

	Describe("reset", func() {
		It("returns outputs followed by measurement", func() {
			cfg.Measurement = []string{"agent.m"}
			build()
			obs, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(obs).To(HaveLen(2))
			Expect(obs[0]).To(BeNumerically("~", math.Exp(-0.1), 1e-5))
			Expect(obs[1]).To(Equal(0.0))
			Expect(e.Columns()).To(Equal([]string{"x0", "agent.m"}))
			Expect(e.History().Len()).To(Equal(1))
			Expect(e.Done()).To(BeFalse())
			Expect(e.Status()).To(Equal(env.Running))
		})

		It("settles discrete events before entering continuous mode", func() {
			model.EventIterations = 3
			build()
			_, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(model.Count("ProcessEvents")).To(Equal(4))
		})

		It("is terminal at once when max_episode_steps is zero", func() {
			cfg.MaxEpisodeSteps = 0
			build()
			_, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Done()).To(BeTrue())

			_, r, done, _, err := e.Step([]float64{0})
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			Expect(math.IsInf(r, -1)).To(BeTrue())
		})

		It("clears history from a previous episode", func() {
			build()
			_, _ = e.Reset()
			_, _, _, _, _ = e.Step([]float64{0})
			Expect(e.History().Len()).To(Equal(2))
			_, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(e.History().Len()).To(Equal(1))
			Expect(e.Clock().Interval()).To(Equal(dynamo.Interval{T0: 0, T1: 0.1}))
		})

		It("reports unknown output names", func() {
			cfg.Outputs = history.Names("nope")
			build()
			_, err := e.Reset()
			Expect(err).To(MatchError(dynamo.ErrUnknownVariable))
		})
	})

	Describe("scenario A: time limit", func() {
		It("ends exactly on the third step with reward 1 each", func() {
			build()
			_, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())

			want := []dynamo.Interval{{T0: 0.1, T1: 0.2}, {T0: 0.2, T1: 0.30000000000000004}}
			for i := 0; i < 3; i++ {
				obs, r, done, info, err := e.Step([]float64{0})
				Expect(err).NotTo(HaveOccurred())
				Expect(obs).To(HaveLen(1))
				Expect(r).To(Equal(1.0))
				Expect(info).To(BeEmpty())
				Expect(done).To(Equal(i == 2))
				if i < 2 {
					Expect(e.Clock().Interval()).To(Equal(want[i]))
				}
			}
			Expect(e.Status()).To(Equal(env.DoneTimeLimit))
			Expect(e.Clock().Interval()).To(Equal(want[1]))
			Expect(e.History().Len()).To(Equal(4))
		})

		It("returns the same sentinel on every post-terminal step and warns", func() {
			build()
			_, _ = e.Reset()
			var last []float64
			for i := 0; i < 3; i++ {
				last, _, _, _, _ = e.Step([]float64{0})
			}
			model.ResetCalls()
			iv := e.Clock().Interval()

			for i := 0; i < 2; i++ {
				obs, r, done, info, err := e.Step([]float64{1})
				Expect(err).NotTo(HaveOccurred())
				Expect(obs).To(Equal(last))
				Expect(math.IsInf(r, -1)).To(BeTrue())
				Expect(done).To(BeTrue())
				Expect(info).To(Equal(env.Info{}))
			}
			Expect(e.Clock().Interval()).To(Equal(iv))
			Expect(model.Calls).To(BeEmpty())
			Expect(logs.FilterMessageSnippet("after the episode returned done").Len()).To(Equal(2))
		})

		It("never ends on time when unbounded", func() {
			cfg.MaxEpisodeSteps = env.Unbounded
			build()
			_, _ = e.Reset()
			for i := 0; i < 50; i++ {
				_, _, done, _, err := e.Step([]float64{0})
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(BeFalse())
			}
			Expect(e.Clock().Steps()).To(Equal(50))
		})
	})

	Describe("scenario B: failure signalled by the reward", func() {
		It("ends on the NaN step and freezes the clock", func() {
			cfg.MaxEpisodeSteps = 10
			cfg.Reward = sequence(1, math.NaN())
			build()
			_, _ = e.Reset()

			_, r, done, _, _ := e.Step([]float64{0})
			Expect(r).To(Equal(1.0))
			Expect(done).To(BeFalse())

			_, r, done, _, err := e.Step([]float64{0})
			Expect(err).NotTo(HaveOccurred())
			Expect(math.IsNaN(r)).To(BeTrue())
			Expect(done).To(BeTrue())
			Expect(e.Status()).To(Equal(env.DoneFailure))

			iv := e.Clock().Interval()
			Expect(iv.T0).To(BeNumerically("~", 0.1, 1e-12))
			_, _, _, _, _ = e.Step([]float64{0})
			Expect(e.Clock().Interval()).To(Equal(iv))
		})

		DescribeTable("classifies reward values",
			func(value float64, ok bool, wantDone bool) {
				cfg.MaxEpisodeSteps = 10
				cfg.Reward = func([]string, []float64) (float64, bool) { return value, ok }
				build()
				_, _ = e.Reset()
				_, r, done, _, err := e.Step([]float64{0})
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(Equal(wantDone))
				if !ok {
					Expect(math.IsNaN(r)).To(BeTrue())
				}
			},
			Entry("negative infinity fails", math.Inf(-1), true, true),
			Entry("positive infinity does not fail", math.Inf(1), true, false),
			Entry("undefined fails", 0.0, false, true),
			Entry("finite negative does not fail", -1e9, true, false),
		)
	})

	Describe("scenario C: action arity", func() {
		It("rejects a wrong-length action before touching the model", func() {
			build()
			_, _ = e.Reset()
			model.ResetCalls()
			iv := e.Clock().Interval()

			_, _, _, _, err := e.Step([]float64{1, 2})
			Expect(err).To(MatchError(dynamo.ErrArity))
			Expect(model.Calls).To(BeEmpty())
			Expect(e.Clock().Interval()).To(Equal(iv))
			Expect(e.Done()).To(BeFalse())
		})
	})

	Describe("integration failure", func() {
		It("ends the episode without returning an error", func() {
			cfg.MaxEpisodeSteps = 10
			build()
			_, _ = e.Reset()
			before := e.Observation()
			model.DerivativeHook = func(float64, []float64, []float64) ([]float64, error) {
				return []float64{math.NaN()}, nil
			}

			obs, r, done, info, err := e.Step([]float64{0})
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
			Expect(math.IsInf(r, -1)).To(BeTrue())
			Expect(info).To(HaveKey("error"))
			Expect(obs).To(Equal(before))
			Expect(e.Status()).To(Equal(env.DoneFailure))
			Expect(e.History().Len()).To(Equal(2))
			Expect(logs.FilterMessage("simulation failed").Len()).To(Equal(1))
		})

		It("leaves the env uninitialized when the initial integration fails", func() {
			build()
			model.DerivativeHook = func(float64, []float64, []float64) ([]float64, error) {
				return []float64{math.NaN()}, nil
			}
			_, err := e.Reset()
			Expect(err).To(HaveOccurred())

			_, _, _, _, err = e.Step([]float64{0})
			Expect(err).To(MatchError(dynamo.ErrNotReset))

			model.DerivativeHook = nil
			obs, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(obs).To(HaveLen(1))
			_, _, done, _, err := e.Step([]float64{0})
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})
	})

	Describe("model synchronization", func() {
		It("round trips pushed inputs", func() {
			build()
			_, _ = e.Reset()
			_, _, _, _, err := e.Step([]float64{0.75})
			Expect(err).NotTo(HaveOccurred())
			got, err := e.Pull("u0")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]float64{0.75}))
		})

		It("evaluates parameter schedules at the interval start", func() {
			model.Params = []string{"gain", "offset"}
			cfg.Params = map[string]env.Param{
				"gain":   env.TimeFunc(func(t float64) float64 { return 10 * t }),
				"offset": env.Constant(2),
			}
			build()
			_, _ = e.Reset()
			Expect(model.Param("gain")).To(Equal(0.0))
			Expect(model.Param("offset")).To(Equal(2.0))

			_, _, _, _, _ = e.Step([]float64{0})
			_, _, _, _, _ = e.Step([]float64{0})
			Expect(model.Param("gain")).To(BeNumerically("~", 1.0, 1e-12))
		})

		It("appends measurement values to observations", func() {
			cfg.Measurement = []string{"agent.err"}
			build()
			_, _ = e.Reset()
			Expect(e.SetMeasurement([]float64{1, 2})).To(MatchError(dynamo.ErrArity))
			Expect(e.SetMeasurement([]float64{7})).To(Succeed())
			obs, _, _, _, _ := e.Step([]float64{0})
			Expect(obs).To(HaveLen(2))
			Expect(obs[1]).To(Equal(7.0))
		})

		It("drives the model with the stiff solver", func() {
			cfg.SolverMethod = "LSODA"
			build()
			obs, err := e.Reset()
			Expect(err).NotTo(HaveOccurred())
			Expect(obs[0]).To(BeNumerically("~", math.Exp(-0.1), 1e-4))
			Expect(e.Solver()).To(Equal("LSODA"))
		})
	})

	Describe("metrics", func() {
		It("observes every step of the episode", func() {
			ret := metrics.NewReturn()
			build(env.WithMetrics(ret))
			_, _ = e.Reset()
			for i := 0; i < 3; i++ {
				_, _, _, _, _ = e.Step([]float64{0})
			}
			Expect(ret.Steps()).To(Equal(3))
			Expect(e.Metrics()).To(HaveKeyWithValue("return", 3.0))

			_, _ = e.Reset()
			Expect(ret.Steps()).To(Equal(0))
		})
	})

	Describe("rendering", func() {
		BeforeEach(func() {
			model = fmutest.Decay(2, 1)
			cfg.Inputs = []string{"u0", "u1"}
			cfg.Outputs = history.Names("x0", "x1")
		})

		It("does nothing unless closing in episode mode", func() {
			cfg.VizMode = env.VizEpisode
			build()
			_, _ = e.Reset()
			figs, err := e.Render(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(figs).To(BeNil())

			cfg.VizMode = env.VizStep
			build()
			_, _ = e.Reset()
			figs, err = e.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(figs).To(BeNil())
		})

		It("renders one figure per selected column group", func() {
			cfg.VizMode = env.VizEpisode
			cfg.VizCols = viz.Globs{Patterns: []string{"*1"}}
			build()
			_, _ = e.Reset()
			_, _, _, _, _ = e.Step([]float64{0, 0})

			figs, err := e.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(figs).To(HaveLen(1))
			Expect(figs[0].Columns).To(Equal([]string{"x1"}))
		})
	})
})
