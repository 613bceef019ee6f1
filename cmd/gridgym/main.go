package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/experiment"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/storage"
	"github.com/san-kum/gridgym/internal/tui"
	"github.com/san-kum/gridgym/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	dataDir   string
	logLevel  string
	logFormat string

	configFile string
	preset     string
	dt         float64
	steps      int
	solver     string
	agent      string
	values     []float64
	episodes   int
	params     []string
	vizCols    string

	live      bool
	frameRate int
	noStore   bool
	plotDir   string
	figFormat string

	exportFormat string

	sweepParam  string
	sweepValues []float64
	parallel    int
	width       int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd registers the commands. The root opens the interactive
// browser when no subcommand is given.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gridgym",
		Short:         "microgrid control environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			return tui.RunInteractive(logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel)))
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".gridgym", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log encoding (console, json)")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run episodes and store them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEpisodes,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&live, "live", false, "print live sparklines while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 20, "live frame rate")
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "do not store the runs")
	runCmd.Flags().StringVar(&plotDir, "plots", "", "write episode figures to this directory")
	runCmd.Flags().StringVar(&figFormat, "format", "png", "figure format (png, svg, pdf)")

	watchCmd := &cobra.Command{
		Use:   "watch [model]",
		Short: "run one configuration in the terminal UI",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watch,
	}
	addConfigFlags(watchCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotDir, "out", "", "write figures to this directory instead of the terminal")
	plotCmd.Flags().StringVar(&figFormat, "format", "png", "figure format (png, svg, pdf)")
	plotCmd.Flags().StringVar(&vizCols, "viz-cols", "", "column regex overriding the stored selection")
	plotCmd.Flags().IntVar(&width, "width", 80, "chart width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format (json, yaml)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list models and their presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run one episode per parameter value in parallel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "sweep", "load.R", "model parameter to sweep")
	sweepCmd.Flags().Float64SliceVar(&sweepValues, "values", []float64{5, 10, 20, 40}, "parameter values")
	sweepCmd.Flags().IntVar(&parallel, "parallel", 4, "episodes running at once")

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "compare solver throughput on one configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  bench,
	}
	addConfigFlags(benchCmd)

	rootCmd.AddCommand(runCmd, watchCmd, listCmd, plotCmd, exportCmd, presetsCmd, sweepCmd, benchCmd)
	return rootCmd
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use a preset configuration")
	f.Float64Var(&dt, "dt", config.DefaultTimeStep, "control interval")
	f.IntVar(&steps, "steps", config.DefaultMaxEpisodeSteps, "episode length; negative for unbounded")
	f.StringVar(&solver, "solver", config.DefaultSolver, "solver method")
	f.StringVar(&agent, "agent", "zero", "agent kind")
	f.Float64SliceVar(&values, "action", nil, "constant agent action")
	f.IntVar(&episodes, "episodes", 1, "episodes to run")
	f.StringArrayVar(&params, "param", nil, "constant model parameter name=value (repeatable)")
	f.StringVar(&vizCols, "viz-cols", "", "column regex to plot")
}

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if logFormat == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}

// loadConfig resolves the configuration: a file, else a preset, else the
// defaults, with flags that were set overriding it.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := cfg.Model
	if len(args) > 0 {
		name = args[0]
	}

	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if len(args) > 0 {
			cfg.Model = args[0]
		}
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	case preset != "":
		cfg = config.GetPreset(name, preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset %q for %s (available: %v)", preset, name, config.ListPresets(name))
		}
		name += "/" + preset
	default:
		cfg.Model = name
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.TimeStep = dt
	}
	if flags.Changed("steps") {
		cfg.SetMaxEpisodeSteps(steps)
	}
	if flags.Changed("solver") {
		cfg.SolverMethod = solver
	}
	if flags.Changed("agent") {
		cfg.Agent.Kind = agent
	}
	if flags.Changed("action") {
		cfg.Agent.Values = values
		if !flags.Changed("agent") {
			cfg.Agent.Kind = "constant"
		}
	}
	if flags.Changed("episodes") {
		cfg.Episodes = episodes
	}
	if flags.Changed("viz-cols") {
		if err := cfg.VizCols.Encode(vizCols); err != nil {
			return nil, "", err
		}
	}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, "", fmt.Errorf("--param %q: want name=value", p)
		}
		var pc config.ParamConfig
		if err := yaml.Unmarshal([]byte(v), &pc); err != nil {
			return nil, "", fmt.Errorf("--param %q: %w", p, err)
		}
		if cfg.ModelParams == nil {
			cfg.ModelParams = make(map[string]config.ParamConfig)
		}
		cfg.ModelParams[k] = pc
	}
	return cfg, name, nil
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	var renderer *tui.LiveRenderer
	opts := []experiment.Option{experiment.WithLogger(logger)}
	if live {
		opts = append(opts, experiment.WithObserver(func(step int, obs []float64, r float64, done bool) {
			renderer.OnStep(step, obs, r, done)
		}))
	}
	x, err := experiment.New(cfg, opts...)
	if err != nil {
		return err
	}
	if live {
		renderer = tui.NewLiveRenderer(os.Stdout, name, x.Env().Columns(), x.Env().Filter(), frameRate)
		renderer.Start()
		defer renderer.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st := storage.New(dataDir)
	if !noStore {
		if err := st.Init(); err != nil {
			return err
		}
	}

	n := max(cfg.Episodes, 1)
	results := make([]*experiment.Result, 0, n)
	for i := 0; i < n; i++ {
		res, err := x.Episode(ctx, i)
		if err != nil {
			return err
		}
		results = append(results, res)

		id := fmt.Sprintf("%s_%d", res.RunID, i)
		if !noStore {
			meta := storage.RunMetadata{
				ID:        id,
				Model:     cfg.Model,
				Agent:     cfg.Agent.Kind,
				Solver:    res.Solver,
				TimeStep:  cfg.TimeStep,
				TimeStart: cfg.TimeStart,
				Episode:   i,
				Steps:     res.Steps,
				Status:    res.Status,
				Return:    res.Return,
				Error:     res.Error,
				Metrics:   res.Metrics,
			}
			if _, err := st.Save(meta, cfg, x.Env().History()); err != nil {
				return err
			}
		}
		if plotDir != "" {
			figs, err := x.Env().Close()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(plotDir, 0755); err != nil {
				return err
			}
			files, err := viz.SaveFigures(figs, plotDir, id, figFormat)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println("wrote", f)
			}
		}
	}

	printResults(name, results)
	return nil
}

func printResults(name string, results []*experiment.Result) {
	styles := viz.NewStyles(viz.ThemeDefault)
	fmt.Println(styles.Title.Render(name))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tEPISODE\tSTEPS\tRETURN\tSTATUS\tSOLVER\tTIME\tMETRICS")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.6g\t%s\t%s\t%v\t%s\n",
			res.RunID[:8], res.Episode, res.Steps, res.Return, res.Status, res.Solver,
			res.Duration.Round(time.Millisecond), formatMetrics(res.Metrics))
	}
	w.Flush()
	for _, res := range results {
		if res.Error != "" {
			fmt.Printf("episode %d: %s\n", res.Episode, styles.Failed.Render(res.Error))
		}
	}
}

func formatMetrics(m map[string]float64) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.4g", name, m[name])
	}
	return strings.Join(parts, " ")
}

func watch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	return tui.Watch(name, cfg, logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel)))
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tAGENT\tSOLVER\tSTEPS\tSTATUS\tRETURN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%.6g\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Agent,
			run.Solver,
			run.Steps,
			run.Status,
			run.Return,
		)
	}
	return w.Flush()
}

// storedSpec rebuilds the column structure of a run from its stored
// configuration, and the selector it was plotted with.
func storedSpec(st *storage.Store, runID string) (history.Spec, viz.Selector) {
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return nil, viz.MatchAll{}
	}
	net, err := cfg.GridNetwork()
	if err != nil {
		return nil, viz.MatchAll{}
	}
	ec, err := cfg.EnvConfig(net)
	if err != nil {
		return nil, viz.MatchAll{}
	}
	return history.Extend(ec.Outputs, ec.Measurement...), ec.VizCols
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	spec, sel := storedSpec(st, runID)
	h, _, err := st.LoadHistory(runID, spec)
	if err != nil {
		h, _, err = st.LoadHistory(runID, nil)
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("viz-cols") {
		sel = viz.Regex(vizCols)
	}
	filter, err := viz.Compile(sel)
	if err != nil {
		return err
	}
	if h.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	if plotDir != "" {
		r := viz.Renderer{Start: meta.TimeStart, Step: meta.TimeStep, XLabel: "time [s]"}
		figs, err := r.Render(h, filter)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(plotDir, 0755); err != nil {
			return err
		}
		files, err := viz.SaveFigures(figs, plotDir, runID, figFormat)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println("wrote", f)
		}
		return nil
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s  agent: %s  status: %s\n", meta.Model, meta.Agent, meta.Status)
	fmt.Printf("samples: %d\n\n", h.Len())

	charts, err := viz.ASCII{Width: width, Height: 10, Color: true}.Render(h, filter)
	if err != nil {
		return err
	}
	for _, c := range charts {
		fmt.Println(c)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	switch exportFormat {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(meta)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	return fmt.Errorf("unknown format %q", exportFormat)
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.ListModels()
	if len(args) > 0 {
		models = args
	}
	for _, model := range models {
		presets := config.ListPresets(model)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", model)
			continue
		}
		fmt.Printf("presets for %s:\n", model)
		for _, p := range presets {
			cfg := config.GetPreset(model, p)
			fmt.Printf("  %-18s %s agent\n", p, cfg.Agent.Kind)
		}
	}

	reg := experiment.NewRegistry()
	fmt.Printf("\nagents: %s\n", strings.Join(reg.ListAgents(), ", "))
	fmt.Printf("solvers: %s\n", strings.Join(reg.ListSolvers(), ", "))
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	cfg.Episodes = 1
	cfg.VizMode = "none"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, err := experiment.Ensemble(ctx, experiment.Sweep(cfg, sweepParam, sweepValues), parallel, experiment.WithLogger(logger))
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s sweep over %d values in %v\n", name, sweepParam, len(sweepValues), time.Since(start).Round(time.Millisecond))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tSTEPS\tRETURN\tSTATUS\tMETRICS\n", strings.ToUpper(sweepParam))
	for i, runs := range results {
		res := runs[0]
		fmt.Fprintf(w, "%g\t%d\t%.6g\t%s\t%s\n", sweepValues[i], res.Steps, res.Return, res.Status, formatMetrics(res.Metrics))
	}
	return w.Flush()
}

func bench(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	cfg.Episodes = 1
	cfg.VizMode = "none"
	cfg.History = "none"

	fmt.Printf("benchmarking %s\n\n", name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tSTEPS\tSTATUS\tTIME\tSTEPS/SEC")

	for _, method := range experiment.NewRegistry().ListSolvers() {
		c := cfg.Clone()
		c.SolverMethod = method
		x, err := experiment.New(c)
		if err != nil {
			return err
		}
		res, err := x.Episode(context.Background(), 0)
		if err != nil {
			return err
		}
		rate := float64(res.Steps) / res.Duration.Seconds()
		fmt.Fprintf(w, "%s\t%d\t%s\t%v\t%.0f\n", method, res.Steps, res.Status, res.Duration.Round(time.Microsecond), rate)
	}
	return w.Flush()
}
