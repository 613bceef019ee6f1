// Package tui is the terminal front end: an interactive episode browser
// built on Bubble Tea and a plain live printer for batch runs.
package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/control"
	"github.com/san-kum/gridgym/internal/experiment"
	"github.com/san-kum/gridgym/internal/viz"
	"go.uber.org/zap"
)

// Entry is one runnable configuration in the menu.
type Entry struct {
	Model  string
	Preset string
	Config *config.Config
}

func (e Entry) Name() string {
	if e.Preset == "" {
		return e.Model
	}
	return e.Model + "/" + e.Preset
}

// PresetEntries lists every built-in preset.
func PresetEntries() []Entry {
	var entries []Entry
	for _, model := range config.ListModels() {
		for _, preset := range config.ListPresets(model) {
			entries = append(entries, Entry{Model: model, Preset: preset, Config: config.GetPreset(model, preset)})
		}
	}
	return entries
}

type state int

const (
	stateMenu state = iota
	stateConfig
	stateSim
)

// tunable model parameters shown on the config screen.
var paramNames = []string{"load.R", "load.L", "load.breaker", "bus.C", "net.freq"}

type model struct {
	state   state
	cursor  int
	entries []Entry
	sel     Entry
	logger  *zap.Logger

	styles viz.Styles
	theme  int

	params      map[string]float64
	edited      map[string]bool
	paramCursor int
	editing     bool
	editBuf     string

	x          *experiment.Experiment
	gainCursor int
	obs        []float64
	ret        float64
	lastReward float64
	status     string
	failure    string
	err        error
	paused     bool
	speed      int
	lastFrame  time.Time
	fps        float64

	width  int
	height int
}

func newModel(entries []Entry, logger *zap.Logger) model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return model{
		state:   stateMenu,
		entries: entries,
		logger:  logger,
		styles:  viz.NewStyles(viz.ThemeDefault),
		speed:   1,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	if m.state == stateSim {
		return tick()
	}
	return nil
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.state != stateSim || m.x == nil {
			return m, nil
		}
		if !m.paused {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1 / dt
				}
			}
			m.lastFrame = now
			for i := 0; i < m.speed && !m.x.Env().Done(); i++ {
				m.step()
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.state {
	case stateMenu:
		return m.menuKey(msg)
	case stateConfig:
		return m.configKey(msg)
	case stateSim:
		return m.simKey(msg)
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.entries) == 0 {
			return m, nil
		}
		m.sel = m.entries[m.cursor]
		m.loadParams()
		m.state = stateConfig
	case "t":
		m.cycleTheme()
	}
	return m, nil
}

func (m model) configKey(msg tea.KeyMsg) (model, tea.Cmd) {
	name := paramNames[m.paramCursor]
	if m.editing {
		switch msg.String() {
		case "enter":
			if v, err := strconv.ParseFloat(m.editBuf, 64); err == nil {
				m.setParam(name, v)
			}
			m.editing = false
			m.editBuf = ""
		case "esc":
			m.editing = false
			m.editBuf = ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.-e") {
				m.editBuf += s
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		m.state = stateMenu
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(paramNames)-1 {
			m.paramCursor++
		}
	case "enter", " ":
		m.editing = true
		m.editBuf = strconv.FormatFloat(m.params[name], 'g', -1, 64)
	case "left", "h":
		m.setParam(name, m.params[name]*0.9)
	case "right", "l":
		m.setParam(name, m.params[name]*1.1)
	case "s":
		m.start()
		m.state = stateSim
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) simKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.x = nil
		m.state = stateMenu
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		m.reset()
		return m, tea.ClearScreen
	case "c":
		m.x = nil
		m.state = stateConfig
		return m, tea.ClearScreen
	case "+", "=":
		m.speed = min(m.speed*2, 64)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "0":
		m.speed = 1
	case "left", "h":
		m.nudge(-10)
	case "right", "l":
		m.nudge(10)
	case "g":
		if _, names := m.gains(); len(names) > 0 {
			m.gainCursor = (m.gainCursor + 1) % len(names)
		}
	case "up", "k":
		m.scaleGain(1.1)
	case "down", "j":
		m.scaleGain(0.9)
	case "t":
		m.cycleTheme()
	}
	return m, nil
}

// gains returns the running agent's gains when it can be tuned.
func (m *model) gains() (control.Tunable, []string) {
	if m.x == nil {
		return nil, nil
	}
	tun, ok := m.x.Agent().(control.Tunable)
	if !ok {
		return nil, nil
	}
	g := tun.Gains()
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return tun, names
}

func (m *model) scaleGain(f float64) {
	tun, names := m.gains()
	if len(names) == 0 {
		return
	}
	name := names[m.gainCursor%len(names)]
	tun.SetGain(name, tun.Gains()[name]*f)
}

func (m *model) cycleTheme() {
	m.theme = (m.theme + 1) % len(viz.Themes)
	m.styles = viz.NewStyles(viz.Themes[m.theme])
}

// loadParams shows the network's nominal values; only edited parameters
// override the preset.
func (m *model) loadParams() {
	m.paramCursor = 0
	m.edited = make(map[string]bool)
	m.params = make(map[string]float64)
	net, err := m.sel.Config.GridNetwork()
	if err != nil {
		m.err = err
		return
	}
	breaker := 1.0
	if net.LoadOpen {
		breaker = 0
	}
	m.params["load.R"] = net.LoadR
	m.params["load.L"] = net.LoadL
	m.params["load.breaker"] = breaker
	m.params["bus.C"] = net.C
	m.params["net.freq"] = net.Freq
}

func (m *model) setParam(name string, v float64) {
	m.params[name] = v
	m.edited[name] = true
}

func (m *model) start() {
	cfg := m.sel.Config.Clone()
	if cfg.ModelParams == nil {
		cfg.ModelParams = make(map[string]config.ParamConfig)
	}
	for name := range m.edited {
		cfg.ModelParams[name] = config.ConstantParam(m.params[name])
	}
	m.speed = 1
	m.paused = false
	m.gainCursor = 0
	m.lastFrame = time.Time{}
	m.x, m.err = experiment.New(cfg, experiment.WithLogger(m.logger))
	if m.err != nil {
		m.x = nil
		return
	}
	m.reset()
}

func (m *model) reset() {
	if m.x == nil {
		return
	}
	m.ret, m.lastReward, m.failure = 0, 0, ""
	m.obs, m.err = m.x.Env().Reset()
	if m.err == nil {
		m.err = m.x.Agent().Reset(m.x.Env().Columns())
	}
	m.status = m.x.Env().Status().String()
}

func (m *model) step() {
	if m.err != nil {
		return
	}
	e := m.x.Env()
	obs, r, _, info, err := e.Step(m.x.Agent().Act(m.obs))
	if err != nil {
		m.err = err
		return
	}
	m.obs = obs
	m.lastReward = r
	m.ret += r
	if msg, ok := info["error"].(string); ok {
		m.failure = msg
	}
	m.status = e.Status().String()
}

// nudge shifts the d-axis voltage of a constant agent.
func (m *model) nudge(dv float64) {
	if m.x == nil {
		return
	}
	c, ok := m.x.Agent().(*control.Constant)
	if !ok {
		return
	}
	u := append([]float64(nil), c.U...)
	for i := 0; i < len(u); i += 2 {
		u[i] += dv
	}
	c.SetControl(u)
}

func (m model) View() string {
	switch m.state {
	case stateMenu:
		return m.viewMenu()
	case stateConfig:
		return m.viewConfig()
	case stateSim:
		return m.viewSim()
	}
	return ""
}

func (m model) viewMenu() string {
	s := m.styles
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("    " + s.Separator(26) + "\n")
	b.WriteString("           " + s.Title.Render("g r i d g y m") + "\n")
	b.WriteString("    " + s.Separator(26) + "\n\n")

	for i, e := range m.entries {
		desc := describe(e)
		if i == m.cursor {
			b.WriteString("      " + s.Title.Render("▸ ") + s.Value.Render(fmt.Sprintf("%-30s", e.Name())) + s.Label.Render(desc) + "\n")
		} else {
			b.WriteString("        " + s.Label.Render(fmt.Sprintf("%-30s", e.Name())) + s.Subtle.Render(desc) + "\n")
		}
	}

	b.WriteString("\n" + s.KeyHint.Render("      ↑↓ select   enter configure   t theme   q quit") + "\n")
	return b.String()
}

func describe(e Entry) string {
	if e.Config == nil {
		return ""
	}
	steps := "unbounded"
	if !e.Config.Unbounded() {
		steps = fmt.Sprintf("%d steps", *e.Config.MaxEpisodeSteps)
	}
	return fmt.Sprintf("%s agent, %s", e.Config.Agent.Kind, steps)
}

func (m model) viewConfig() string {
	s := m.styles
	var b strings.Builder

	b.WriteString("\n      " + s.Title.Render(m.sel.Name()) + "  " + s.Label.Render(describe(m.sel)) + "\n")
	b.WriteString("      " + s.Separator(40) + "\n\n")

	for i, name := range paramNames {
		val := fmt.Sprintf("%10.4g", m.params[name])
		if m.editing && i == m.paramCursor {
			val = fmt.Sprintf("%10s", m.editBuf+"▋")
		}
		mark := " "
		if m.edited[name] {
			mark = "*"
		} else if _, scheduled := m.sel.Config.ModelParams[name]; scheduled {
			mark = "~"
		}
		if i == m.paramCursor {
			b.WriteString("      " + s.Title.Render("▸ ") + s.Value.Render(fmt.Sprintf("%-14s", name)) + s.Title.Render(val) + " " + mark + "\n")
		} else {
			b.WriteString("        " + s.Label.Render(fmt.Sprintf("%-14s", name)) + s.Label.Render(val) + " " + mark + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("\n      " + s.Failed.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + s.KeyHint.Render("      ↑↓ select  ←→ scale  enter edit  s start  esc back   (* edited, ~ scheduled)") + "\n")
	return b.String()
}

func (m model) viewSim() string {
	s := m.styles
	var b strings.Builder

	if m.x == nil {
		b.WriteString("\n   " + s.Failed.Render(fmt.Sprint(m.err)) + "\n")
		b.WriteString("\n" + s.KeyHint.Render("   c config  q menu") + "\n")
		return b.String()
	}

	e := m.x.Env()
	clock := e.Clock()
	badge := s.Status(m.status)
	if m.paused {
		badge = s.Done.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s  %s  %s\n", s.Title.Render(m.sel.Name()), badge, s.Label.Render(e.Solver())))

	progress := 0.0
	limit := "∞"
	if clock.Bounded() {
		progress = float64(clock.Steps()) / float64(max(e.Config().MaxEpisodeSteps, 1))
		limit = strconv.Itoa(e.Config().MaxEpisodeSteps)
	}
	info := fmt.Sprintf("step %d/%s  t=%.4fs  x%d  %.0ffps", clock.Steps(), limit, clock.Interval().T1, m.speed, m.fps)
	b.WriteString("   " + s.ProgressBar(progress, 36) + "  " + s.Label.Render(info) + "\n\n")

	width := max(m.width-16, 30)
	charts, err := viz.ASCII{Width: width, Height: 6, Color: true, Window: width}.Render(e.History(), e.Filter())
	if err != nil {
		b.WriteString("   " + s.Failed.Render(err.Error()) + "\n")
	}
	room := max((m.height-14)/8, 1)
	for i, chart := range charts {
		if i >= room {
			b.WriteString(s.Subtle.Render(fmt.Sprintf("   … %d more plots", len(charts)-room)) + "\n")
			break
		}
		b.WriteString(indent(chart, "   "))
	}

	b.WriteString("\n   " + s.Metric("reward", m.lastReward) + "   " + s.Metric("return", m.ret))
	names := make([]string, 0)
	values := e.Metrics()
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString("   " + s.Metric(name, values[name]))
	}
	b.WriteString("\n")

	hint := "   space pause  ±speed  ←→ voltage  r reset  c config  t theme  q menu"
	if tun, names := m.gains(); len(names) > 0 {
		g := tun.Gains()
		b.WriteString("  ")
		for i, name := range names {
			label := fmt.Sprintf("%s=%.4g", name, g[name])
			if i == m.gainCursor%len(names) {
				b.WriteString(" " + s.Value.Render("▸"+label))
			} else {
				b.WriteString(" " + s.Label.Render(" "+label))
			}
		}
		b.WriteString("\n")
		hint = "   space pause  ±speed  g gain  ↑↓ tune  r reset  c config  t theme  q menu"
	}

	if m.failure != "" {
		b.WriteString("   " + s.Failed.Render(m.failure) + "\n")
	}
	if m.err != nil {
		b.WriteString("   " + s.Failed.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + s.KeyHint.Render(hint) + "\n")
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// RunInteractive opens the preset browser.
func RunInteractive(logger *zap.Logger) error {
	p := tea.NewProgram(newModel(PresetEntries(), logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Watch runs one configuration directly, skipping the menu.
func Watch(name string, cfg *config.Config, logger *zap.Logger) error {
	m := newModel([]Entry{{Model: name, Config: cfg}}, logger)
	m.sel = m.entries[0]
	m.loadParams()
	m.start()
	m.state = stateSim
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
