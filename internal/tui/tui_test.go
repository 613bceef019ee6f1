package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/gridgym/internal/control"
	"github.com/san-kum/gridgym/internal/viz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetEntries(t *testing.T) {
	entries := PresetEntries()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.NotNil(t, e.Config, e.Name())
		assert.Contains(t, e.Name(), "/")
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

func TestMenuToSim(t *testing.T) {
	m := newModel(PresetEntries(), nil)
	assert.Contains(t, m.View(), "g r i d g y m")

	m = send(t, m, key("enter"))
	require.Equal(t, stateConfig, m.state)
	assert.Contains(t, m.View(), "load.R")

	// Edit load.R to 15.
	m = send(t, m, key("enter"))
	require.True(t, m.editing)
	m.editBuf = ""
	m = send(t, m, key("1"), key("5"), key("enter"))
	assert.Equal(t, 15.0, m.params["load.R"])
	assert.True(t, m.edited["load.R"])

	m = send(t, m, key("s"))
	require.Equal(t, stateSim, m.state)
	require.NoError(t, m.err)
	require.NotNil(t, m.x)
	assert.Equal(t, 15.0, *m.x.Config().ModelParams["load.R"].Constant)

	m = send(t, m, tickMsg{}, tickMsg{})
	assert.Equal(t, 2, m.x.Env().Clock().Steps())
	assert.Contains(t, m.View(), "return")

	m = send(t, m, key(" "), tickMsg{})
	assert.True(t, m.paused)
	assert.Equal(t, 2, m.x.Env().Clock().Steps())

	m = send(t, m, key("r"))
	assert.Equal(t, 0, m.x.Env().Clock().Steps())

	m = send(t, m, key("q"))
	assert.Equal(t, stateMenu, m.state)
	assert.Nil(t, m.x)
}

func TestNudgeConstantAgent(t *testing.T) {
	m := newModel(PresetEntries(), nil)
	for i, e := range m.entries {
		if e.Name() == "single_inverter/open_loop" {
			m.cursor = i
		}
	}
	m = send(t, m, key("enter"), key("s"), key("l"))
	require.NotNil(t, m.x)
	assert.Equal(t, []float64{335, 0}, m.x.Agent().Act(nil))
}

func TestTuneAgentGains(t *testing.T) {
	m := newModel(PresetEntries(), nil)
	for i, e := range m.entries {
		if e.Name() == "two_inverter/droop" {
			m.cursor = i
		}
	}
	m = send(t, m, key("enter"), key("s"))
	require.NotNil(t, m.x)
	tun, ok := m.x.Agent().(control.Tunable)
	require.True(t, ok)
	assert.Contains(t, m.View(), "p.gain")

	// Gains are sorted: p.gain, p.tau, q.gain, q.tau.
	before := tun.Gains()["p.gain"]
	m = send(t, m, key("k"))
	assert.InDelta(t, before*1.1, tun.Gains()["p.gain"], 1e-9)

	m = send(t, m, key("g"), key("j"))
	assert.InDelta(t, before*1.1, tun.Gains()["p.gain"], 1e-9)
	assert.InDelta(t, 5e-3*0.9, tun.Gains()["p.tau"], 1e-12)

	m = send(t, m, tickMsg{})
	assert.Equal(t, 1, m.x.Env().Clock().Steps())
}

func TestOpenLoopHasNoGains(t *testing.T) {
	m := newModel(PresetEntries(), nil)
	for i, e := range m.entries {
		if e.Name() == "single_inverter/open_loop" {
			m.cursor = i
		}
	}
	m = send(t, m, key("enter"), key("s"), key("g"), key("k"))
	_, names := m.gains()
	assert.Empty(t, names)
	assert.NotContains(t, m.View(), "g gain")
}

func TestLiveRenderer(t *testing.T) {
	var out bytes.Buffer
	cols := []string{"bus.v.d", "bus.v.q", "load.i.d"}
	r := NewLiveRenderer(&out, "test", cols, viz.MustCompile(viz.Globs{Patterns: []string{"bus.*"}}), 1)
	assert.Equal(t, []string{"bus.v.d", "bus.v.q"}, r.Columns())

	for step := 1; step <= 100; step++ {
		r.OnStep(step, []float64{float64(step), 0, 1}, 1, step == 100)
	}
	assert.Len(t, r.trails[0], trailWidth)
	assert.Equal(t, 100.0, r.trails[0][trailWidth-1])
	assert.Equal(t, 100.0, r.ret)
	assert.True(t, strings.Contains(out.String(), "bus.v.d"))
	assert.False(t, strings.Contains(out.String(), "load.i.d"))
}
