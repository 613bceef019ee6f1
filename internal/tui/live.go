package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/gridgym/internal/viz"
)

const (
	trailWidth  = 60
	maxWatched  = 8
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws sparklines of the selected observation columns
// while an episode runs. OnStep has the experiment.Observer signature.
type LiveRenderer struct {
	out       io.Writer
	name      string
	frameRate int
	lastFrame time.Time
	styles    viz.Styles

	columns []string
	idx     []int
	trails  [][]float64
	ret     float64
}

// NewLiveRenderer watches the columns that pass filter, at most eight.
func NewLiveRenderer(out io.Writer, name string, cols []string, filter *viz.Filter, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 20
	}
	r := &LiveRenderer{
		out:       out,
		name:      name,
		frameRate: frameRate,
		styles:    viz.NewStyles(viz.ThemeDefault),
	}
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	watched := cols
	if filter != nil {
		watched = filter.Apply(cols)
	}
	for _, c := range watched {
		if len(r.idx) == maxWatched {
			break
		}
		r.columns = append(r.columns, c)
		r.idx = append(r.idx, pos[c])
	}
	r.trails = make([][]float64, len(r.idx))
	return r
}

func (r *LiveRenderer) OnStep(step int, obs []float64, reward float64, done bool) {
	if step == 1 {
		r.ret = 0
		for i := range r.trails {
			r.trails[i] = r.trails[i][:0]
		}
	}
	r.ret += reward
	for i, j := range r.idx {
		if j < len(obs) {
			r.trails[i] = append(r.trails[i], obs[j])
			if len(r.trails[i]) > trailWidth {
				r.trails[i] = r.trails[i][1:]
			}
		}
	}

	if !done && time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.render(step, reward, done)
}

func (r *LiveRenderer) render(step int, reward float64, done bool) {
	s := r.styles
	var b strings.Builder
	b.WriteString(clearScreen)

	status := "RUNNING"
	if done {
		status = "DONE"
	}
	b.WriteString(fmt.Sprintf("  %s  %s  step %d\n", s.Title.Render(r.name), s.Status(status), step))
	b.WriteString("  " + s.Separator(trailWidth+24) + "\n")

	for i, c := range r.columns {
		last := 0.0
		if n := len(r.trails[i]); n > 0 {
			last = r.trails[i][n-1]
		}
		b.WriteString(fmt.Sprintf("  %-20s %s  %s\n", c, s.Sparkline(r.trails[i], trailWidth), s.Value.Render(fmt.Sprintf("%10.3f", last))))
	}

	b.WriteString("  " + s.Separator(trailWidth+24) + "\n")
	b.WriteString("  " + s.Metric("reward", reward) + "   " + s.Metric("return", r.ret) + "\n")
	fmt.Fprint(r.out, b.String())
}

// Columns returns the watched column names.
func (r *LiveRenderer) Columns() []string { return r.columns }

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
