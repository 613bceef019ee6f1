package viz

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/gridgym/internal/history"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Figure is one rendered plot and the columns it shows.
type Figure struct {
	Title   string
	Columns []string
	Plot    *plot.Plot
}

// Renderer turns an observation history into figures. Row i is drawn at
// x = Start + i*Step.
type Renderer struct {
	Start  float64
	Step   float64
	XLabel string
}

func (r Renderer) xs(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = r.Start + float64(i)*r.Step
	}
	return xs
}

func newPlot(title, xlabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func (r Renderer) line(xs, ys []float64) (*plotter.Line, error) {
	pts := make(plotter.XYs, len(ys))
	for i := range ys {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	return plotter.NewLine(pts)
}

// Render draws one figure per column group that survives the filter,
// followed by one figure per template.
func (r Renderer) Render(h history.History, f *Filter) ([]Figure, error) {
	if f == nil {
		f = MustCompile(MatchAll{})
	}
	xlabel := r.XLabel
	if xlabel == "" {
		xlabel = "t (s)"
	}
	xs := r.xs(h.Len())

	var figs []Figure
	for _, group := range h.StructuredColumns() {
		cols := f.Apply(group)
		if len(cols) == 0 {
			continue
		}
		frame, err := h.Select(cols...)
		if err != nil {
			return nil, err
		}
		p := newPlot(strings.Join(cols, ", "), xlabel)
		for i, name := range frame.Names {
			l, err := r.line(xs, frame.Series[i])
			if err != nil {
				return nil, fmt.Errorf("plot %s: %w", name, err)
			}
			l.LineStyle.Color = plotutil.Color(i)
			l.LineStyle.Width = vg.Points(1.5)
			p.Add(l)
			p.Legend.Add(name, l)
		}
		figs = append(figs, Figure{Title: p.Title.Text, Columns: cols, Plot: p})
	}

	for _, t := range f.Templates() {
		fig, err := r.renderTemplate(h, t, xs, xlabel)
		if err != nil {
			return nil, err
		}
		figs = append(figs, fig)
	}
	return figs, nil
}

func (r Renderer) renderTemplate(h history.History, t *PlotTemplate, xs []float64, xlabel string) (Figure, error) {
	cols := t.Columns()
	frame, err := h.Select(cols...)
	if err != nil {
		return Figure{}, fmt.Errorf("template %q: %w", t.Title, err)
	}
	title := t.Title
	if title == "" {
		title = strings.Join(cols, ", ")
	}
	p := newPlot(title, xlabel)
	for i, s := range t.Series {
		l, err := r.line(xs, frame.Series[i])
		if err != nil {
			return Figure{}, fmt.Errorf("plot %s: %w", s.Column, err)
		}
		l.LineStyle.Color = plotutil.Color(i)
		l.LineStyle.Width = vg.Points(1.5)
		if s.Style.Color != nil {
			l.LineStyle.Color = s.Style.Color
		}
		if s.Style.Width > 0 {
			l.LineStyle.Width = s.Style.Width
		}
		if s.Style.Dashes != nil {
			l.LineStyle.Dashes = s.Style.Dashes
		}
		label := s.Style.Label
		if label == "" {
			label = s.Column
		}
		p.Add(l)
		p.Legend.Add(label, l)
	}
	if t.Callback != nil {
		t.Callback(p)
	}
	return Figure{Title: title, Columns: cols, Plot: p}, nil
}

// SaveFigures writes every figure to dir as <prefix>-<index>.<ext>. The
// extension selects the format (png, svg, pdf).
func SaveFigures(figs []Figure, dir, prefix, ext string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create figure dir: %w", err)
	}
	if ext == "" {
		ext = "png"
	}
	paths := make([]string, 0, len(figs))
	for i, fig := range figs {
		path := filepath.Join(dir, fmt.Sprintf("%s-%02d.%s", prefix, i, strings.TrimPrefix(ext, ".")))
		if err := fig.Plot.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
