package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/gridgym/internal/history"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Cyan, asciigraph.Orange, asciigraph.Green, asciigraph.Magenta,
	asciigraph.Yellow, asciigraph.Blue, asciigraph.Red,
}

// ASCII renders the same figures as Renderer as terminal charts.
type ASCII struct {
	Width  int
	Height int
	Color  bool
	// Window keeps only the last Window rows. Zero keeps all.
	Window int
}

func (a ASCII) chart(caption string, series [][]float64) string {
	data := make([][]float64, 0, len(series))
	for _, s := range series {
		if a.Window > 0 && len(s) > a.Window {
			s = s[len(s)-a.Window:]
		}
		if len(s) > 0 {
			data = append(data, s)
		}
	}
	if len(data) == 0 {
		return caption + ": no data\n"
	}
	opts := []asciigraph.Option{
		asciigraph.Height(a.Height),
		asciigraph.Width(a.Width),
		asciigraph.Caption(caption),
	}
	if a.Color {
		colors := make([]asciigraph.AnsiColor, len(data))
		for i := range colors {
			colors[i] = seriesColors[i%len(seriesColors)]
		}
		opts = append(opts, asciigraph.SeriesColors(colors...))
	}
	return asciigraph.PlotMany(data, opts...) + "\n"
}

// Render returns one chart per filtered column group and template.
func (a ASCII) Render(h history.History, f *Filter) ([]string, error) {
	if a.Height <= 0 {
		a.Height = 8
	}
	if f == nil {
		f = MustCompile(MatchAll{})
	}

	var charts []string
	draw := func(cols []string, caption string) error {
		frame, err := h.Select(cols...)
		if err != nil {
			return err
		}
		if caption == "" {
			caption = strings.Join(cols, ", ")
		}
		charts = append(charts, a.chart(caption, frame.Series))
		return nil
	}
	for _, group := range h.StructuredColumns() {
		cols := f.Apply(group)
		if len(cols) == 0 {
			continue
		}
		if err := draw(cols, ""); err != nil {
			return nil, err
		}
	}
	for _, t := range f.Templates() {
		if err := draw(t.Columns(), t.Title); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Title, err)
		}
	}
	return charts, nil
}
