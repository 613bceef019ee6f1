package viz

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// SeriesStyle overrides how one series of a template is drawn. Zero
// fields keep the renderer defaults.
type SeriesStyle struct {
	Label  string
	Color  color.Color
	Width  vg.Length
	Dashes []vg.Length
}

type Series struct {
	Column string
	Style  SeriesStyle
}

// PlotTemplate describes one figure built from explicitly named columns.
// Callback runs after all series have been added.
type PlotTemplate struct {
	Title    string
	Series   []Series
	Callback func(p *plot.Plot)
}

func NewTemplate(columns ...string) *PlotTemplate {
	t := &PlotTemplate{Series: make([]Series, len(columns))}
	for i, c := range columns {
		t.Series[i].Column = c
	}
	return t
}

// WithStyle sets the style of the series drawn from column.
func (t *PlotTemplate) WithStyle(column string, style SeriesStyle) *PlotTemplate {
	for i := range t.Series {
		if t.Series[i].Column == column {
			t.Series[i].Style = style
			return t
		}
	}
	t.Series = append(t.Series, Series{Column: column, Style: style})
	return t
}

func (t *PlotTemplate) WithTitle(title string) *PlotTemplate {
	t.Title = title
	return t
}

func (t *PlotTemplate) WithCallback(fn func(p *plot.Plot)) *PlotTemplate {
	t.Callback = fn
	return t
}

func (t *PlotTemplate) Columns() []string {
	cols := make([]string, len(t.Series))
	for i, s := range t.Series {
		cols[i] = s.Column
	}
	return cols
}
