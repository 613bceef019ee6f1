// Package viz selects and draws observation columns.
//
// A [Selector] picks columns by glob pattern, regular expression or
// [PlotTemplate]; [Compile] turns it into a [Filter]. [Renderer] draws
// filtered column groups as gonum plots that can be written to disk with
// [SaveFigures], and [ASCII] draws the same groups as terminal charts.
// [Styles] holds the lipgloss styles used by the terminal front ends.
package viz
