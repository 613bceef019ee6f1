package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/history"
	"github.com/san-kum/gridgym/internal/viz"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gopkg.in/yaml.v3"
)

// TemplateConfig is a plot template in a viz_cols list.
type TemplateConfig struct {
	Title  string                 `yaml:"title"`
	Series yaml.Node              `yaml:"series"`
	Styles map[string]StyleConfig `yaml:"styles,omitempty"`
	YLabel string                 `yaml:"ylabel,omitempty"`
}

type StyleConfig struct {
	Label  string    `yaml:"label,omitempty"`
	Color  string    `yaml:"color,omitempty"`
	Width  float64   `yaml:"width,omitempty"`
	Dashes []float64 `yaml:"dashes,omitempty"`
}

// ParseSelector decodes viz_cols: null selects every column, a string is
// a regular expression, and a list holds glob patterns and plot templates.
func ParseSelector(node *yaml.Node) (viz.Selector, error) {
	if node == nil || node.IsZero() {
		return viz.MatchAll{}, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return viz.MatchAll{}, nil
		}
		return viz.Regex(node.Value), nil
	case yaml.SequenceNode:
		var (
			globs     []string
			templates []*viz.PlotTemplate
		)
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				globs = append(globs, item.Value)
			case yaml.MappingNode:
				var tc TemplateConfig
				if err := item.Decode(&tc); err != nil {
					return nil, fmt.Errorf("%w: viz_cols template: %v", dynamo.ErrInvalidConfig, err)
				}
				t, err := tc.Build()
				if err != nil {
					return nil, err
				}
				templates = append(templates, t)
			default:
				return nil, fmt.Errorf("%w: viz_cols entries must be glob strings or templates (line %d)", dynamo.ErrInvalidConfig, item.Line)
			}
		}
		if len(globs) == 0 && len(templates) > 0 {
			return viz.Templates(templates), nil
		}
		return viz.Globs{Patterns: globs, Templates: templates}, nil
	}
	return nil, fmt.Errorf("%w: viz_cols must be null, a regex string or a list (line %d)", dynamo.ErrInvalidConfig, node.Line)
}

func (tc TemplateConfig) Build() (*viz.PlotTemplate, error) {
	spec, err := history.ParseSpec(&tc.Series)
	if err != nil {
		return nil, fmt.Errorf("%w: template %q series: %v", dynamo.ErrInvalidConfig, tc.Title, err)
	}
	t := viz.NewTemplate(history.Flatten(spec)...).WithTitle(tc.Title)
	for col, sc := range tc.Styles {
		style, err := sc.Build()
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", tc.Title, err)
		}
		t.WithStyle(col, style)
	}
	if tc.YLabel != "" {
		label := tc.YLabel
		t.WithCallback(func(p *plot.Plot) { p.Y.Label.Text = label })
	}
	return t, nil
}

func (sc StyleConfig) Build() (viz.SeriesStyle, error) {
	style := viz.SeriesStyle{Label: sc.Label, Width: vg.Points(sc.Width)}
	if sc.Color != "" {
		c, err := parseHexColor(sc.Color)
		if err != nil {
			return viz.SeriesStyle{}, err
		}
		style.Color = c
	}
	for _, d := range sc.Dashes {
		style.Dashes = append(style.Dashes, vg.Points(d))
	}
	return style, nil
}

func parseHexColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return nil, fmt.Errorf("%w: color %q is not #rrggbb", dynamo.ErrInvalidConfig, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: color %q: %v", dynamo.ErrInvalidConfig, s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
