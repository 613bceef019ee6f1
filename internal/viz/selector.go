package viz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// Selector chooses which history columns are plotted. It is one of
// MatchAll, Globs, Regex or Templates.
type Selector interface {
	selector()
}

// MatchAll plots every column.
type MatchAll struct{}

// Globs plots columns matching any shell-style pattern ("*.i",
// "inverter?.v.[dq]"). Templates listed alongside the patterns are
// rendered as extra figures.
type Globs struct {
	Patterns  []string
	Templates []*PlotTemplate
}

// Regex plots columns fully matched by the expression.
type Regex string

// Templates renders only the given templates; no column group matches.
type Templates []*PlotTemplate

func (MatchAll) selector()  {}
func (Globs) selector()     {}
func (Regex) selector()     {}
func (Templates) selector() {}

// matchNone is an expression no string satisfies.
const matchNone = `[^\x00-\x{10FFFF}]`

// Filter is a compiled Selector.
type Filter struct {
	re        *regexp.Regexp
	templates []*PlotTemplate
}

// Compile resolves sel into a single full-match predicate. A nil
// selector is MatchAll.
func Compile(sel Selector) (*Filter, error) {
	var (
		expr      string
		templates []*PlotTemplate
	)
	switch s := sel.(type) {
	case nil, MatchAll:
		expr = ".*"
	case Globs:
		parts := make([]string, len(s.Patterns))
		for i, p := range s.Patterns {
			parts[i] = translateGlob(p)
		}
		expr = strings.Join(parts, "|")
		if len(parts) == 0 {
			expr = matchNone
		}
		templates = s.Templates
	case Regex:
		expr = string(s)
	case Templates:
		expr = matchNone
		templates = s
	default:
		return nil, fmt.Errorf("%w: unsupported selector %T", dynamo.ErrInvalidConfig, sel)
	}

	for i, t := range templates {
		if t == nil {
			return nil, fmt.Errorf("%w: template %d is nil", dynamo.ErrInvalidConfig, i)
		}
	}

	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: viz_cols: %v", dynamo.ErrInvalidConfig, err)
	}
	return &Filter{re: re, templates: templates}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(sel Selector) *Filter {
	f, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Filter) Match(name string) bool {
	return f.re.MatchString(name)
}

// Apply returns the matching names in their original order.
func (f *Filter) Apply(names []string) []string {
	var out []string
	for _, n := range names {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f *Filter) Templates() []*PlotTemplate { return f.templates }

func (f *Filter) String() string { return f.re.String() }

// translateGlob converts a shell pattern into an unanchored regular
// expression. '*' matches any run of characters including dots.
func translateGlob(pattern string) string {
	var b strings.Builder
	b.WriteString("(?:")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : j]
			b.WriteByte('[')
			if class[0] == '!' || class[0] == '^' {
				b.WriteByte('^')
				class = class[1:]
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteByte(']')
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(")")
	return b.String()
}
