package history

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec describes observation column names, possibly with structure.
// Structure is used only to group columns when rendering.
//
//	Map{{Key: "inverter", Value: Map{{Key: "lc", Value: Names("i", "v")}}}}
//
// flattens to ["inverter.lc.i", "inverter.lc.v"].
type Spec interface {
	flatten(prefix string, out []string) []string
	groups(prefix string, nested bool, out [][]string) [][]string
}

// Name is a single column.
type Name string

// List is an ordered sequence of specs. At the top level every element
// becomes its own group; a List nested in a List forms one group.
type List []Spec

// Entry is one key of a Map.
type Entry struct {
	Key   string
	Value Spec
}

// Map prefixes the names below each key with "key.". It keeps insertion
// order and does not add a grouping level.
type Map []Entry

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}

func (n Name) flatten(prefix string, out []string) []string {
	return append(out, join(prefix, string(n)))
}

func (n Name) groups(prefix string, _ bool, out [][]string) [][]string {
	return append(out, []string{join(prefix, string(n))})
}

func (l List) flatten(prefix string, out []string) []string {
	for _, s := range l {
		out = s.flatten(prefix, out)
	}
	return out
}

func (l List) groups(prefix string, nested bool, out [][]string) [][]string {
	if nested {
		if g := l.flatten(prefix, nil); len(g) > 0 {
			out = append(out, g)
		}
		return out
	}
	for _, s := range l {
		out = s.groups(prefix, true, out)
	}
	return out
}

func (m Map) flatten(prefix string, out []string) []string {
	for _, e := range m {
		out = e.Value.flatten(join(prefix, e.Key), out)
	}
	return out
}

func (m Map) groups(prefix string, nested bool, out [][]string) [][]string {
	for _, e := range m {
		out = e.Value.groups(join(prefix, e.Key), nested, out)
	}
	return out
}

// Names builds a flat List.
func Names(names ...string) List {
	l := make(List, len(names))
	for i, n := range names {
		l[i] = Name(n)
	}
	return l
}

// Flatten returns the dot-joined column names in declaration order.
func Flatten(s Spec) []string {
	if s == nil {
		return nil
	}
	return s.flatten("", nil)
}

// Groups returns the column names grouped by structure.
func Groups(s Spec) [][]string {
	if s == nil {
		return nil
	}
	return s.groups("", false, nil)
}

// Extend appends flat names to a spec, each as its own top-level group.
func Extend(s Spec, names ...string) Spec {
	if len(names) == 0 {
		return s
	}
	extra := Names(names...)
	switch v := s.(type) {
	case nil:
		return extra
	case List:
		out := make(List, 0, len(v)+len(extra))
		out = append(out, v...)
		return append(out, extra...)
	case Map:
		out := make(Map, 0, len(v)+len(names))
		out = append(out, v...)
		for _, n := range names {
			out = append(out, Entry{Value: Name(n)})
		}
		return out
	default:
		return append(List{v}, extra...)
	}
}

// ParseSpec decodes a YAML scalar, sequence or mapping into a Spec,
// preserving mapping key order.
func ParseSpec(node *yaml.Node) (Spec, error) {
	if node == nil {
		return nil, fmt.Errorf("history: empty column spec")
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, fmt.Errorf("history: empty column spec")
		}
		return ParseSpec(node.Content[0])
	case yaml.AliasNode:
		return ParseSpec(node.Alias)
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) == "" {
			return nil, fmt.Errorf("history: line %d: empty column name", node.Line)
		}
		return Name(node.Value), nil
	case yaml.SequenceNode:
		l := make(List, 0, len(node.Content))
		for _, c := range node.Content {
			s, err := ParseSpec(c)
			if err != nil {
				return nil, err
			}
			l = append(l, s)
		}
		return l, nil
	case yaml.MappingNode:
		m := make(Map, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := ParseSpec(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m = append(m, Entry{Key: node.Content[i].Value, Value: v})
		}
		return m, nil
	}
	return nil, fmt.Errorf("history: line %d: unsupported yaml node", node.Line)
}
