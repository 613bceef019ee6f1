package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func microgridSpec() Spec {
	return Map{
		{Key: "lc1", Value: List{
			Names("inductor1.i", "inductor2.i", "inductor3.i"),
			Names("capacitor1.v", "capacitor2.v", "capacitor3.v"),
		}},
		{Key: "rl1", Value: List{Names("inductor1.i", "inductor2.i", "inductor3.i")}},
	}
}

func TestFlattenNested(t *testing.T) {
	got := Flatten(Map{{Key: "inverter", Value: Map{{Key: "condensator", Value: Names("i", "v")}}}})
	assert.Equal(t, []string{"inverter.condensator.i", "inverter.condensator.v"}, got)
}

func TestFlattenPreservesOrder(t *testing.T) {
	got := Flatten(microgridSpec())
	assert.Equal(t, []string{
		"lc1.inductor1.i", "lc1.inductor2.i", "lc1.inductor3.i",
		"lc1.capacitor1.v", "lc1.capacitor2.v", "lc1.capacitor3.v",
		"rl1.inductor1.i", "rl1.inductor2.i", "rl1.inductor3.i",
	}, got)
}

func TestGroups(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want [][]string
	}{
		{"nil", nil, nil},
		{"single name", Name("a"), [][]string{{"a"}}},
		{"flat list", Names("a.i", "a.v"), [][]string{{"a.i"}, {"a.v"}}},
		{"nested lists", List{Names("a", "b"), Name("c")}, [][]string{{"a", "b"}, {"c"}}},
		{"map over list", microgridSpec(), [][]string{
			{"lc1.inductor1.i", "lc1.inductor2.i", "lc1.inductor3.i"},
			{"lc1.capacitor1.v", "lc1.capacitor2.v", "lc1.capacitor3.v"},
			{"rl1.inductor1.i", "rl1.inductor2.i", "rl1.inductor3.i"},
		}},
		{"map inside list groups", List{Map{{Key: "x", Value: Names("a", "b")}}}, [][]string{{"x.a", "x.b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Groups(tt.spec))
		})
	}
}

func TestExtend(t *testing.T) {
	s := Extend(Names("a", "b"), "m1")
	assert.Equal(t, []string{"a", "b", "m1"}, Flatten(s))
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"m1"}}, Groups(s))

	s = Extend(Map{{Key: "x", Value: Name("v")}}, "m1", "m2")
	assert.Equal(t, []string{"x.v", "m1", "m2"}, Flatten(s))

	m := Map{{Key: "load", Value: Map{{Key: "i", Value: Names("d", "q")}}}}
	assert.Equal(t, Groups(m), Groups(Extend(m))[:2])
	assert.Equal(t, [][]string{{"load.i.d"}, {"load.i.q"}, {"m"}}, Groups(Extend(m, "m")))

	orig := Names("a")
	assert.Equal(t, orig, Extend(orig))
}

func TestParseSpec(t *testing.T) {
	src := `
lc1:
  - [inductor1.i, inductor2.i]
  - [capacitor1.v]
load:
  i: [d, q]
`
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &node))

	spec, err := ParseSpec(&node)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lc1.inductor1.i", "lc1.inductor2.i", "lc1.capacitor1.v", "load.i.d", "load.i.q",
	}, Flatten(spec))
	assert.Equal(t, [][]string{
		{"lc1.inductor1.i", "lc1.inductor2.i"},
		{"lc1.capacitor1.v"},
		{"load.i.d"}, {"load.i.q"},
	}, Groups(spec))
}

func TestParseSpecErrors(t *testing.T) {
	_, err := ParseSpec(nil)
	assert.Error(t, err)

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`[a, ""]`), &node))
	_, err = ParseSpec(&node)
	assert.Error(t, err)
}
