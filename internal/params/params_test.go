package params

import (
	"testing"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDroopGain(t *testing.T) {
	assert.Equal(t, 0.001, Droop{Filter: Filter{Gain: 1000, Tau: 1}, Nominal: 50}.EffectiveGain())
	assert.Equal(t, 0.0, Droop{}.EffectiveGain())
}

func TestInverseDroop(t *testing.T) {
	d := NewInverseDroop(1000, 1, 50, 0.01)
	assert.Equal(t, 0.001, d.EffectiveGain())
	assert.Equal(t, Filter{Gain: 1, Tau: 0.01}, d.DerivativeFilter)
	assert.Equal(t, 50.0, d.Nominal)
}

func TestPI(t *testing.T) {
	p := NewPI(2, 10, -1, 1)
	assert.Equal(t, 1.0, p.KB)
	assert.NoError(t, p.Validate())
	assert.Equal(t, 1.0, p.Clamp(5))
	assert.Equal(t, -1.0, p.Clamp(-5))
	assert.Equal(t, 0.5, p.Clamp(0.5))

	assert.ErrorIs(t, NewPI(1, 1, 1, -1).Validate(), dynamo.ErrInvalidConfig)
	assert.ErrorIs(t, NewPI(1, 1, 0, 0).Validate(), dynamo.ErrInvalidConfig)
	assert.ErrorIs(t, PI{KP: 1}.Validate(), dynamo.ErrInvalidConfig)
}

func TestPIYAMLDefaults(t *testing.T) {
	var p PI
	assert.NoError(t, yaml.Unmarshal([]byte("kp: 0.5\nki: 100\nlimits: [-600, 600]\n"), &p))
	assert.Equal(t, NewPI(0.5, 100, -600, 600), p)

	assert.NoError(t, yaml.Unmarshal([]byte("kp: 1\nkb: 0\nlimits: [-1, 1]\n"), &p))
	assert.Equal(t, 0.0, p.KB)

	var pll PLL
	assert.NoError(t, yaml.Unmarshal([]byte("kp: 10\nlimits: [-5, 5]\nf_nom: 50\n"), &pll))
	assert.Equal(t, 1.0, pll.KB)
	assert.Equal(t, 50.0, pll.FNom)
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Gain: 300, Tau: 0.01}.Validate())
	assert.ErrorIs(t, Filter{Gain: -1}.Validate(), dynamo.ErrInvalidConfig)
	assert.ErrorIs(t, Filter{Tau: -1}.Validate(), dynamo.ErrInvalidConfig)
}

func TestYAML(t *testing.T) {
	var pll PLL
	src := "kp: 10\nki: 200\nlimits: [-5, 5]\nkb: 1\nf_nom: 50\ntheta_0: 0.1\n"
	assert.NoError(t, yaml.Unmarshal([]byte(src), &pll))
	assert.Equal(t, NewPLL(10, 200, -5, 5, 50, 0.1), pll)

	var d Droop
	assert.NoError(t, yaml.Unmarshal([]byte("gain: 1000\ntau: 1\nnominal: 50\n"), &d))
	assert.Equal(t, 1000.0, d.Gain)
	assert.Equal(t, 50.0, d.Nominal)
}
