// Package params holds controller parameter sets for inverter control.
package params

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
	"gopkg.in/yaml.v3"
)

// Filter is a first-order lag with static gain and time constant in
// seconds.
type Filter struct {
	Gain float64 `yaml:"gain"`
	Tau  float64 `yaml:"tau"`
}

func (f Filter) Validate() error {
	if f.Gain < 0 || f.Tau < 0 {
		return fmt.Errorf("%w: filter gain and tau must not be negative", dynamo.ErrInvalidConfig)
	}
	return nil
}

// Droop configures a droop characteristic. Gain is entered as the droop
// (e.g. W/Hz); the effective gain applied to the measured value is its
// reciprocal. Nominal is added to the filtered droop output.
//
// A 10 kW inverter with 10% droop at 50 Hz uses Gain 1000, Tau 1,
// Nominal 50.
type Droop struct {
	Filter  `yaml:",inline"`
	Nominal float64 `yaml:"nominal"`
}

// EffectiveGain returns 1/Gain, or 0 when Gain is 0.
func (d Droop) EffectiveGain() float64 {
	if d.Gain == 0 {
		return 0
	}
	return 1 / d.Gain
}

// InverseDroop is a droop with an additional filter on the derivative
// path.
type InverseDroop struct {
	Droop            `yaml:",inline"`
	DerivativeFilter Filter `yaml:"derivative_filter"`
}

func NewInverseDroop(droop, tau, nominal, tauFilt float64) InverseDroop {
	return InverseDroop{
		Droop:            Droop{Filter: Filter{Gain: droop, Tau: tau}, Nominal: nominal},
		DerivativeFilter: Filter{Gain: 1, Tau: tauFilt},
	}
}

// PI parameters. KB is the back-calculation gain used for anti-windup; it
// is 1 when a YAML block leaves it out.
type PI struct {
	KP     float64    `yaml:"kp"`
	KI     float64    `yaml:"ki"`
	Limits [2]float64 `yaml:"limits,flow"`
	KB     float64    `yaml:"kb"`
}

func NewPI(kp, ki, lo, hi float64) PI {
	return PI{KP: kp, KI: ki, Limits: [2]float64{lo, hi}, KB: 1}
}

func (p *PI) UnmarshalYAML(n *yaml.Node) error {
	type plain PI
	v := plain{KB: 1}
	if err := n.Decode(&v); err != nil {
		return err
	}
	*p = PI(v)
	return nil
}

func (p PI) Validate() error {
	if p.Limits[0] >= p.Limits[1] {
		return fmt.Errorf("%w: PI limits [%g, %g] leave no output range", dynamo.ErrInvalidConfig, p.Limits[0], p.Limits[1])
	}
	if p.KB < 0 {
		return fmt.Errorf("%w: PI kb must not be negative", dynamo.ErrInvalidConfig)
	}
	return nil
}

// Clamp limits v to the configured range.
func (p PI) Clamp(v float64) float64 {
	if v < p.Limits[0] {
		return p.Limits[0]
	}
	if v > p.Limits[1] {
		return p.Limits[1]
	}
	return v
}

// PLL parameters: a PI loop plus nominal frequency (Hz) and initial phase
// (rad).
type PLL struct {
	PI     `yaml:",inline"`
	FNom   float64 `yaml:"f_nom"`
	Theta0 float64 `yaml:"theta_0"`
}

// UnmarshalYAML decodes the inline PI fields with their defaults, then the
// PLL's own.
func (p *PLL) UnmarshalYAML(n *yaml.Node) error {
	var own struct {
		FNom   float64 `yaml:"f_nom"`
		Theta0 float64 `yaml:"theta_0"`
	}
	if err := n.Decode(&p.PI); err != nil {
		return err
	}
	if err := n.Decode(&own); err != nil {
		return err
	}
	p.FNom, p.Theta0 = own.FNom, own.Theta0
	return nil
}

func NewPLL(kp, ki, lo, hi, fNom, theta0 float64) PLL {
	return PLL{PI: NewPI(kp, ki, lo, hi), FNom: fNom, Theta0: theta0}
}
