package config

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/env"
	"gopkg.in/yaml.v3"
)

type StepShape struct {
	At     float64 `yaml:"at"`
	Before float64 `yaml:"before"`
	After  float64 `yaml:"after"`
}

type RampShape struct {
	T0   float64 `yaml:"t0"`
	T1   float64 `yaml:"t1"`
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

type SineShape struct {
	Amp    float64 `yaml:"amp"`
	Freq   float64 `yaml:"freq"`
	Phase  float64 `yaml:"phase"`
	Offset float64 `yaml:"offset"`
}

// ParamConfig is a model parameter: a plain number, or a mapping with
// exactly one of step, ramp or sine.
type ParamConfig struct {
	Constant *float64   `yaml:"constant,omitempty"`
	Step     *StepShape `yaml:"step,omitempty"`
	Ramp     *RampShape `yaml:"ramp,omitempty"`
	Sine     *SineShape `yaml:"sine,omitempty"`
}

func ConstantParam(v float64) ParamConfig { return ParamConfig{Constant: &v} }

func (p *ParamConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*p = ConstantParam(v)
		return nil
	}
	type plain ParamConfig
	return node.Decode((*plain)(p))
}

func (p ParamConfig) MarshalYAML() (any, error) {
	if p.Constant != nil && p.Step == nil && p.Ramp == nil && p.Sine == nil {
		return *p.Constant, nil
	}
	type plain ParamConfig
	return plain(p), nil
}

func (p ParamConfig) Param() (env.Param, error) {
	set := 0
	var out env.Param
	if p.Constant != nil {
		set++
		out = env.Constant(*p.Constant)
	}
	if s := p.Step; s != nil {
		set++
		out = env.Step(s.At, s.Before, s.After)
	}
	if r := p.Ramp; r != nil {
		set++
		if r.T1 <= r.T0 {
			return nil, fmt.Errorf("%w: ramp needs t1 > t0", dynamo.ErrInvalidConfig)
		}
		out = env.Ramp(r.T0, r.T1, r.From, r.To)
	}
	if s := p.Sine; s != nil {
		set++
		out = env.Sine(s.Amp, s.Freq, s.Phase, s.Offset)
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: parameter needs exactly one of constant, step, ramp, sine", dynamo.ErrInvalidConfig)
	}
	return out, nil
}
