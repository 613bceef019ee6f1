package control

import (
	"github.com/san-kum/gridgym/internal/params"
)

type PI struct {
	Params   params.PI
	integral float64
	windup   float64
}

func NewPI(p params.PI) *PI {
	return &PI{Params: p}
}

// Step advances the controller by dt with the given error and returns the
// limited output.
func (p *PI) Step(err, dt float64) float64 {
	p.integral += p.Params.KI * dt * (err + p.windup)
	out := p.Params.KP*err + p.integral
	clipped := p.Params.Clamp(out)
	p.windup = p.Params.KB * (clipped - out)
	return clipped
}

// Integral returns the integrator state.
func (p *PI) Integral() float64 { return p.integral }

// Reset clears integrator and anti-windup state
func (p *PI) Reset() {
	p.integral = 0
	p.windup = 0
}

// Gains keyed by their YAML names.
func (p *PI) Gains() map[string]float64 {
	return map[string]float64{"kp": p.Params.KP, "ki": p.Params.KI, "kb": p.Params.KB}
}

func (p *PI) SetGain(name string, value float64) bool {
	switch name {
	case "kp":
		p.Params.KP = value
	case "ki":
		p.Params.KI = value
	case "kb":
		p.Params.KB = value
	default:
		return false
	}
	return true
}
