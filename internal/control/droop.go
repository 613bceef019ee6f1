package control

import (
	"fmt"
	"strings"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/params"
)

// Droop maps a measured quantity through the effective droop gain and a
// first-order lag, then adds the nominal value. A P-f droop takes active
// power and returns frequency.
type Droop struct {
	Params params.Droop
	y      float64
}

func NewDroop(p params.Droop) *Droop {
	return &Droop{Params: p}
}

func (d *Droop) Step(x, dt float64) float64 {
	target := -d.Params.EffectiveGain() * x
	if d.Params.Tau <= 0 {
		d.y = target
	} else {
		a := dt / d.Params.Tau
		if a > 1 {
			a = 1
		}
		d.y += a * (target - d.y)
	}
	return d.y + d.Params.Nominal
}

func (d *Droop) Reset() { d.y = 0 }

func (d *Droop) Gains() map[string]float64 {
	return map[string]float64{"gain": d.Params.Gain, "tau": d.Params.Tau}
}

func (d *Droop) SetGain(name string, value float64) bool {
	switch name {
	case "gain":
		d.Params.Gain = value
	case "tau":
		d.Params.Tau = value
	default:
		return false
	}
	return true
}

// VoltageDroop is a grid-forming agent for resistive networks. Each
// inverter sets its d-axis voltage from a P-V droop on the active power it
// delivers to the bus and its q-axis voltage from a Q droop on reactive
// power. Powers use the amplitude-invariant dq convention
// P = 1.5(vd id + vq iq), Q = 1.5(vq id - vd iq).
type VoltageDroop struct {
	inverters []string
	dt        float64
	p, q      []*Droop

	cur  [][2]int
	volt [2]int
}

func NewVoltageDroop(p, q params.Droop, dt float64, inverters ...string) *VoltageDroop {
	v := &VoltageDroop{inverters: inverters, dt: dt}
	for range inverters {
		v.p = append(v.p, NewDroop(p))
		v.q = append(v.q, NewDroop(q))
	}
	return v
}

func (v *VoltageDroop) Reset(cols []string) error {
	pos := make(map[string]int, len(cols))
	for i, col := range cols {
		pos[col] = i
	}
	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: droop agent needs column %q", dynamo.ErrUnknownVariable, name)
		}
		return i, nil
	}

	v.cur = v.cur[:0]
	for _, inv := range v.inverters {
		var idx [2]int
		var err error
		if idx[0], err = find(inv + ".i.d"); err != nil {
			return err
		}
		if idx[1], err = find(inv + ".i.q"); err != nil {
			return err
		}
		v.cur = append(v.cur, idx)
	}
	var err error
	if v.volt[0], err = find("bus.v.d"); err != nil {
		return err
	}
	if v.volt[1], err = find("bus.v.q"); err != nil {
		return err
	}
	for k := range v.inverters {
		v.p[k].Reset()
		v.q[k].Reset()
	}
	return nil
}

func (v *VoltageDroop) Act(obs []float64) []float64 {
	vd, vq := obs[v.volt[0]], obs[v.volt[1]]
	u := make([]float64, 2*len(v.inverters))
	for k, idx := range v.cur {
		id, iq := obs[idx[0]], obs[idx[1]]
		p := 1.5 * (vd*id + vq*iq)
		q := 1.5 * (vq*id - vd*iq)
		u[2*k] = v.p[k].Step(p, v.dt)
		u[2*k+1] = v.q[k].Step(q, v.dt)
	}
	return u
}

// Inputs returns the model inputs this agent drives, in action order.
func (v *VoltageDroop) Inputs() []string {
	var in []string
	for _, inv := range v.inverters {
		in = append(in, inv+".u.d", inv+".u.q")
	}
	return in
}

// Gains reports the shared droop settings as p.gain, p.tau, q.gain and
// q.tau.
func (v *VoltageDroop) Gains() map[string]float64 {
	out := make(map[string]float64)
	if len(v.p) == 0 {
		return out
	}
	for name, val := range v.p[0].Gains() {
		out["p."+name] = val
	}
	for name, val := range v.q[0].Gains() {
		out["q."+name] = val
	}
	return out
}

// SetGain changes one setting on every inverter.
func (v *VoltageDroop) SetGain(name string, value float64) bool {
	axis, gain, ok := strings.Cut(name, ".")
	if !ok {
		return false
	}
	droops := v.p
	switch axis {
	case "p":
	case "q":
		droops = v.q
	default:
		return false
	}
	set := len(droops) > 0
	for _, d := range droops {
		set = d.SetGain(gain, value) && set
	}
	return set
}
