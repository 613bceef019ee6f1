package control

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/params"
)

// Agent chooses an action from an observation. Reset is called with the
// observation column names at the start of each episode.
type Agent interface {
	Reset(cols []string) error
	Act(obs []float64) []float64
}

// Tunable agents expose controller gains that can be changed while an
// episode runs. SetGain reports whether the name was known.
type Tunable interface {
	Gains() map[string]float64
	SetGain(name string, value float64) bool
}

// Zero always returns a zero action.
type Zero struct {
	dim int
}

func NewZero(dim int) *Zero {
	return &Zero{dim: dim}
}

func (z *Zero) Reset([]string) error { return nil }

func (z *Zero) Act([]float64) []float64 {
	return make([]float64, z.dim)
}

// Constant returns a fixed action that can be changed between steps.
type Constant struct {
	U []float64
}

func NewConstant(u ...float64) *Constant {
	return &Constant{U: append([]float64(nil), u...)}
}

// SetControl replaces the action. Values of the wrong length are ignored.
func (c *Constant) SetControl(u []float64) {
	if len(u) != len(c.U) {
		return
	}
	copy(c.U, u)
}

func (c *Constant) Reset([]string) error { return nil }

func (c *Constant) Act([]float64) []float64 {
	return append([]float64(nil), c.U...)
}

// CurrentRef is the dq current set point of one inverter.
type CurrentRef struct {
	Inverter string
	D, Q     float64
}

// CurrentPI runs one PI loop per current component of every inverter and
// adds the bus voltage as feed-forward. Actions are ordered as
// inverter.u.d, inverter.u.q per reference.
type CurrentPI struct {
	refs []CurrentRef
	dt   float64
	pis  []*PI

	cur  []int
	volt [2]int
}

func NewCurrentPI(p params.PI, dt float64, refs ...CurrentRef) *CurrentPI {
	c := &CurrentPI{refs: refs, dt: dt}
	for range refs {
		c.pis = append(c.pis, NewPI(p), NewPI(p))
	}
	return c
}

func (c *CurrentPI) Reset(cols []string) error {
	pos := make(map[string]int, len(cols))
	for i, col := range cols {
		pos[col] = i
	}
	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: current controller needs column %q", dynamo.ErrUnknownVariable, name)
		}
		return i, nil
	}

	c.cur = c.cur[:0]
	for _, r := range c.refs {
		for _, axis := range []string{"d", "q"} {
			i, err := find(r.Inverter + ".i." + axis)
			if err != nil {
				return err
			}
			c.cur = append(c.cur, i)
		}
	}
	var err error
	if c.volt[0], err = find("bus.v.d"); err != nil {
		return err
	}
	if c.volt[1], err = find("bus.v.q"); err != nil {
		return err
	}
	for _, pi := range c.pis {
		pi.Reset()
	}
	return nil
}

func (c *CurrentPI) Act(obs []float64) []float64 {
	u := make([]float64, 2*len(c.refs))
	for k, r := range c.refs {
		set := [2]float64{r.D, r.Q}
		for axis := 0; axis < 2; axis++ {
			j := 2*k + axis
			e := set[axis] - obs[c.cur[j]]
			u[j] = c.pis[j].Step(e, c.dt) + obs[c.volt[axis]]
		}
	}
	return u
}

// Inputs returns the model inputs this agent drives, in action order.
func (c *CurrentPI) Inputs() []string {
	var in []string
	for _, r := range c.refs {
		in = append(in, r.Inverter+".u.d", r.Inverter+".u.q")
	}
	return in
}

// Gains reports the gains shared by every current loop.
func (c *CurrentPI) Gains() map[string]float64 {
	if len(c.pis) == 0 {
		return map[string]float64{}
	}
	return c.pis[0].Gains()
}

func (c *CurrentPI) SetGain(name string, value float64) bool {
	set := len(c.pis) > 0
	for _, pi := range c.pis {
		set = pi.SetGain(name, value) && set
	}
	return set
}
