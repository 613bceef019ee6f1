package grid

import (
	"fmt"
	"math"

	"github.com/san-kum/gridgym/internal/fmu"
)

// Model is the microgrid as an fmu.Model.
//
// References are laid out as states, inputs, parameters, then derived
// outputs (inverter and load active/reactive power).
type Model struct {
	net   Network
	names []string
	index map[string]fmu.Ref

	nInv    int
	nStates int
	nInputs int
	nParams int

	t       float64
	x       []float64
	u       []float64
	p       []float64
	closed  bool
	running bool
	pending bool
}

const (
	paramC = iota
	paramLoadR
	paramLoadL
	paramBreaker
	paramFreq
	numNetworkParams
)

func NewModel(net Network) (*Model, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	k := len(net.Inverters)
	m := &Model{
		net:     net,
		index:   make(map[string]fmu.Ref),
		nInv:    k,
		nStates: 2*k + 4,
		nInputs: 2 * k,
		nParams: 2*k + numNetworkParams,
	}
	for i := 0; i < k; i++ {
		m.names = append(m.names, inverterName(i)+".i.d", inverterName(i)+".i.q")
	}
	m.names = append(m.names, "bus.v.d", "bus.v.q", "load.i.d", "load.i.q")
	m.names = append(m.names, net.Inputs()...)
	for i := 0; i < k; i++ {
		m.names = append(m.names, inverterName(i)+".R", inverterName(i)+".L")
	}
	m.names = append(m.names, "bus.C", "load.R", "load.L", "load.breaker", "net.freq")
	for i := 0; i < k; i++ {
		m.names = append(m.names, inverterName(i)+".p", inverterName(i)+".q")
	}
	m.names = append(m.names, "load.p", "load.q")
	for i, n := range m.names {
		m.index[n] = fmu.Ref(i)
	}
	m.load()
	return m, nil
}

// load restores the configured start values.
func (m *Model) load() {
	m.t = 0
	m.x = make([]float64, m.nStates)
	m.u = make([]float64, m.nInputs)
	m.p = make([]float64, m.nParams)
	for i, inv := range m.net.Inverters {
		m.p[2*i] = inv.R
		m.p[2*i+1] = inv.L
	}
	base := 2 * m.nInv
	m.p[base+paramC] = m.net.C
	m.p[base+paramLoadR] = m.net.LoadR
	m.p[base+paramLoadL] = m.net.LoadL
	m.p[base+paramFreq] = m.net.Freq
	m.p[base+paramBreaker] = 1
	if m.net.LoadOpen {
		m.p[base+paramBreaker] = 0
	}
	m.closed = false
	m.running = false
	m.pending = true
}

func (m *Model) Names() []string { return append([]string(nil), m.names...) }

func (m *Model) Network() Network { return m.net }

// BreakerClosed reports the breaker state currently in effect.
func (m *Model) BreakerClosed() bool { return m.closed }

func (m *Model) param(i int) float64 { return m.p[2*m.nInv+i] }

func (m *Model) Reset() error {
	m.load()
	return nil
}

func (m *Model) Setup(startTime float64) error {
	m.t = startTime
	m.pending = true
	return nil
}

func (m *Model) EnterInitializationMode() error { return nil }
func (m *Model) ExitInitializationMode() error  { return nil }
func (m *Model) EnterEventMode() error          { m.running = false; return nil }

// ProcessEvents applies a pending breaker change. One further iteration
// follows every change so the caller observes a settled state.
func (m *Model) ProcessEvents() (bool, error) {
	want := m.param(paramBreaker) >= 0.5
	changed := want != m.closed
	if changed || m.pending {
		m.switchBreaker(want)
		m.pending = false
		return changed, nil
	}
	return false, nil
}

func (m *Model) switchBreaker(closed bool) {
	m.closed = closed
	if !closed {
		m.x[m.nStates-2] = 0
		m.x[m.nStates-1] = 0
	}
}

func (m *Model) EnterContinuousMode() error { m.running = true; return nil }

func (m *Model) NumStates() int { return m.nStates }

func (m *Model) SetTime(t float64) error {
	m.t = t
	return nil
}

func (m *Model) State() ([]float64, error) {
	return append([]float64(nil), m.x...), nil
}

func (m *Model) SetState(x []float64) error {
	if len(x) != m.nStates {
		return fmt.Errorf("grid: state has %d entries, want %d", len(x), m.nStates)
	}
	copy(m.x, x)
	if !m.closed {
		m.x[m.nStates-2] = 0
		m.x[m.nStates-1] = 0
	}
	return nil
}

// rhs evaluates the right-hand side at state x. With withInputs false the
// result is the linear part J*x.
func (m *Model) rhs(x []float64, withInputs bool) ([]float64, error) {
	w := 2 * math.Pi * m.param(paramFreq)
	c := m.param(paramC)
	lr, ll := m.param(paramLoadR), m.param(paramLoadL)
	if c <= 0 || ll <= 0 {
		return nil, fmt.Errorf("grid: non-positive bus capacitance or load inductance")
	}

	dx := make([]float64, m.nStates)
	bus := 2 * m.nInv
	vd, vq := x[bus], x[bus+1]
	ild, ilq := x[bus+2], x[bus+3]
	if !m.closed {
		ild, ilq = 0, 0
	}

	var sumD, sumQ float64
	for k := 0; k < m.nInv; k++ {
		r, l := m.p[2*k], m.p[2*k+1]
		if l <= 0 {
			return nil, fmt.Errorf("grid: %s has non-positive inductance", inverterName(k))
		}
		id, iq := x[2*k], x[2*k+1]
		var ud, uq float64
		if withInputs {
			ud, uq = m.u[2*k], m.u[2*k+1]
		}
		dx[2*k] = (ud - r*id + w*l*iq - vd) / l
		dx[2*k+1] = (uq - r*iq - w*l*id - vq) / l
		sumD += id
		sumQ += iq
	}

	dx[bus] = (sumD - ild + w*c*vq) / c
	dx[bus+1] = (sumQ - ilq - w*c*vd) / c
	if m.closed {
		dx[bus+2] = (vd - lr*ild + w*ll*ilq) / ll
		dx[bus+3] = (vq - lr*ilq - w*ll*ild) / ll
	}
	return dx, nil
}

func (m *Model) Derivatives() ([]float64, error) {
	return m.rhs(m.x, true)
}

// DirectionalDerivative returns J*seed. The model is linear in the state
// so this is the input-free right-hand side evaluated at seed.
func (m *Model) DirectionalDerivative(seed []float64) ([]float64, error) {
	if len(seed) != m.nStates {
		return nil, fmt.Errorf("grid: seed has %d entries, want %d", len(seed), m.nStates)
	}
	return m.rhs(seed, false)
}

func (m *Model) Lookup(name string) (fmu.Ref, error) {
	ref, ok := m.index[name]
	if !ok {
		return 0, fmt.Errorf("grid: no variable %q", name)
	}
	return ref, nil
}

func (m *Model) SetReal(refs []fmu.Ref, values []float64) error {
	if len(refs) != len(values) {
		return fmt.Errorf("grid: %d references, %d values", len(refs), len(values))
	}
	for i, ref := range refs {
		j := int(ref)
		switch {
		case j < m.nStates:
			m.x[j] = values[i]
		case j < m.nStates+m.nInputs:
			m.u[j-m.nStates] = values[i]
		case j < m.nStates+m.nInputs+m.nParams:
			m.p[j-m.nStates-m.nInputs] = values[i]
		case j < len(m.names):
			return fmt.Errorf("grid: variable %q is read-only", m.names[j])
		default:
			return fmt.Errorf("grid: bad reference %d", j)
		}
	}
	if m.running {
		if want := m.param(paramBreaker) >= 0.5; want != m.closed {
			m.switchBreaker(want)
		}
	}
	return nil
}

func (m *Model) GetReal(refs []fmu.Ref) ([]float64, error) {
	out := make([]float64, len(refs))
	for i, ref := range refs {
		v, err := m.get(int(ref))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Model) get(j int) (float64, error) {
	switch {
	case j < m.nStates:
		return m.x[j], nil
	case j < m.nStates+m.nInputs:
		return m.u[j-m.nStates], nil
	case j < m.nStates+m.nInputs+m.nParams:
		return m.p[j-m.nStates-m.nInputs], nil
	case j < len(m.names):
		return m.power(j - m.nStates - m.nInputs - m.nParams), nil
	}
	return 0, fmt.Errorf("grid: bad reference %d", j)
}

// power returns the k-th derived output: inverter p/q pairs followed by
// the load pair, in the amplitude-invariant dq convention.
func (m *Model) power(k int) float64 {
	bus := 2 * m.nInv
	vd, vq := m.x[bus], m.x[bus+1]
	branch := k / 2
	id, iq := m.x[bus+2], m.x[bus+3]
	if branch < m.nInv {
		id, iq = m.x[2*branch], m.x[2*branch+1]
	}
	if k%2 == 0 {
		return 1.5 * (vd*id + vq*iq)
	}
	return 1.5 * (vq*id - vd*iq)
}
