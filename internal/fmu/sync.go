package fmu

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// Synchronizer moves named values between the engine and an Instance.
// Names are resolved once and cached; outputs are bound to a fixed
// reference slice so the hot path does no name resolution.
type Synchronizer struct {
	inst    *Instance
	refs    map[string]Ref
	outputs []Ref
}

func NewSynchronizer(inst *Instance) *Synchronizer {
	return &Synchronizer{inst: inst, refs: make(map[string]Ref)}
}

func (s *Synchronizer) Instance() *Instance { return s.inst }

func (s *Synchronizer) resolve(names []string) ([]Ref, error) {
	refs := make([]Ref, len(names))
	for i, name := range names {
		ref, ok := s.refs[name]
		if !ok {
			var err error
			ref, err = s.inst.Lookup(name)
			if err != nil {
				return nil, err
			}
			s.refs[name] = ref
		}
		refs[i] = ref
	}
	return refs, nil
}

// Resolve looks up and caches references for names without transferring
// any values.
func (s *Synchronizer) Resolve(names []string) error {
	_, err := s.resolve(names)
	return err
}

// BindOutputs precomputes the references read by PullOutputs.
func (s *Synchronizer) BindOutputs(names []string) error {
	refs, err := s.resolve(names)
	if err != nil {
		return fmt.Errorf("bind outputs: %w", err)
	}
	s.outputs = refs
	return nil
}

func (s *Synchronizer) NumOutputs() int { return len(s.outputs) }

// Push writes values to the named variables.
func (s *Synchronizer) Push(names []string, values []float64) error {
	if len(names) != len(values) {
		return fmt.Errorf("%w: %d names, %d values", dynamo.ErrDimensionMismatch, len(names), len(values))
	}
	if len(names) == 0 {
		return nil
	}
	refs, err := s.resolve(names)
	if err != nil {
		return err
	}
	return s.inst.SetReal(refs, values)
}

// Pull reads the named variables.
func (s *Synchronizer) Pull(names []string) ([]float64, error) {
	refs, err := s.resolve(names)
	if err != nil {
		return nil, err
	}
	return s.inst.GetReal(refs)
}

// PullOutputs reads the bound outputs in declaration order.
func (s *Synchronizer) PullOutputs() ([]float64, error) {
	if s.outputs == nil {
		return nil, fmt.Errorf("fmu: outputs not bound")
	}
	return s.inst.GetReal(s.outputs)
}
