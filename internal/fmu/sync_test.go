package fmu_test

import (
	"testing"

	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/fmu"
	"github.com/san-kum/gridgym/internal/fmu/fmutest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSynced(t *testing.T, m *fmutest.Linear) *fmu.Synchronizer {
	t.Helper()
	in := fmu.NewInstance(m)
	require.NoError(t, in.Reset())
	_, err := in.Initialize(0)
	require.NoError(t, err)
	return fmu.NewSynchronizer(in)
}

func TestSynchronizerInputRoundTrip(t *testing.T) {
	m := fmutest.Decay(3, 1)
	s := newSynced(t, m)

	values := []float64{0.25, -1.5, 42}
	require.NoError(t, s.Push(m.Inputs, values))

	got, err := s.Pull(m.Inputs)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestSynchronizerCachesReferences(t *testing.T) {
	m := fmutest.Decay(2, 1)
	s := newSynced(t, m)
	require.NoError(t, s.BindOutputs(m.States))
	lookups := m.Count("Lookup")

	for i := 0; i < 5; i++ {
		_, err := s.PullOutputs()
		require.NoError(t, err)
		require.NoError(t, s.Push(m.Inputs, []float64{1, 2}))
	}
	// inputs are resolved on first push only
	assert.Equal(t, lookups+2, m.Count("Lookup"))
}

func TestSynchronizerPullOutputsOrder(t *testing.T) {
	m := fmutest.Decay(3, 1)
	m.X0 = []float64{1, 2, 3}
	s := newSynced(t, m)
	require.NoError(t, s.BindOutputs([]string{"x2", "x0"}))

	out, err := s.PullOutputs()
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, out)
	assert.Equal(t, 2, s.NumOutputs())
}

func TestSynchronizerErrors(t *testing.T) {
	m := fmutest.Decay(1, 1)
	s := newSynced(t, m)

	err := s.BindOutputs([]string{"nope"})
	assert.ErrorIs(t, err, dynamo.ErrUnknownVariable)

	err = s.Push([]string{"u0"}, []float64{1, 2})
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = fmu.NewSynchronizer(s.Instance()).PullOutputs()
	assert.Error(t, err)
}
