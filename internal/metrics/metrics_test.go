package metrics

import (
	"math"
	"testing"
)

func TestReturn(t *testing.T) {
	r := NewReturn()
	r.Reset(nil)

	r.Observe(nil, nil, 1)
	r.Observe(nil, nil, 0.5)
	r.Observe(nil, nil, math.NaN())
	r.Observe(nil, nil, math.Inf(-1))

	if r.Value() != 1.5 {
		t.Errorf("expected return 1.5, got %f", r.Value())
	}
	if r.Steps() != 4 || r.Failures() != 2 {
		t.Errorf("expected 4 steps and 2 failures, got %d and %d", r.Steps(), r.Failures())
	}

	r.Reset(nil)
	if r.Value() != 0 || r.Steps() != 0 {
		t.Error("expected zero return after reset")
	}
}

func TestControlEffort(t *testing.T) {
	c := NewControlEffort()
	c.Observe([]float64{3, 4}, nil, 0)
	c.Observe([]float64{0, 0}, nil, 0)

	if math.Abs(c.Value()-12.5) > 1e-12 {
		t.Errorf("expected effort 12.5, got %f", c.Value())
	}

	c.Reset(nil)
	if c.Value() != 0 {
		t.Error("expected zero effort after reset")
	}
}

func TestStability(t *testing.T) {
	cols := []string{"bus.v.d", "bus.v.q", "load.i.d"}

	tests := []struct {
		name    string
		watched []string
		obs     [][]float64
		want    float64
	}{
		{"all columns", nil, [][]float64{{1, 1, 1}, {1, 1, 20}}, 0.5},
		{"watched subset ignores others", []string{"bus.v.d"}, [][]float64{{1, 1, 20}, {1, 1, 20}}, 1},
		{"nan is a violation", []string{"bus.v.q"}, [][]float64{{0, math.NaN(), 0}}, 0},
		{"unknown column ignored", []string{"nope"}, [][]float64{{100, 100, 100}}, 1},
		{"no samples", nil, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStability(10, tt.watched...)
			s.Reset(cols)
			for _, o := range tt.obs {
				s.Observe(nil, o, 0)
			}
			if math.Abs(s.Value()-tt.want) > 1e-12 {
				t.Errorf("expected stability %f, got %f", tt.want, s.Value())
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	r := NewReturn()
	r.Observe(nil, nil, 2)
	got := Snapshot([]Metric{r, NewControlEffort()})
	if got["return"] != 2 || got["control_effort"] != 0 || len(got) != 2 {
		t.Errorf("unexpected snapshot %v", got)
	}
}
