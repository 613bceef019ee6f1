package env

import "math"

// Param is a model parameter value as a function of time. It is either a
// Constant or a TimeFunc.
type Param interface {
	At(t float64) float64
	param()
}

type Constant float64

func (c Constant) At(float64) float64 { return float64(c) }
func (Constant) param()               {}

type TimeFunc func(t float64) float64

func (f TimeFunc) At(t float64) float64 { return f(t) }
func (TimeFunc) param()                 {}

// Step switches from before to after at time at.
func Step(at, before, after float64) TimeFunc {
	return func(t float64) float64 {
		if t < at {
			return before
		}
		return after
	}
}

// Ramp moves linearly from one value to another between t0 and t1 and
// holds the end values outside that window.
func Ramp(t0, t1, from, to float64) TimeFunc {
	return func(t float64) float64 {
		switch {
		case t <= t0:
			return from
		case t >= t1:
			return to
		}
		return from + (to-from)*(t-t0)/(t1-t0)
	}
}

// Sine returns offset + amp*sin(2*pi*freq*t + phase).
func Sine(amp, freq, phase, offset float64) TimeFunc {
	return func(t float64) float64 {
		return offset + amp*math.Sin(2*math.Pi*freq*t+phase)
	}
}
