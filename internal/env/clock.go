package env

import (
	"math"

	"github.com/san-kum/gridgym/internal/dynamo"
)

// Unbounded disables the episode step limit.
const Unbounded = -1

// Clock tracks the simulation interval of an episode. The interval is
// derived from an integer index so repeated stepping does not accumulate
// rounding error.
type Clock struct {
	start    float64
	step     float64
	maxSteps int
	index    int
	steps    int
}

// NewClock returns a clock starting at start with the given slice width.
// A negative maxSteps means the episode has no step limit.
func NewClock(start, step float64, maxSteps int) Clock {
	return Clock{start: start, step: step, maxSteps: maxSteps}
}

func (c *Clock) Reset() {
	c.index = 0
	c.steps = 0
}

// Interval returns the slice integrated by the next step.
func (c Clock) Interval() dynamo.Interval {
	t0 := c.start + float64(c.index)*c.step
	return dynamo.Interval{T0: t0, T1: c.start + float64(c.index+1)*c.step}
}

func (c Clock) Start() float64 { return c.start }

func (c Clock) StepSize() float64 { return c.step }

func (c Clock) Bounded() bool { return c.maxSteps >= 0 }

// End is start + maxSteps*step, or +Inf when unbounded.
func (c Clock) End() float64 {
	if !c.Bounded() {
		return math.Inf(1)
	}
	return c.start + float64(c.maxSteps)*c.step
}

// Steps returns the number of steps taken in this episode.
func (c Clock) Steps() int { return c.steps }

// Expired reports whether the step limit has been reached.
func (c Clock) Expired() bool {
	return c.Bounded() && c.steps >= c.maxSteps
}

func (c *Clock) tick() { c.steps++ }

func (c *Clock) advance() { c.index++ }
