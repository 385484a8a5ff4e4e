// Package timectrl drives model time for the simulation engine: it turns the
// control parameters of a model (initial time, final time, time step, save
// period) into a fixed grid of integration steps and notifies a listener at
// each one.
package timectrl

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGrid is wrapped by NewGrid for unusable control parameters.
var ErrInvalidGrid = errors.New("invalid time grid")

// stepEpsilon absorbs floating point noise when counting steps, so a final
// time that is an exact multiple of the step on paper is not lost.
const stepEpsilon = 1e-9

// Grid is an immutable integration schedule.
type Grid struct {
	Start float64
	Stop  float64
	Step  float64
	// SaveEvery is the number of integration steps between recorded rows.
	SaveEvery int

	steps int
}

// Tick describes one point on the grid.
type Tick struct {
	Index int
	Time  float64
	// Save is set when the tick falls on the save period.
	Save bool
	// Last is set on the final tick; no integration follows it.
	Last bool
}

// NewGrid validates the control parameters and builds a grid. savePeriod is
// rounded to the nearest whole number of steps, with a minimum of one.
func NewGrid(start, stop, step, savePeriod float64) (*Grid, error) {
	for name, v := range map[string]float64{
		"initial time": start, "final time": stop, "time step": step, "save period": savePeriod,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is not finite", ErrInvalidGrid, name)
		}
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: time step must be positive, got %v", ErrInvalidGrid, step)
	}
	if stop < start {
		return nil, fmt.Errorf("%w: final time %v precedes initial time %v", ErrInvalidGrid, stop, start)
	}
	if savePeriod <= 0 {
		savePeriod = step
	}
	every := int(math.Round(savePeriod / step))
	if every < 1 {
		every = 1
	}
	steps := int(math.Floor((stop-start)/step + stepEpsilon))
	return &Grid{
		Start:     start,
		Stop:      stop,
		Step:      step,
		SaveEvery: every,
		steps:     steps,
	}, nil
}

// Steps is the number of integration steps; the grid has Steps()+1 ticks.
func (g *Grid) Steps() int { return g.steps }

// SavePoints is the number of ticks that will be recorded.
func (g *Grid) SavePoints() int { return g.steps/g.SaveEvery + 1 }

// TimeAt returns the model time of tick i. Times are computed from the start
// rather than accumulated, so long runs do not drift.
func (g *Grid) TimeAt(i int) float64 {
	return g.Start + float64(i)*g.Step
}

// Run invokes fn for every tick in order. It stops at the first error from
// fn, or when ctx is done.
func (g *Grid) Run(ctx context.Context, fn func(Tick) error) error {
	for i := 0; i <= g.steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tick := Tick{
			Index: i,
			Time:  g.TimeAt(i),
			Save:  i%g.SaveEvery == 0,
			Last:  i == g.steps,
		}
		if err := fn(tick); err != nil {
			return err
		}
	}
	return nil
}
