package vensim

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/scenario-resimulator/internal/engine"
	"github.com/signalsfoundry/scenario-resimulator/model"
	"github.com/signalsfoundry/scenario-resimulator/timectrl"
)

type evalState uint8

const (
	unvisited evalState = iota
	visiting
	done
)

// run is the mutable state of one simulation.
type run struct {
	m         *Model
	overrides []model.Series // by variable idx; nil when not overridden
	stocks    []float64
	dt        float64
}

// step evaluates the model at one instant. Variables are computed on first
// use and memoized for the rest of the step.
type step struct {
	r      *run
	tick   int
	time   float64
	dt     float64
	values []float64
	state  []evalState
	// static is set while resolving control parameters, before a time grid
	// exists.
	static bool
}

func (r *run) newStep(tick int, t float64) *step {
	s := &step{
		r:      r,
		tick:   tick,
		time:   t,
		dt:     r.dt,
		values: make([]float64, len(r.m.ordered)),
		state:  make([]evalState, len(r.m.ordered)),
	}
	if tick > 0 {
		for _, v := range r.m.stocks {
			if r.overrides[v.idx] != nil {
				continue
			}
			s.values[v.idx] = r.stocks[v.stockIdx]
			s.state[v.idx] = done
		}
	}
	return s
}

func (s *step) value(v *variable) (float64, error) {
	switch s.state[v.idx] {
	case done:
		return s.values[v.idx], nil
	case visiting:
		return 0, &EvalError{Variable: v.name, Time: s.time, Msg: "circular dependency"}
	}
	s.state[v.idx] = visiting

	var (
		x   float64
		err error
	)
	switch {
	case s.r.overrides[v.idx] != nil:
		x = s.r.overrides[v.idx].At(s.time)
	case s.static && v.kind == kindStock:
		err = &ModelError{Variable: v.name, Msg: "control parameters cannot depend on stocks"}
	case v.kind == kindStock:
		// Reached only on the first tick; later ticks are seeded.
		x, err = s.eval(v.init)
	default:
		x, err = s.eval(v.expr)
	}
	if err != nil {
		s.state[v.idx] = unvisited
		return 0, err
	}
	s.values[v.idx] = x
	s.state[v.idx] = done
	return x, nil
}

func (s *step) eval(n node) (float64, error) {
	switch t := n.(type) {
	case numberNode:
		return t.value, nil
	case refNode:
		if t.key == keyTime {
			if s.static {
				return 0, &ModelError{Msg: "control parameters cannot depend on TIME"}
			}
			return s.time, nil
		}
		return s.value(s.r.m.vars[t.key])
	case unaryNode:
		x, err := s.eval(t.x)
		if err != nil {
			return 0, err
		}
		if t.op == ":NOT:" {
			return boolValue(x == 0), nil
		}
		return -x, nil
	case binaryNode:
		return s.evalBinary(t)
	case callNode:
		if b, ok := builtins[t.fn]; ok {
			return b.fn(s, t.args)
		}
		x, err := s.eval(t.args[0])
		if err != nil {
			return 0, err
		}
		return s.r.m.vars[t.fn].table.at(x), nil
	case withLookupNode:
		x, err := s.eval(t.input)
		if err != nil {
			return 0, err
		}
		return t.table.at(x), nil
	}
	return 0, fmt.Errorf("vensim: unhandled node %T", n)
}

func (s *step) evalBinary(n binaryNode) (float64, error) {
	l, err := s.eval(n.l)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case ":AND:":
		if l == 0 {
			return 0, nil
		}
	case ":OR:":
		if l != 0 {
			return 1, nil
		}
	}
	r, err := s.eval(n.r)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		return l / r, nil
	case "^":
		return math.Pow(l, r), nil
	case "=":
		return boolValue(l == r), nil
	case "<>":
		return boolValue(l != r), nil
	case "<":
		return boolValue(l < r), nil
	case ">":
		return boolValue(l > r), nil
	case "<=":
		return boolValue(l <= r), nil
	case ">=":
		return boolValue(l >= r), nil
	case ":AND:", ":OR:":
		return boolValue(r != 0), nil
	}
	return 0, fmt.Errorf("vensim: unhandled operator %q", n.op)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Simulate integrates the model with Euler's method over its control
// parameters and records every variable at each save point. Overrides are
// keyed by any spelling of a variable name and replace its trajectory for
// the whole run.
func (m *Model) Simulate(ctx context.Context, overrides engine.Overrides, maxSavePoints int) (*model.ResultTable, error) {
	r := &run{
		m:         m,
		overrides: make([]model.Series, len(m.ordered)),
		stocks:    make([]float64, len(m.stocks)),
	}
	for name, series := range overrides {
		v, ok := m.lookupVar(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrUnknownVariable, name)
		}
		switch {
		case isControl(v.key):
			return nil, &ModelError{Variable: v.name, Msg: "control parameters cannot be overridden"}
		case v.kind == kindLookup:
			return nil, &ModelError{Variable: v.name, Msg: "lookup tables cannot be overridden"}
		case len(series) == 0:
			return nil, &ModelError{Variable: v.name, Msg: "override series is empty"}
		case !series.IsAscending():
			return nil, &ModelError{Variable: v.name, Msg: "override series times must be ascending"}
		}
		r.overrides[v.idx] = series
	}

	grid, err := m.grid(r)
	if err != nil {
		return nil, err
	}
	if maxSavePoints > 0 && grid.SavePoints() > maxSavePoints {
		return nil, &ModelError{Msg: fmt.Sprintf("run would record %d save points, limit is %d", grid.SavePoints(), maxSavePoints)}
	}
	r.dt = grid.Step

	tbl := model.NewResultTable(TimeColumn, m.Columns())
	row := make([]float64, len(m.columns))
	err = grid.Run(ctx, func(tick timectrl.Tick) error {
		s := r.newStep(tick.Index, tick.Time)
		if tick.Save {
			for i, v := range m.columns {
				x, err := s.value(v)
				if err != nil {
					return err
				}
				row[i] = x
			}
			if err := tbl.AppendRow(tick.Time, row); err != nil {
				return err
			}
		}
		if tick.Last {
			return nil
		}

		next := make([]float64, len(m.stocks))
		for i, v := range m.stocks {
			if r.overrides[v.idx] != nil {
				continue
			}
			level, err := s.value(v)
			if err != nil {
				return err
			}
			rate, err := s.eval(v.rate)
			if err != nil {
				return err
			}
			next[i] = level + r.dt*rate
		}
		r.stocks = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tbl, nil
}

// grid resolves the control parameters into a time grid.
func (m *Model) grid(r *run) (*timectrl.Grid, error) {
	s := r.newStep(0, math.NaN())
	s.static = true
	control := func(key string) (float64, error) {
		v, ok := m.vars[key]
		if !ok {
			return 0, nil
		}
		return s.value(v)
	}
	start, err := control(keyInitialTime)
	if err != nil {
		return nil, err
	}
	stop, err := control(keyFinalTime)
	if err != nil {
		return nil, err
	}
	dt, err := control(keyTimeStep)
	if err != nil {
		return nil, err
	}
	save, err := control(keySavePeriod)
	if err != nil {
		return nil, err
	}
	g, err := timectrl.NewGrid(start, stop, dt, save)
	if err != nil {
		return nil, &ModelError{Msg: "bad control parameters", Err: err}
	}
	return g, nil
}
