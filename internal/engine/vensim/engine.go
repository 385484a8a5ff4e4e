// Package vensim is a native engine for Vensim .mdl models. It supports the
// stock-and-flow subset scenario models are written in: constants,
// auxiliaries, INTEG stocks, lookup tables and the common time-input
// builtins, integrated with Euler's method. Subscripts, macros, data
// variables and delay/smooth families are rejected with ErrUnsupported.
package vensim

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/scenario-resimulator/internal/engine"
	"github.com/signalsfoundry/scenario-resimulator/model"
)

// DefaultMaxSavePoints bounds the rows a single run may record.
const DefaultMaxSavePoints = 1_000_000

// Engine parses and simulates a model on every Run; it keeps no state
// between runs.
type Engine struct {
	maxSavePoints int
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSavePoints caps the number of recorded rows. n <= 0 removes the cap.
func WithMaxSavePoints(n int) Option {
	return func(e *Engine) { e.maxSavePoints = n }
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{maxSavePoints: DefaultMaxSavePoints}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run implements engine.Engine.
func (e *Engine) Run(ctx context.Context, artifact []byte, overrides engine.Overrides) (tbl *model.ResultTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			tbl = nil
			err = &EvalError{Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := Parse(artifact)
	if err != nil {
		return nil, err
	}
	return m.Simulate(ctx, overrides, e.maxSavePoints)
}
