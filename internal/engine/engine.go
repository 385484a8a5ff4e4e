// Package engine defines the simulation engine contract the scenario service
// runs models through.
package engine

import (
	"context"
	"errors"

	"github.com/signalsfoundry/scenario-resimulator/model"
)

// ErrUnknownVariable is wrapped by engines when an override names a variable
// the model does not define.
var ErrUnknownVariable = errors.New("unknown variable")

// Overrides replaces the natively computed trajectory of variables, keyed by
// engine-native name. The override is active over the whole run; callers
// encode "from time T onward" in the series itself.
type Overrides map[string]model.Series

// Engine runs a model artifact and returns its time-indexed results. Engines
// are stateless between invocations.
type Engine interface {
	Run(ctx context.Context, artifact []byte, overrides Overrides) (*model.ResultTable, error)
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, artifact []byte, overrides Overrides) (*model.ResultTable, error)

// Run calls f.
func (f Func) Run(ctx context.Context, artifact []byte, overrides Overrides) (*model.ResultTable, error) {
	return f(ctx, artifact, overrides)
}
