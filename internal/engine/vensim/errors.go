package vensim

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks model constructs this engine does not implement.
var ErrUnsupported = errors.New("unsupported construct")

// SyntaxError reports an equation that could not be parsed.
type SyntaxError struct {
	Variable string
	Pos      int
	Msg      string
	Err      error
}

func (e *SyntaxError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Variable, e.Pos, e.Msg)
	}
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ModelError reports a well-formed equation set that does not describe a
// runnable model: undefined references, cycles, bad control parameters.
type ModelError struct {
	Variable string
	Msg      string
	Err      error
}

func (e *ModelError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("model error in %q: %s", e.Variable, e.Msg)
	}
	return "model error: " + e.Msg
}

func (e *ModelError) Unwrap() error { return e.Err }

// EvalError reports a failure while integrating the model.
type EvalError struct {
	Variable string
	Time     float64
	Msg      string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error in %q at time %v: %s", e.Variable, e.Time, e.Msg)
}

func (e *EvalError) Unwrap() error { return e.Err }
