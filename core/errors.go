package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind classifies a scenario operation failure.
type Kind string

const (
	KindBadRequest          Kind = "BadRequest"
	KindScenarioNotFound    Kind = "ScenarioNotFound"
	KindVariableNotFound    Kind = "VariableNotFound"
	KindInvalidNumericInput Kind = "InvalidNumericInput"
	KindSimulationError     Kind = "SimulationError"
	KindStorageError        Kind = "StorageError"
)

// Sentinels matched by kind through errors.Is.
var (
	ErrBadRequest          = &Error{Kind: KindBadRequest}
	ErrScenarioNotFound    = &Error{Kind: KindScenarioNotFound}
	ErrVariableNotFound    = &Error{Kind: KindVariableNotFound}
	ErrInvalidNumericInput = &Error{Kind: KindInvalidNumericInput}
	ErrSimulation          = &Error{Kind: KindSimulationError}
	ErrStorage             = &Error{Kind: KindStorageError}
)

// ErrInvalidNumber is wrapped by ParseNumber.
var ErrInvalidNumber = errors.New("invalid number")

// Error is the typed failure returned by ScenarioService.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ParseNumber parses a client-supplied decimal. Surrounding whitespace is
// ignored; NaN and infinities are rejected.
func ParseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidNumber, raw)
	}
	return v, nil
}
