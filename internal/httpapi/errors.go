package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/signalsfoundry/scenario-resimulator/core"
)

// codeInternal labels failures that did not come from the scenario service.
const codeInternal = "InternalError"

// errorBody is the JSON payload of every failed request.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	CauseType string `json:"cause_type,omitempty"`
}

// statusFor maps scenario service errors onto HTTP status codes.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindBadRequest, core.KindVariableNotFound, core.KindInvalidNumericInput:
		return http.StatusBadRequest
	case core.KindScenarioNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// bodyFor renders err for the client. Server-side failures name the type of
// the underlying cause so engine errors can be told apart.
func bodyFor(err error) errorBody {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: codeInternal}

	var ce *core.Error
	if errors.As(err, &ce) {
		body.Code = string(ce.Kind)
	}
	if status == http.StatusInternalServerError {
		cause := err
		if ce != nil && ce.Cause != nil {
			cause = ce.Cause
		}
		body.CauseType = fmt.Sprintf("%T", cause)
	}
	return body
}

func badRequest(format string, args ...any) error {
	return &core.Error{Kind: core.KindBadRequest, Message: fmt.Sprintf(format, args...)}
}
