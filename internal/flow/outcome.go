package flow

import (
	"errors"
	"fmt"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/identity"
)

// Outcome is a successful step result: where the client goes next and any
// data the step renders.
type Outcome struct {
	Next string      `json:"next"`
	Data interface{} `json:"data,omitempty"`
}

// ValidationError carries field-keyed messages. No side effect happened.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// SubmitError is a gateway failure surfaced as one submit-level message.
// Values echoes the non-secret fields so the client can keep them filled in.
type SubmitError struct {
	Kind    identity.Kind
	Op      identity.Op
	Message string
	Values  map[string]string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Kind)
}

func (e *SubmitError) Unwrap() error { return e.Err }

func newSubmitError(op identity.Op, err error, values map[string]string) *SubmitError {
	kind := identity.KindOf(err)
	return &SubmitError{
		Kind:    kind,
		Op:      op,
		Message: kind.Message(op),
		Values:  values,
		Err:     err,
	}
}

// RedirectError is a silent corrective redirect.
type RedirectError struct {
	To string
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.To
}

// ErrStale is returned when the request went away while a gateway call was in
// flight. The call's result was discarded.
var ErrStale = errors.New("flow: request ended before the result could be applied")

// toAPIError maps step failures onto the response envelope.
func toAPIError(err error) (*common.APIError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return common.NewValidationAPIError(ve.Fields), true
	}
	var se *SubmitError
	if errors.As(err, &se) {
		apiErr := common.NewAPIError(se.Kind.HTTPStatus(), string(se.Kind), se.Message)
		if len(se.Values) > 0 {
			apiErr = apiErr.WithDetails(map[string]interface{}{"values": se.Values})
		}
		return apiErr, true
	}
	return common.IsAPIError(err)
}
