package binding

import (
	"errors"
	"fmt"

	"github.com/roach88/bindery/internal/filter"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/paginate"
	"github.com/roach88/bindery/internal/serializer"
	"github.com/roach88/bindery/internal/store"
)

// Error details sent to clients. Clients match on these strings.
const (
	DetailPermissionDenied = "Permission Denied"
	DetailInvalidAction    = "Invalid Action"
	DetailMalformedRequest = "Malformed Request"
	DetailInvalidStream    = "Invalid Stream"
	DetailInternalError    = "Internal Error"
	DetailRateLimited      = "Rate Limited"
	DetailNotFound         = "Not found."
	DetailInvalidPage      = "Invalid page."
)

// APIError is a client-facing failure: a response status plus a detail
// that is a string, a list, or an object.
//
// APIError is the only error type that reaches the wire unchanged; every
// other error is mapped through asAPIError.
type APIError struct {
	// Status is the response_status of the reply.
	Status int

	// Detail is normalized by Errors into the reply's errors list.
	Detail ir.Value
}

// Error implements the error interface.
func (e *APIError) Error() string {
	b, err := ir.MarshalCanonical(e.Detail)
	if err != nil {
		return fmt.Sprintf("api error %d", e.Status)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, b)
}

// Errors returns the detail as an ordered list of error entries. A list
// detail is used as is; any other detail becomes a one-element list.
func (e *APIError) Errors() []ir.Value {
	switch d := e.Detail.(type) {
	case nil:
		return []ir.Value{}
	case ir.Array:
		out := make([]ir.Value, len(d))
		copy(out, d)
		return out
	default:
		return []ir.Value{d}
	}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == status
	}
	return false
}

// NewAPIError creates an APIError with a string detail.
func NewAPIError(status int, detail string) *APIError {
	return &APIError{Status: status, Detail: ir.String(detail)}
}

// NewValidationError creates a 400 APIError with a structured detail.
func NewValidationError(detail ir.Value) *APIError {
	return &APIError{Status: 400, Detail: detail}
}

// PermissionDenied is returned when the permission chain rejects a request.
func PermissionDenied() *APIError {
	return NewAPIError(401, DetailPermissionDenied)
}

// InvalidAction is returned for an action name missing from the table.
func InvalidAction() *APIError {
	return NewAPIError(400, DetailInvalidAction)
}

// NotFound is returned when a target id does not resolve to an entity.
func NotFound() *APIError {
	return NewAPIError(404, DetailNotFound)
}

// MalformedRequest is returned for frames that are not a valid request.
func MalformedRequest() *APIError {
	return NewAPIError(400, DetailMalformedRequest)
}

// InvalidStream is returned when no binding serves the requested stream.
func InvalidStream() *APIError {
	return NewAPIError(400, DetailInvalidStream)
}

// RateLimited is returned when a connection sends faster than allowed.
func RateLimited() *APIError {
	return NewAPIError(429, DetailRateLimited)
}

func fieldError(field, msg string) *APIError {
	return NewValidationError(ir.Object{field: ir.Array{ir.String(msg)}})
}

// asAPIError maps err to the APIError sent to the client. The second
// result is false for unexpected errors, which become a 500.
func asAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	var ve *serializer.ValidationError
	if errors.As(err, &ve) {
		return NewValidationError(ve.Detail()), true
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound(), true
	case errors.Is(err, paginate.ErrInvalidPage):
		return NewAPIError(404, DetailInvalidPage), true
	case errors.Is(err, filter.ErrInvalidFilter):
		return fieldError("filter", err.Error()), true
	}
	return NewAPIError(500, DetailInternalError), false
}
