// Package apperr defines the structured error kinds shared by the domain
// services. Handlers map kinds to HTTP statuses at the edge; services and
// repositories only ever deal in kinds.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// Validation marks a missing or malformed field in the caller's input.
	Validation Kind = iota
	// Forbidden marks an actor lacking the capability for an operation.
	Forbidden
	// NotFound marks a missing record.
	NotFound
	// Conflict marks a uniqueness violation, such as a duplicate pending
	// escalation for a patient.
	Conflict
	// InvalidState marks an operation attempted against a record that has
	// already left the required state.
	InvalidState
	// Dependency marks a failure in a collaborating store or service. The
	// caller may retry.
	Dependency
	// Internal marks everything else.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InvalidState:
		return "invalid_state"
	case Dependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Error is a kinded application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the given kind and message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or Internal if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the HTTP status a handler should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidState:
		return http.StatusConflict
	case Dependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
