// Package apierrors classifies failures into semantic kinds, generalizing
// the specification and carries the JSON envelope the façade writes back to
// clients. It generalizes the teacher's single-purpose ServiceError{Message}
// envelope with the Kind the RPC layer needs to decide how to respond.
package apierrors

import "fmt"

// Kind is a semantic error class, not an exception type.
type Kind string

// Error kinds.
const (
	KindNotFound           Kind = "not_found"
	KindUnauthorized       Kind = "unauthorized"
	KindValidationFailed   Kind = "validation_failed"
	KindPartialFailure     Kind = "partial_failure"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the classified error type every façade and rotation-engine
// operation returns.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates a classified error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around an existing error, preserving it
// for Unwrap/log detail while keeping Message as the user-visible reason.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// ServiceError is the JSON envelope returned by mutating RPCs ("All
// mutating RPCs return a {success, message} envelope even on expected
// failures").
type ServiceError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Envelope converts a classified error into the {success, message} shape.
// Kind is deliberately not serialized: clients key off HTTP status / message
// text, matching the teacher's own minimal ServiceError wire shape.
func Envelope(err error) ServiceError {
	if err == nil {
		return ServiceError{Success: true}
	}
	if ae, ok := err.(*Error); ok {
		return ServiceError{Success: false, Message: ae.Message}
	}
	return ServiceError{Success: false, Message: err.Error()}
}

// KindOf extracts the Kind of a classified error, defaulting to KindInternal
// for anything that isn't one — errors that escape classification are bugs,
// not expected conditions, so treating them as Internal is the safe default.
func KindOf(err error) Kind {
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return KindInternal
}
