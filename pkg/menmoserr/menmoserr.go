// Package menmoserr carries the coordinator's error taxonomy from the
// layer that can classify a failure down to the HTTP boundary. Every
// error that crosses a component boundary is wrapped in a *Error so
// the HTTP handler never has to guess a status code.
package menmoserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of a coordinator failure.
type Kind string

const (
	Unauthorized        Kind = "unauthorized"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	BadRequest          Kind = "bad_request"
	Conflict            Kind = "conflict"
	NoCapacity          Kind = "no_capacity"
	UpstreamUnavailable Kind = "upstream_unavailable"
	StorageFailure      Kind = "storage_failure"
	Corrupted           Kind = "corrupted"
)

// httpStatus maps each Kind to the HTTP status spec.md §7 assigns it.
var httpStatus = map[Kind]int{
	Unauthorized:        http.StatusUnauthorized,
	Forbidden:           http.StatusForbidden,
	NotFound:            http.StatusNotFound,
	BadRequest:          http.StatusBadRequest,
	Conflict:            http.StatusConflict,
	NoCapacity:          http.StatusServiceUnavailable,
	UpstreamUnavailable: http.StatusBadGateway,
	StorageFailure:      http.StatusInternalServerError,
	Corrupted:           http.StatusInternalServerError,
}

// Error is a classified coordinator error. It wraps the underlying
// cause so callers can still errors.Is/errors.As through it, while
// guaranteeing every error that reaches an HTTP handler carries a
// Kind the handler can render without re-deriving it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code this error's Kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error under kind, preserving it for
// errors.Is/errors.As and logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is reports whether err (or an error it wraps) is an *Error of the
// given kind. An error that was never classified matches no kind, so
// Is returns false for it.
func Is(err error, kind Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or StorageFailure if err was never
// classified by this package.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return StorageFailure
}
