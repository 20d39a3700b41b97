// Package apierror provides standardized error response structures for the API
// plus the typed error taxonomy used by the drawer core. All errors returned to
// clients go through this package to ensure consistency and to prevent leaking
// internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error so handlers can map it to an HTTP status
// without string-matching messages.
type Kind int

const (
	KindUnexpected        Kind = iota // infrastructure/persistence failure → 500
	KindConflict                      // disallowed by current entity state → 400
	KindNotFound                      // referenced entity does not exist → 404
	KindPrecondition                  // required preceding state missing → 400
	KindInsufficientFunds             // cash-out exceeds computed balance → 400
	KindForbidden                     // caller may not access this entity → 403
)

// Error is the canonical domain error. Context optionally carries an entity
// the caller needs to resolve the conflict (e.g. the already-open session).
type Error struct {
	Kind    Kind
	Message string
	Context interface{}
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Status maps the error kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindConflict, KindPrecondition, KindInsufficientFunds:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Precondition(msg string) *Error { return &Error{Kind: KindPrecondition, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }

func InsufficientFunds(msg string) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: msg}
}

// ConflictWith attaches the conflicting entity so the response can return it
// as context (e.g. "drawer already open" plus the open session).
func ConflictWith(msg string, ctx interface{}) *Error {
	return &Error{Kind: KindConflict, Message: msg, Context: ctx}
}

// Unexpected wraps an infrastructure error behind a generic client-safe
// message. The cause stays attached for logging but is never serialized.
func Unexpected(msg string, cause error) *Error {
	return &Error{Kind: KindUnexpected, Message: msg, cause: cause}
}

// From extracts an *Error from err, or wraps it as Unexpected.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Unexpected("Internal server error", err)
}

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string      `json:"detail"`
	Data   interface{} `json:"data,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// NewWith includes contextual data alongside the error detail.
func NewWith(msg string, data interface{}) *APIError {
	return &APIError{Detail: msg, Data: data}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Validation error", Fields: fields}
}
