// Package apierror defines the client-facing error taxonomy and the
// classifier chain that turns arbitrary failures into it.
//
// # Error Conventions
//
// Handlers and middleware never write error responses themselves. They
// record the failure with c.Error(err) and abort; the error responder
// resolves it through a Chain into exactly one *Error and writes one
// envelope.
//
//   - *Error is the typed form. Operational errors are anticipated and
//     their message is safe to show. Non-operational errors are
//     unexpected and their message is redacted outside development.
//   - Untyped errors reaching the end of the chain become a
//     non-operational INTERNAL_SERVER_ERROR.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error codes.
const (
	CodeBadRequest             = "BAD_REQUEST"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType   = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnprocessableEntity    = "UNPROCESSABLE_ENTITY"
	CodeTooManyRequests        = "TOO_MANY_REQUESTS"
	CodeInternalServerError    = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSIONS"
	CodeUnknown                = "UNKNOWN_ERROR"
)

// GenericInternalMessage replaces the message of non-operational errors
// outside development.
const GenericInternalMessage = "Internal Server Error"

const maxStackDepth = 32

// Error is a failure with an HTTP status and a stable code.
type Error struct {
	Message     string
	StatusCode  int
	Code        string
	Operational bool
	Details     any
	Cause       error

	stack []uintptr
}

// New creates an operational error and records the caller's stack.
func New(status int, code, message string) *Error {
	return newError(status, code, message, true)
}

func newError(status int, code, message string, operational bool) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	e := &Error{
		Message:     message,
		StatusCode:  status,
		Code:        code,
		Operational: operational,
	}
	e.stack = callers(4)
	return e
}

func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches diagnostic details and returns e.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithCause attaches the underlying error and returns e.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// ResponseCode returns the code to send, falling back to UNKNOWN_ERROR.
func (e *Error) ResponseCode() string {
	if e.Code == "" {
		return CodeUnknown
	}
	return e.Code
}

// Stack renders the stack recorded when the error was created.
func (e *Error) Stack() string {
	if len(e.stack) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(e.Error())
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "\n    at %s (%s:%d)", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Wrap turns an untyped failure into a non-operational internal error.
// Already-typed errors are returned unchanged.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	e := newError(http.StatusInternalServerError, CodeInternalServerError, err.Error(), false)
	e.Cause = err
	return e
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, CodeBadRequest, message, true)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message, true)
}

// AuthenticationRequired creates the 401 returned when no principal is present.
func AuthenticationRequired() *Error {
	return newError(http.StatusUnauthorized, CodeAuthenticationRequired, "Authentication Required", true)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, CodeForbidden, message, true)
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, message, true)
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return newError(http.StatusConflict, CodeConflict, message, true)
}

// PayloadTooLarge creates a 413 error.
func PayloadTooLarge(message string) *Error {
	return newError(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message, true)
}

// UnsupportedMediaType creates a 415 error.
func UnsupportedMediaType(message string) *Error {
	return newError(http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, message, true)
}

// UnprocessableEntity creates a 422 error.
func UnprocessableEntity(message string) *Error {
	return newError(http.StatusUnprocessableEntity, CodeUnprocessableEntity, message, true)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *Error {
	return newError(http.StatusTooManyRequests, CodeTooManyRequests, message, true)
}

// Internal creates an operational 500 error.
func Internal(message string) *Error {
	return newError(http.StatusInternalServerError, CodeInternalServerError, message, true)
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, CodeServiceUnavailable, message, true)
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports invalid input found by handler code.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// RouteNotFoundError is recorded when no route matches a request.
type RouteNotFoundError struct {
	Method string
	Path   string
}

// Error implements the error interface.
func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("Route %s %s not found", e.Method, e.Path)
}
