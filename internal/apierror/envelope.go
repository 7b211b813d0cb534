package apierror

import (
	"net/http"
	"time"
)

// Envelope is the JSON body of every error response.
type Envelope struct {
	Error     Body   `json:"error"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	Method    string `json:"method"`
}

// Body is the error section of an Envelope.
type Body struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	StatusCode int    `json:"statusCode"`
	Stack      string `json:"stack,omitempty"`
	Details    any    `json:"details,omitempty"`
}

// NewEnvelope renders e for a client. Outside development the stack is
// omitted, non-operational messages are replaced, and details are kept
// only for client errors.
func NewEnvelope(e *Error, method, path string, development bool, now time.Time) Envelope {
	status := e.StatusCode
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}

	body := Body{
		Message:    e.Message,
		Code:       e.ResponseCode(),
		StatusCode: status,
	}

	if !e.Operational && !development {
		body.Message = GenericInternalMessage
	}
	if development {
		body.Stack = e.Stack()
	}
	if development || status < http.StatusInternalServerError {
		body.Details = e.Details
	}

	return Envelope{
		Error:     body,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Path:      path,
		Method:    method,
	}
}
