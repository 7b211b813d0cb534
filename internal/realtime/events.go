package realtime

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventAuthenticate = "authenticate"
	EventTest         = "test"
)

// Server to client events.
const (
	EventAuthenticated       = "authenticated"
	EventAuthenticationError = "authentication_error"
	EventHeartbeat           = "heartbeat"
	EventTestResponse        = "test_response"
	EventError               = "error"
)

// Error codes carried by EventError.
const (
	CodeMaxConnections = "MAX_CONNECTIONS_REACHED"
	CodeInvalidData    = "INVALID_DATA"
	CodeRateLimited    = "RATE_LIMITED"
)

// timestampLayout renders millisecond UTC timestamps such as
// 2024-01-02T15:04:05.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is the JSON frame exchanged in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AuthenticatePayload is sent by a client to authenticate its session.
type AuthenticatePayload struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// AuthenticatedPayload acknowledges a successful authentication.
type AuthenticatedPayload struct {
	Success bool `json:"success"`
}

// AuthenticationErrorPayload reports a failed authentication.
type AuthenticationErrorPayload struct {
	Message string `json:"message"`
}

// HeartbeatPayload is emitted periodically to every live session.
type HeartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

// TestResponsePayload echoes a test event.
type TestResponsePayload struct {
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// ErrorPayload reports admission and validation failures.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// isJSONObject reports whether raw holds a JSON object.
func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return json.Valid(raw)
		default:
			return false
		}
	}
	return false
}
