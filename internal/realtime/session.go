package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

const (
	writeWait        = 10 * time.Second
	closeGracePeriod = time.Second
)

// session is one live WebSocket connection.
type session struct {
	id      string
	conn    *websocket.Conn
	manager *Manager
	logger  observability.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu          sync.Mutex
	userID      string
	connectedAt time.Time
	hbDone      chan struct{}

	closeOnce sync.Once
}

func (s *session) record() ConnectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionRecord{
		SocketID:    s.id,
		UserID:      s.userID,
		ConnectedAt: s.connectedAt,
	}
}

func (s *session) setUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// send writes one event. Writes are serialized per connection.
func (s *session) send(event string, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(outbound{Event: event, Data: data})
}

func (s *session) sendError(code, message string) {
	if err := s.send(EventError, ErrorPayload{Code: code, Message: message}); err != nil {
		s.logger.Debug("failed to send error event",
			observability.String("code", code),
			observability.Error(err),
		)
	}
}

// startHeartbeat emits a heartbeat every interval until the session ends.
func (s *session) startHeartbeat(interval time.Duration) {
	done := make(chan struct{})
	s.mu.Lock()
	s.hbDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				payload := HeartbeatPayload{Timestamp: formatTimestamp(s.manager.now())}
				if err := s.send(EventHeartbeat, payload); err != nil {
					s.logger.Debug("heartbeat write failed", observability.Error(err))
					// unblock the read loop so the session is torn down
					s.cancel()
					_ = s.conn.Close()
					return
				}
				s.manager.metrics.recordHeartbeat()
			}
		}
	}()
}

// readLoop dispatches inbound frames until the connection fails.
func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) && s.ctx.Err() == nil {
				s.logger.Debug("websocket read failed", observability.Error(err))
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.sendError(CodeRateLimited, "Too many messages")
			continue
		}

		s.dispatch(data)
	}
}

func (s *session) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
		s.manager.metrics.recordMessage("")
		s.sendError(CodeInvalidData, "Invalid message format")
		return
	}
	s.manager.metrics.recordMessage(msg.Event)

	switch msg.Event {
	case EventAuthenticate:
		s.handleAuthenticate(msg.Data)
	case EventTest:
		s.handleTest(msg.Data)
	default:
		s.logger.Debug("ignoring unknown event", observability.String("event", msg.Event))
	}
}

func (s *session) handleAuthenticate(data json.RawMessage) {
	var payload AuthenticatePayload
	if len(data) > 0 {
		// a malformed payload is treated like a missing token
		_ = json.Unmarshal(data, &payload)
	}

	userID, err := s.manager.authenticate(s.ctx, payload)
	if err != nil {
		s.manager.metrics.recordAuth(false)
		s.logger.Info("websocket authentication failed",
			observability.String("token_fp", auth.Fingerprint(payload.Token)),
			observability.Error(err),
		)
		if sendErr := s.send(EventAuthenticationError, AuthenticationErrorPayload{Message: "Invalid token"}); sendErr != nil {
			s.logger.Debug("failed to send authentication error", observability.Error(sendErr))
		}
		return
	}

	s.setUser(userID)
	s.manager.metrics.recordAuth(true)
	s.logger.Info("websocket session authenticated",
		observability.String("user_id", userID),
		observability.String("token_fp", auth.Fingerprint(payload.Token)),
	)
	if err := s.send(EventAuthenticated, AuthenticatedPayload{Success: true}); err != nil {
		s.logger.Debug("failed to send authentication ack", observability.Error(err))
	}
}

func (s *session) handleTest(data json.RawMessage) {
	if !isJSONObject(data) {
		s.sendError(CodeInvalidData, "Invalid data format")
		return
	}

	resp := TestResponsePayload{
		Message:   "Test received",
		Data:      data,
		Timestamp: formatTimestamp(s.manager.now()),
	}
	if err := s.send(EventTestResponse, resp); err != nil {
		s.logger.Debug("failed to send test response", observability.Error(err))
	}
}

// close tears the session down exactly once: the heartbeat is stopped and
// waited for, the peer gets a close frame, and the record is removed.
func (s *session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.cancel()

		msg := websocket.FormatCloseMessage(code, reason)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("failed to send close frame", observability.Error(err))
		}
		_ = s.conn.Close()

		s.mu.Lock()
		done := s.hbDone
		s.mu.Unlock()
		if done != nil {
			<-done
		}

		s.manager.release(s)
	})
}
