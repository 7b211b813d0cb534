package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// Verifier validates in-band authentication tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

var (
	// ErrVerifierRequired is returned when strict authentication is enabled
	// without a Verifier.
	ErrVerifierRequired = errors.New("strict websocket authentication requires a token verifier")

	// ErrMissingToken is returned for an authenticate event without a token.
	ErrMissingToken = errors.New("missing token")

	// ErrManagerClosed is returned once Shutdown has been called.
	ErrManagerClosed = errors.New("websocket manager is shut down")
)

// Config configures a Manager. A zero MaxConnections disables the
// admission ceiling and a zero MessagesPerSecond disables per-session
// throttling. AllowedOrigins lists browser origins permitted to connect;
// empty or "*" allows any origin.
type Config struct {
	HeartbeatInterval time.Duration
	MaxConnections    int
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	StrictAuth        bool
	AllowedOrigins    []string
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		MaxConnections:    1000,
		MaxMessageBytes:   1 << 20,
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

// Manager admits WebSocket sessions, tracks them in a connection table and
// keeps them alive with heartbeats until they disconnect.
type Manager struct {
	cfg      Config
	upgrader websocket.Upgrader
	registry *registry
	verifier Verifier
	logger   observability.Logger
	metrics  *Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithVerifier sets the token verifier used in strict mode.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	defaults := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaults.MaxMessageBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		registry: newRegistry(),
		logger:   observability.NopLogger(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.StrictAuth && m.verifier == nil {
		cancel()
		return nil, ErrVerifierRequired
	}

	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return m, nil
}

// ServeHTTP upgrades the request and runs the session until it ends.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		http.Error(w, ErrManagerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		m.logger.Debug("websocket upgrade failed", observability.Error(err))
		return
	}
	conn.SetReadLimit(m.cfg.MaxMessageBytes)

	s := m.newSession(conn)
	count := m.registry.add(s)
	m.metrics.setActive(count)

	if m.cfg.MaxConnections > 0 && count > m.cfg.MaxConnections {
		m.metrics.recordRejected()
		m.logger.Warn("websocket connection rejected",
			observability.String("socket_id", s.id),
			observability.Int("connections", count),
			observability.Int("max_connections", m.cfg.MaxConnections),
		)
		s.sendError(CodeMaxConnections, "Maximum connections reached")
		s.close(websocket.CloseTryAgainLater, "Maximum connections reached")
		return
	}

	s.logger.Info("websocket client connected",
		observability.String("remote_addr", r.RemoteAddr),
	)

	s.startHeartbeat(m.cfg.HeartbeatInterval)
	s.readLoop()
	s.close(websocket.CloseNormalClosure, "")
}

func (m *Manager) newSession(conn *websocket.Conn) *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(m.ctx)

	s := &session{
		id:          id,
		conn:        conn,
		manager:     m,
		logger:      m.logger.With(observability.String("socket_id", id)),
		ctx:         ctx,
		cancel:      cancel,
		connectedAt: m.now(),
	}
	if m.cfg.MessagesPerSecond > 0 {
		burst := m.cfg.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(m.cfg.MessagesPerSecond), burst)
	}
	return s
}

// release removes a closed session from the connection table.
func (m *Manager) release(s *session) {
	count, ok := m.registry.remove(s.id)
	if !ok {
		return
	}
	m.metrics.setActive(count)
	s.logger.Info("websocket client disconnected",
		observability.String("user_id", s.record().UserID),
		observability.Int("connections", count),
	)
}

// authenticate resolves the user for an authenticate event. Without strict
// mode any non-empty token is accepted and the client-supplied user id is
// trusted.
func (m *Manager) authenticate(ctx context.Context, payload AuthenticatePayload) (string, error) {
	if payload.Token == "" {
		return "", ErrMissingToken
	}
	if !m.cfg.StrictAuth {
		return payload.UserID, nil
	}

	principal, err := m.verifier.Verify(ctx, payload.Token)
	if err != nil {
		return "", err
	}
	return principal.ID, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.registry.len()
}

// Connections returns a snapshot of the connection table ordered by
// connection time.
func (m *Manager) Connections() []ConnectionRecord {
	return m.registry.records()
}

// Shutdown stops accepting sessions, closes the live ones and waits for
// their handlers to return or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	for _, s := range m.registry.list() {
		s.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
