package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultCheckTimeout bounds all checks of one health request.
const DefaultCheckTimeout = 5 * time.Second

// Status values reported by the handler.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Check is a named dependency probe.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a Check from fn.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the name of the check.
func (f *CheckFunc) Name() string {
	return f.name
}

// Check runs the check.
func (f *CheckFunc) Check(ctx context.Context) error {
	return f.fn(ctx)
}

// Pinger is implemented by dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck creates a Check that pings p.
func NewPingCheck(name string, p Pinger) *CheckFunc {
	return NewCheckFunc(name, p.Ping)
}

// Response is the body of the health endpoint.
type Response struct {
	Status      string                  `json:"status"`
	Timestamp   string                  `json:"timestamp"`
	Version     string                  `json:"version"`
	Environment string                  `json:"environment"`
	Uptime      string                  `json:"uptime,omitempty"`
	Checks      map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Handler serves the health endpoints.
type Handler struct {
	version     string
	environment string
	logger      *zap.Logger
	timeout     time.Duration
	now         func() time.Time
	startTime   time.Time

	mu     sync.RWMutex
	checks []Check
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used to report failed checks.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTimeout overrides DefaultCheckTimeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithClock overrides the clock used for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a health handler for the given build.
func NewHandler(version, environment string, opts ...Option) *Handler {
	h := &Handler{
		version:     version,
		environment: environment,
		logger:      zap.NewNop(),
		timeout:     DefaultCheckTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.now()
	return h
}

// AddCheck registers a check. Checks with the same name replace each other.
func (h *Handler) AddCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, existing := range h.checks {
		if existing.Name() == check.Name() {
			h.checks[i] = check
			return
		}
	}
	h.checks = append(h.checks, check)
}

// Report runs every check and builds the response.
func (h *Handler) Report(ctx context.Context) *Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	now := h.now()
	resp := &Response{
		Status:      StatusOK,
		Timestamp:   now.UTC().Format(timestampLayout),
		Version:     h.version,
		Environment: h.environment,
		Uptime:      now.Sub(h.startTime).Round(time.Second).String(),
	}
	if len(checks) == 0 {
		return resp
	}

	resp.Checks = make(map[string]*CheckResult, len(checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			elapsed := time.Since(start)

			result := &CheckResult{Status: StatusOK, Duration: elapsed.String()}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", c.Name()),
					zap.Error(err),
					zap.Duration("duration", elapsed),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[c.Name()] = result
			if err != nil {
				resp.Status = StatusError
			}
		}(check)
	}
	wg.Wait()

	return resp
}

// HealthHandler reports service and dependency health.
func (h *Handler) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := h.Report(c.Request.Context())

		status := http.StatusOK
		if resp.Status != StatusOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

// LivenessHandler reports only that the process is serving.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    StatusOK,
			"timestamp": h.now().UTC().Format(timestampLayout),
		})
	}
}

// RegisterRoutes mounts /health and /healthz.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.HealthHandler())
	r.GET("/healthz", h.LivenessHandler())
}
