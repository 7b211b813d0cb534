package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/auth/jwt"
	"github.com/vyrodovalexey/vibemuse-edge/internal/config"
	"github.com/vyrodovalexey/vibemuse-edge/internal/health"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit"
	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit/store"
	"github.com/vyrodovalexey/vibemuse-edge/internal/realtime"
	"github.com/vyrodovalexey/vibemuse-edge/internal/server/middleware"
)

var (
	ginModeOnce sync.Once
	tagNameOnce sync.Once
)

// Server is the edge HTTP server.
type Server struct {
	cfg     *config.Config
	logger  observability.Logger
	zlog    *zap.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	engine    *gin.Engine
	api       *gin.RouterGroup
	protected *gin.RouterGroup

	verifier *jwt.Verifier
	issuer   *jwt.Issuer

	store         store.Store
	globalLimiter ratelimit.Limiter
	userLimiter   ratelimit.Limiter
	realtime      *realtime.Manager
	health        *health.Handler

	mu         sync.Mutex
	httpServer *http.Server
	running    bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry shared by every subsystem.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer whose provider the tracing middleware uses.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithStore overrides the rate-limit store built from configuration. The
// server takes ownership and closes it on shutdown.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New builds a server from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	tagNameOnce.Do(registerJSONTagNames)

	s := &Server{
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.zlog = observability.ZapLogger(s.logger)
	if s.metrics == nil {
		s.metrics = observability.NewMetrics("")
	}
	s.metrics.SetBuildInfo(cfg.Version, cfg.Environment)
	if s.tracer == nil {
		tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: cfg.Tracing.ServiceName})
		if err != nil {
			return nil, err
		}
		s.tracer = tracer
	}

	if err := s.initAuth(); err != nil {
		return nil, err
	}
	if err := s.initRateLimit(); err != nil {
		return nil, err
	}
	if err := s.initRealtime(); err != nil {
		_ = s.store.Close()
		return nil, err
	}

	s.health = health.NewHandler(cfg.Version, cfg.Environment, health.WithLogger(s.zlog))
	if cfg.RateLimit.Store == config.StoreRedis {
		s.health.AddCheck(health.NewPingCheck("ratelimit_store", s.store))
	}

	if err := s.initEngine(); err != nil {
		_ = s.store.Close()
		return nil, err
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) initAuth() error {
	tokenMetrics := jwt.NewMetrics(s.metrics.Namespace(), s.metrics.Registerer())

	verifier, err := jwt.NewVerifier(s.cfg.Auth.JWTSecret,
		jwt.WithVerifierLogger(s.logger),
		jwt.WithVerifierMetrics(tokenMetrics),
	)
	if err != nil {
		return fmt.Errorf("token verifier: %w", err)
	}
	issuer, err := jwt.NewIssuer(s.cfg.Auth.JWTSecret, jwt.WithIssuerMetrics(tokenMetrics))
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	s.verifier = verifier
	s.issuer = issuer
	return nil
}

func (s *Server) initRateLimit() error {
	if s.store == nil {
		st, err := newStore(s.cfg.RateLimit, s.zlog)
		if err != nil {
			return err
		}
		s.store = st
	}

	limiterMetrics := ratelimit.NewMetrics(s.metrics.Namespace(), s.metrics.Registerer())
	build := func(name string, w config.WindowConfig) (ratelimit.Limiter, error) {
		if !w.Enabled {
			return ratelimit.NewNoopLimiter(), nil
		}
		return ratelimit.NewFixedWindowLimiter(name, s.store, w.MaxRequests, w.Window.Duration(),
			ratelimit.WithLogger(s.zlog),
			ratelimit.WithMetrics(limiterMetrics),
		)
	}

	global, err := build("global", s.cfg.RateLimit.Global)
	if err != nil {
		_ = s.store.Close()
		return fmt.Errorf("global rate limiter: %w", err)
	}
	user, err := build("user", s.cfg.RateLimit.User)
	if err != nil {
		_ = s.store.Close()
		return fmt.Errorf("user rate limiter: %w", err)
	}

	s.globalLimiter = global
	s.userLimiter = user
	return nil
}

// newStore builds the configured store. A Redis store is wrapped in a
// breaker that fails over to process memory.
func newStore(cfg config.RateLimitConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.Store != config.StoreRedis {
		return store.NewMemoryStore(), nil
	}

	redisStore, err := store.NewRedisStore(store.RedisConfig{
		URL:    cfg.Redis.URL,
		Prefix: cfg.Redis.KeyPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return store.NewFailoverStore(redisStore, store.NewMemoryStore(), store.FailoverConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout.Duration(),
		Logger:      logger,
	}), nil
}

func (s *Server) initRealtime() error {
	ws := s.cfg.WebSocket
	manager, err := realtime.NewManager(realtime.Config{
		HeartbeatInterval: ws.HeartbeatInterval.Duration(),
		MaxConnections:    ws.MaxConnections,
		MaxMessageBytes:   ws.MaxMessageBytes,
		MessagesPerSecond: ws.MessagesPerSecond,
		MessageBurst:      ws.MessageBurst,
		StrictAuth:        ws.StrictAuth,
		AllowedOrigins:    s.cfg.CORS.AllowOrigins,
	},
		realtime.WithLogger(s.logger),
		realtime.WithMetrics(realtime.NewMetrics(s.metrics.Namespace(), s.metrics.Registerer())),
		realtime.WithVerifier(s.verifier),
	)
	if err != nil {
		return fmt.Errorf("websocket manager: %w", err)
	}
	s.realtime = manager
	return nil
}

func (s *Server) initEngine() error {
	engine := gin.New()
	if err := engine.SetTrustedProxies(s.cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	engine.Use(
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    s.zlog,
			SkipPaths: []string{"/metrics", "/healthz"},
		}),
		middleware.TracingWithConfig(middleware.TracingConfig{
			TracerProvider: s.tracer.Provider(),
			ServiceName:    s.cfg.Tracing.ServiceName,
			SkipPaths:      []string{"/metrics", "/healthz"},
		}),
		middleware.Metrics(s.metrics),
		middleware.ErrorHandlerWithConfig(middleware.ErrorHandlerConfig{
			Logger:      s.zlog,
			Metrics:     s.metrics,
			Development: s.cfg.IsDevelopment(),
		}),
		middleware.Recovery(s.zlog),
		middleware.SecurityHeaders(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     s.cfg.CORS.AllowOrigins,
			AllowMethods:     s.cfg.CORS.AllowMethods,
			AllowHeaders:     s.cfg.CORS.AllowHeaders,
			ExposeHeaders:    s.cfg.CORS.ExposeHeaders,
			AllowCredentials: s.cfg.CORS.AllowCredentials,
			MaxAge:           s.cfg.CORS.MaxAge,
		}),
	)
	if s.cfg.Server.Compression {
		engine.Use(middleware.CompressionWithConfig(middleware.CompressionConfig{
			SkipPaths: []string{"/metrics"},
		}))
	}
	engine.Use(
		middleware.BodyLimit(s.cfg.Server.MaxBodyBytes),
		middleware.RequireContentType(),
		middleware.Sanitize(),
	)

	s.engine = engine
	return nil
}

// registerJSONTagNames makes binding validation report JSON field names.
func registerJSONTagNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// API returns the /api/v1 group. Routes registered on it pass the global
// rate limiter.
func (s *Server) API() *gin.RouterGroup {
	return s.api
}

// Protected returns a group under /api/v1 that requires a valid bearer
// token and applies the per-identity rate limiter.
func (s *Server) Protected() *gin.RouterGroup {
	return s.protected
}

// Verifier returns the token verifier.
func (s *Server) Verifier() *jwt.Verifier {
	return s.verifier
}

// Issuer returns the token issuer.
func (s *Server) Issuer() *jwt.Issuer {
	return s.issuer
}

// Realtime returns the WebSocket manager.
func (s *Server) Realtime() *realtime.Manager {
	return s.realtime
}

// Health returns the health handler so callers can add checks.
func (s *Server) Health() *health.Handler {
	return s.health
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}

	srv := s.cfg.Server
	s.httpServer = &http.Server{
		Addr:         srv.Address(),
		Handler:      s.engine,
		ReadTimeout:  srv.ReadTimeout.Duration(),
		WriteTimeout: srv.WriteTimeout.Duration(),
		IdleTimeout:  srv.IdleTimeout.Duration(),
	}
	s.running = true
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", httpServer.Addr),
		observability.String("environment", s.cfg.Environment),
		observability.String("websocket_path", s.cfg.WebSocket.Path),
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains HTTP requests, closes WebSocket sessions and releases
// the rate-limit store. It is safe to call on a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down server")

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.realtime.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
		errs = append(errs, fmt.Errorf("rate limit store: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
