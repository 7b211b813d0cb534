package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/vibemuse-edge/internal/config"
	"github.com/vyrodovalexey/vibemuse-edge/internal/server/middleware"
)

const (
	apiPrefix       = "/api"
	apiVersionGroup = "/v1"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// InfoResponse is the body of GET /api/v1/test.
type InfoResponse struct {
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp"`
	Security  SecurityInfo `json:"security"`
}

// SecurityInfo summarizes the active request protections.
type SecurityInfo struct {
	RateLimit RateLimitInfo `json:"rateLimit"`
	CORS      []string      `json:"cors"`
}

// RateLimitInfo describes the global limiter window.
type RateLimitInfo struct {
	WindowMs int64 `json:"windowMs"`
	Max      int   `json:"max"`
}

func (s *Server) registerRoutes() {
	s.health.RegisterRoutes(s.engine)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.engine.GET(s.cfg.WebSocket.Path, gin.WrapH(s.realtime))

	keyFunc := middleware.GlobalKeyFunc
	if s.cfg.RateLimit.Global.Scope == config.ScopeIP {
		keyFunc = middleware.ClientIPKeyFunc
	}
	api := s.engine.Group(apiPrefix, middleware.GlobalRateLimit(s.globalLimiter, keyFunc, s.zlog))

	s.api = api.Group(apiVersionGroup)
	s.api.GET("/test", s.info)

	s.protected = s.api.Group("",
		middleware.Authenticate(s.verifier, s.zlog),
		middleware.UserRateLimit(s.userLimiter, s.zlog),
	)
	s.protected.GET("/me", s.me)

	s.engine.NoRoute(middleware.NoRoute())
}

func (s *Server) info(c *gin.Context) {
	global := s.cfg.RateLimit.Global
	c.JSON(http.StatusOK, InfoResponse{
		Message:   "VibeMUSE API is working!",
		Timestamp: time.Now().UTC().Format(timestampLayout),
		Security: SecurityInfo{
			RateLimit: RateLimitInfo{
				WindowMs: global.Window.Duration().Milliseconds(),
				Max:      global.MaxRequests,
			},
			CORS: s.cfg.CORS.AllowOrigins,
		},
	})
}

// me echoes the authenticated principal.
func (s *Server) me(c *gin.Context) {
	p, _ := middleware.GetPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"id":          p.ID,
		"email":       p.Email,
		"username":    p.Username,
		"role":        p.Role,
		"permissions": p.Permissions.List(),
	})
}
