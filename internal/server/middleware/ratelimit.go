package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/ratelimit"
)

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(c *gin.Context) string

// IdentityKeyFunc keys by principal, then client address, then "anonymous".
func IdentityKeyFunc(c *gin.Context) string {
	var principalID string
	if p, ok := GetPrincipal(c); ok {
		principalID = p.ID
	}
	return ratelimit.IdentityKey(principalID, c.ClientIP())
}

// ClientIPKeyFunc keys by client address only.
func ClientIPKeyFunc(c *gin.Context) string {
	return ratelimit.IdentityKey("", c.ClientIP())
}

// GlobalKeyFunc puts every request in one bucket.
func GlobalKeyFunc(*gin.Context) string {
	return ratelimit.GlobalKey
}

// RateLimitResponse is the body of a 429 response.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	KeyFunc KeyFunc
	Logger  *zap.Logger

	// Error and Message fill the 429 body.
	Error   string
	Message string

	SkipPaths []string
}

// Rate limit response texts.
const (
	GlobalLimitError   = "Too many requests"
	GlobalLimitMessage = "Rate limit exceeded. Please try again later."
	UserLimitError     = "Rate Limit Exceeded"
	UserLimitMessage   = "Too many requests from this user"
)

// GlobalRateLimit returns the server-wide limiter middleware.
func GlobalRateLimit(limiter ratelimit.Limiter, keyFunc KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = GlobalKeyFunc
	}
	return RateLimitWithConfig(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: keyFunc,
		Logger:  logger,
		Error:   GlobalLimitError,
		Message: GlobalLimitMessage,
	})
}

// UserRateLimit returns the per-identity limiter middleware. Place it after
// the auth middleware so authenticated callers are keyed by principal.
func UserRateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: IdentityKeyFunc,
		Logger:  logger,
		Error:   UserLimitError,
		Message: UserLimitMessage,
	})
}

// RateLimitWithConfig returns a rate limit middleware with custom configuration.
// Store failures are logged and the request is let through.
func RateLimitWithConfig(config RateLimitConfig) gin.HandlerFunc {
	if config.Limiter == nil {
		config.Limiter = ratelimit.NewNoopLimiter()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = IdentityKeyFunc
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Error == "" {
		config.Error = GlobalLimitError
	}
	if config.Message == "" {
		config.Message = GlobalLimitMessage
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := config.KeyFunc(c)
		result, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			config.Logger.Error("rate limit check failed",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("RateLimit-Reset", strconv.Itoa(result.ResetAfterSeconds()))
		}

		if !result.Allowed {
			retryAfter := result.RetryAfterSeconds()
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			config.Logger.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.Int("limit", result.Limit),
				zap.String("path", c.Request.URL.Path),
				zap.Int("retryAfter", retryAfter),
			)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
				Error:      config.Error,
				Message:    config.Message,
				RetryAfter: retryAfter,
			})
			return
		}

		c.Next()
	}
}
