package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// ErrorHandlerConfig holds configuration for the error handler middleware.
type ErrorHandlerConfig struct {
	Chain       *apierror.Chain
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Development bool
	Now         func() time.Time
}

// ErrorHandler returns a middleware that renders recorded errors with the
// default configuration.
func ErrorHandler(logger *zap.Logger, development bool) gin.HandlerFunc {
	return ErrorHandlerWithConfig(ErrorHandlerConfig{
		Logger:      logger,
		Development: development,
	})
}

// ErrorHandlerWithConfig returns an error handler middleware with custom configuration.
func ErrorHandlerWithConfig(config ErrorHandlerConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Chain == nil {
		config.Chain = apierror.NewChain(
			apierror.WithLogger(observability.NewLoggerFromZap(config.Logger)),
			apierror.WithDevelopment(config.Development),
		)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		e := config.Chain.Resolve(last.Err)
		env := apierror.NewEnvelope(e, c.Request.Method, c.Request.URL.Path, config.Development, config.Now())

		logError(config.Logger, c, e, env.Error.StatusCode)
		if config.Metrics != nil {
			config.Metrics.RecordError(env.Error.Code, env.Error.StatusCode)
		}
		if span := GetSpan(c); span != nil {
			span.RecordError(e)
		}

		if c.Writer.Written() {
			// a handler already wrote a response; the error is logged only
			return
		}
		c.AbortWithStatusJSON(env.Error.StatusCode, env)
	}
}

func logError(logger *zap.Logger, c *gin.Context, e *apierror.Error, status int) {
	userID := "anonymous"
	if p, ok := GetPrincipal(c); ok {
		userID = p.ID
	}

	fields := []zap.Field{
		zap.String("requestID", GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("clientIP", c.ClientIP()),
		zap.String("userID", userID),
		zap.String("code", e.ResponseCode()),
		zap.Int("status", status),
	}

	if status >= http.StatusInternalServerError {
		fields = append(fields, zap.Error(e))
		if stack := e.Stack(); stack != "" {
			fields = append(fields, zap.String("stack", stack))
		}
		logger.Error("request failed", fields...)
		return
	}
	logger.Warn("request failed", fields...)
}

// NoRoute records an unmatched route for the error handler.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(&apierror.RouteNotFoundError{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
		})
		c.Abort()
	}
}

// Fail records err for the error handler and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
