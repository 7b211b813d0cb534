package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
)

// Recovery returns a middleware that turns panics into internal errors for
// the error handler. It must run after ErrorHandler in the chain.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("requestID", GetRequestID(c)),
					zap.ByteString("stack", debug.Stack()),
				)

				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", r)
				}
				Fail(c, apierror.Wrap(err))
			}
		}()

		c.Next()
	}
}
