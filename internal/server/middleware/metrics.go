package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/vibemuse-edge/internal/observability"
)

// Metrics returns a middleware that records request counts, latency and
// in-flight requests by matched route.
func Metrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		metrics.IncActiveRequests()
		defer metrics.DecActiveRequests()

		c.Next()

		metrics.RecordRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
