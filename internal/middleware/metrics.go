// metrics.go records Prometheus request metrics for every routed request.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clienthub/clienthub/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records a request counter and a
// latency histogram for every request that passes through the router.
//
// The path label is set from c.FullPath(), which returns the matched Gin route
// template (e.g. /public/hubs/:hubId/verify-code) rather than the raw URL.
// Requests that do not match any registered route use the literal string
// "<no-route>" so unhandled paths do not inflate label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
