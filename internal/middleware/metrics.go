package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records the latency and status of every request by route template.
// Requests that match no route share one label; scrapes of the Prometheus
// endpoint are not observed.
func Metrics(metrics *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
