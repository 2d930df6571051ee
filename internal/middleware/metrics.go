package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classdesk/classdesk-api/internal/service"
)

// Metrics records per-request counters and latency. Unmatched routes are
// collapsed under a single label to keep metric cardinality bounded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
