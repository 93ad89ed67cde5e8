package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hoasen-edu/preschool-api/internal/service"
)

// Metrics records per-request duration and status against the route template,
// so /api/v1/enrollments/:code aggregates as one series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
