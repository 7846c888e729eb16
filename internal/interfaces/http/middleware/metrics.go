package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
)

// Metrics records per-request counters and latency.  Paths are recorded as
// route templates, not raw URLs, to keep label cardinality bounded.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPActiveRequests.WithLabelValues(method, path).Inc()
		start := time.Now()
		c.Next()
		m.HTTPActiveRequests.WithLabelValues(method, path).Dec()

		prometheus.RecordHTTPRequest(m, method, path, c.Writer.Status(), time.Since(start))
	}
}
