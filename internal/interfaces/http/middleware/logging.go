package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
)

// RequestLogging logs one line per request in the service's structured
// format.  Status >= 500 logs at error level, >= 400 at warn.
func RequestLogging(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
			logging.String("request_id", GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request served", fields...)
		}
	}
}
