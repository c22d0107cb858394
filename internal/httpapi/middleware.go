package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"cms-go/internal/cms"
	"cms-go/internal/metrics"
)

// RequestLogger logs every request through logger and records it in m.
func RequestLogger(logger cms.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequest(c.Request.Method, route, status, elapsed)

		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"elapsed", elapsed,
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}
		if status >= 500 {
			logger.Warn("http request", args...)
			return
		}
		logger.Debug("http request", args...)
	}
}
