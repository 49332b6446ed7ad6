package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/licitahub/licitahub/pkg/observability"
)

// RequestLogger logs one line per request with status and latency.
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	logger = logger.WithPrefix("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]interface{}{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
			logger.Error("request failed", fields)
			return
		}
		logger.Info("request", fields)
	}
}
