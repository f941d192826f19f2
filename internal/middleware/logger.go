package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Request bodies are not
// logged since they carry passwords and patient details.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		reqLog := log.With("request_id", c.GetString(ContextRequestID))
		c.Request = c.Request.WithContext(reqLog.IntoContext(c.Request.Context()))

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", status,
			"duration", time.Since(start),
			"user_agent", c.Request.UserAgent(),
		}
		if actor, ok := ActorFrom(c); ok {
			fields = append(fields, "user_id", actor.UserID)
		}

		switch {
		case status >= 500:
			reqLog.Error(c.Errors.Last(), "Server error", fields...)
		case status >= 400:
			reqLog.Warn("Client error", fields...)
		default:
			reqLog.Info("Request processed", fields...)
		}
	}
}
