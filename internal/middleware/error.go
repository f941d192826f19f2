package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

// ErrorHandler logs errors attached to the context. Handlers normally answer
// through httputil; when one only attached an error the envelope is written
// here.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			if errors.HTTPStatus(e.Err) < 500 {
				continue
			}
			log.Error(e.Err, "Request error",
				"request_id", c.GetString(ContextRequestID),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
