package middleware

import (
	"time"

	"streamcast/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware logs every request with the request-scoped fields the
// other middleware put into the gin context.
func LoggingMiddleware(contextLogger *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		contextLogger.LogRequest(c,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start).Milliseconds(),
		)
	}
}
