// File: internal/common/context_helpers.go
package common

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetRequestID retrieves the request ID set by the logging middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// LoggerFromContext returns the request-scoped logger, or fallback when none was attached.
func LoggerFromContext(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if l, exists := c.Get(LoggerKey); exists {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	return fallback
}
