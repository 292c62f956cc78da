// File: internal/middleware/error.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
)

// ErrorHandler renders errors that handlers pushed with c.Error and did not
// answer themselves.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			ginErr := c.Errors.Last()
			if apiErr, ok := common.IsAPIError(ginErr.Err); ok {
				c.AbortWithStatusJSON(apiErr.StatusCode, apiErr)
				return
			}

			logger.Error("Unhandled application error",
				zap.Error(ginErr.Err),
				zap.String("path", c.Request.URL.Path),
				zap.Any("meta", ginErr.Meta),
				zap.String("request_id", common.GetRequestID(c)),
			)
			genericError := common.ErrInternalServer.WithDetails("An unexpected error occurred.")
			if gin.Mode() == gin.DebugMode && ginErr.Err != nil {
				genericError = common.ErrInternalServer.WithDetails(ginErr.Err.Error())
			}
			c.AbortWithStatusJSON(genericError.StatusCode, genericError)
			return
		}

		if c.Writer.Status() == http.StatusMethodNotAllowed && len(c.Errors) == 0 && c.Writer.Size() <= 0 {
			methodNotAllowedErr := common.NewAPIError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The method is not allowed for the requested URL.")
			c.AbortWithStatusJSON(methodNotAllowedErr.StatusCode, methodNotAllowedErr)
		}
	}
}
