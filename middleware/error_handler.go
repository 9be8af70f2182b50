package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/common"
)

// ErrorHandler renders the last error attached to the context. Anything that
// is not a common.APIError becomes an opaque 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var apiErr common.APIError
		if errors.As(err, &apiErr) {
			response := gin.H{"error": apiErr.Message}
			if apiErr.Code != "" {
				response["code"] = apiErr.Code
			}
			if apiErr.Fields != nil {
				response["fields"] = apiErr.Fields
			}
			c.JSON(apiErr.Status, response)
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal_error"})
	}
}
