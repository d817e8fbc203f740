package response

import (
	"net/http"

	"messenger-service/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	MsgInvalidInput       = "Invalid input data"
	MsgUnauthorized       = "Unauthorized"
	MsgUsernameTaken      = "Username already exists"
	MsgRateLimited        = "Rate limit exceeded"
	MsgInternal           = "Internal server error"
	MsgStorageUnavailable = "Storage unavailable"
)

// Error aborts the request with a models.ErrorResponse body
func Error(c *gin.Context, status int, message, details string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Code:    status,
		Message: message,
		Details: details,
	})
}

func BadRequest(c *gin.Context, details string) {
	Error(c, http.StatusBadRequest, MsgInvalidInput, details)
}

func Unauthorized(c *gin.Context, details string) {
	Error(c, http.StatusUnauthorized, MsgUnauthorized, details)
}

func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, MsgInternal, "An unexpected error occurred.")
}
