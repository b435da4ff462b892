package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/oeewatch/internal/analytics"
	"github.com/rewired-gh/oeewatch/internal/storage"
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
)

// RespondWithError sends a standard error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Code:    errorCode,
		Message: message,
	})
}

// BadRequest - 400
func BadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound - 404
func NotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// RespondWithDomainError maps analytics and storage errors onto status codes.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidArgument):
		RespondWithError(c, http.StatusBadRequest, ErrCodeInvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		NotFound(c, err.Error())
	default:
		RespondWithError(c, http.StatusInternalServerError, ErrCodeInternalServer, err.Error())
	}
}
