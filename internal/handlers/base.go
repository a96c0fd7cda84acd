package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quillside/internal/identity"
	"quillside/internal/services"
)

// ok wraps a successful JSON response.
func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// fail maps a service error onto a status code and a retryable flag.
// extra fields (e.g. the submitted content, so user input is never
// silently dropped) are merged into the payload.
func fail(c *gin.Context, err error, extra gin.H) {
	payload := gin.H{
		"success":   false,
		"error":     err.Error(),
		"retryable": services.Retryable(err),
	}
	for k, v := range extra {
		payload[k] = v
	}
	c.JSON(statusFor(err), payload)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrBackendUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
