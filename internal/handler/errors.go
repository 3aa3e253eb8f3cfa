package handler

import (
	"errors"
	"net/http"

	"convoyhub/internal/domain"
	"convoyhub/internal/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps a domain error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrInviteRequired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "code"}. Unclassified errors are logged
// and reported without detail.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	code := domain.Code(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	case http.StatusServiceUnavailable:
		log.Warn("storage unavailable", "path", c.FullPath(), "error", err)
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": domain.Code(domain.ErrValidation)})
}
