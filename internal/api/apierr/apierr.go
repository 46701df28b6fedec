// Package apierr maps domain errors to HTTP responses.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/domain"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrStrategyNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRetrievalFailed), errors.Is(err, domain.ErrCompletionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as {"error": message} and aborts the request.
func Respond(c *gin.Context, err error) {
	c.AbortWithStatusJSON(Status(err), gin.H{"error": err.Error()})
}
