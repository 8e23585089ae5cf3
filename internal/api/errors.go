package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyScanning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server-side failures are
// attached to the gin context for the request log and hidden from the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.requestLogger(c).Error("Request failed", logger.Error(err))
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// requestLogger returns the request-scoped logger set by the server middleware.
func (h *Handler) requestLogger(c *gin.Context) logger.Logger {
	return logger.FromContext(c.Request.Context(), h.log)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
