package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings handles PUT /api/v1/settings. Fields left out of the body
// keep their current values.
func (h *Handler) UpdateSettings(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	next := current
	if bindErr := c.ShouldBindJSON(&next); bindErr != nil {
		badRequest(c, bindErr)
		return
	}

	saved, err := h.settings.Update(c.Request.Context(), next)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
