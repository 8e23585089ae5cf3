package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// CreateRuleRequest is the body of POST /rules.
type CreateRuleRequest struct {
	Pattern     string `json:"pattern"     binding:"required"`
	Replacement string `json:"replacement" binding:"required"`
	MatchType   string `json:"match_type"`
	Enabled     *bool  `json:"enabled"`
}

// ListRules handles GET /api/v1/rules.
func (h *Handler) ListRules(c *gin.Context) {
	list, err := h.rules.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": list, "total": len(list)})
}

// AddRule handles POST /api/v1/rules. Rules are enabled unless the request
// says otherwise.
func (h *Handler) AddRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule, err := h.rules.Add(c.Request.Context(), domain.Rule{
		Pattern:     req.Pattern,
		Replacement: req.Replacement,
		MatchType:   domain.MatchType(req.MatchType),
		Enabled:     enabled,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRule handles GET /api/v1/rules/:id.
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule handles PUT /api/v1/rules/:id.
func (h *Handler) UpdateRule(c *gin.Context) {
	var upd domain.RuleUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/rules/:id.
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleRule handles POST /api/v1/rules/:id/toggle.
func (h *Handler) ToggleRule(c *gin.Context) {
	rule, err := h.rules.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ApplyRules handles POST /api/v1/rules/apply?dry_run=true|false. A missing
// dry_run defaults to true.
func (h *Handler) ApplyRules(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "true"))
	if err != nil {
		badRequest(c, domain.Validationf("dry_run must be true or false"))
		return
	}

	res, err := h.rules.Apply(c.Request.Context(), dryRun)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !dryRun {
		h.requestLogger(c).Info("Rules applied", logger.Int("matched", res.MatchedCount))
	}
	c.JSON(http.StatusOK, res)
}
