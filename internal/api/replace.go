package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
)

// ActorHeader names the user recorded on replace operations.
const ActorHeader = "X-Actor-ID"

const defaultOperationsLimit = 10

// ReplaceRequest is the body of the preview and execute endpoints.
type ReplaceRequest struct {
	Find          string   `json:"find"           binding:"required"`
	Replace       string   `json:"replace"        binding:"required"`
	MatchType     string   `json:"match_type"`
	DocumentTypes []string `json:"document_types"`
}

func (r ReplaceRequest) args(actor string) replacer.Args {
	return replacer.Args{
		Find:          r.Find,
		Replace:       r.Replace,
		DocumentTypes: r.DocumentTypes,
		MatchType:     domain.ParseMatchType(r.MatchType),
		ActorID:       actor,
	}
}

// PreviewReplace handles POST /api/v1/replace/preview.
func (h *Handler) PreviewReplace(c *gin.Context) {
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	preview, err := h.replacer.Preview(c.Request.Context(), req.args(c.GetHeader(ActorHeader)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// ExecuteReplace handles POST /api/v1/replace/execute.
func (h *Handler) ExecuteReplace(c *gin.Context) {
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.replacer.Execute(c.Request.Context(), req.args(c.GetHeader(ActorHeader)))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.requestLogger(c).Info("Replacement executed",
		logger.Int64("operation_id", res.OperationID),
		logger.Int("replaced", res.ReplacedCount),
		logger.String("actor", c.GetHeader(ActorHeader)),
	)
	c.JSON(http.StatusOK, res)
}

// UndoReplace handles POST /api/v1/replace/undo.
func (h *Handler) UndoReplace(c *gin.Context) {
	res, err := h.replacer.Undo(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.requestLogger(c).Info("Replacement undone",
		logger.Int("restored", res.RestoredCount),
		logger.String("actor", c.GetHeader(ActorHeader)),
	)
	c.JSON(http.StatusOK, res)
}

// ListOperations handles GET /api/v1/operations.
func (h *Handler) ListOperations(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultOperationsLimit)
	if err != nil {
		badRequest(c, err)
		return
	}

	ops, err := h.replacer.Operations(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if ops == nil {
		ops = []domain.Operation{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}
