package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// StartScanResponse is returned by POST /scan/start.
type StartScanResponse struct {
	TotalDocuments int `json:"total_documents"`
}

// StartScan handles POST /api/v1/scan/start.
func (h *Handler) StartScan(c *gin.Context) {
	total, err := h.scanner.StartScan(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, StartScanResponse{TotalDocuments: total})
}

// ScanDocumentsBatch handles POST /api/v1/scan/documents?offset=N.
func (h *Handler) ScanDocumentsBatch(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.scanner.ScanDocumentsBatch(c.Request.Context(), offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckURLsBatch handles POST /api/v1/scan/urls.
func (h *Handler) CheckURLsBatch(c *gin.Context) {
	res, err := h.scanner.CheckURLsBatch(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CompleteScan handles POST /api/v1/scan/complete.
func (h *Handler) CompleteScan(c *gin.Context) {
	stats, err := h.scanner.CompleteScan(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// StopScan handles POST /api/v1/scan/stop.
func (h *Handler) StopScan(c *gin.Context) {
	if err := h.scanner.StopScan(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ScanStatus handles GET /api/v1/scan/status.
func (h *Handler) ScanStatus(c *gin.Context) {
	status, err := h.scanner.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid id %q", c.Param("id"))
	}
	return id, nil
}
