package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
)

// ExportLinks handles GET /api/v1/export/links?format=csv|xlsx.
func (h *Handler) ExportLinks(c *gin.Context) {
	format, err := exporter.ParseFormat(c.Query("format"))
	if err != nil {
		badRequest(c, err)
		return
	}

	table, err := h.exporter.Links(c.Request.Context(), linkFilter(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendTable(c, exporter.LinksFilePrefix, format, table)
}

// ExportStats handles GET /api/v1/export/stats?format=csv|xlsx.
func (h *Handler) ExportStats(c *gin.Context) {
	format, err := exporter.ParseFormat(c.Query("format"))
	if err != nil {
		badRequest(c, err)
		return
	}

	table, err := h.exporter.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.sendTable(c, exporter.StatsFilePrefix, format, table)
}

// sendTable renders into a buffer first so a write failure still produces a
// clean error response.
func (h *Handler) sendTable(c *gin.Context, prefix string, format exporter.Format, table exporter.Table) {
	var buf bytes.Buffer
	if err := exporter.Write(&buf, format, table); err != nil {
		h.respondError(c, err)
		return
	}

	name := exporter.Filename(prefix, format, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
