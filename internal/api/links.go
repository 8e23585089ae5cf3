package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// LinksResponse is a page of link reports.
type LinksResponse struct {
	Links   []domain.LinkReport `json:"links"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// ListLinks handles GET /api/v1/links.
func (h *Handler) ListLinks(c *gin.Context) {
	filter := linkFilter(c)

	number, err := queryInt(c, "page", 1)
	if err != nil {
		badRequest(c, err)
		return
	}
	perPage, err := queryInt(c, "per_page", store.DefaultPerPage)
	if err != nil {
		badRequest(c, err)
		return
	}

	page := store.Page{
		OrderBy: store.ParseOrderField(c.Query("orderby")),
		Asc:     strings.EqualFold(c.Query("order"), "asc"),
		Number:  number,
		PerPage: perPage,
	}.Normalize()

	ctx := c.Request.Context()
	reports, err := h.links.ListLinks(ctx, filter, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	total, err := h.links.CountLinks(ctx, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if reports == nil {
		reports = []domain.LinkReport{}
	}
	c.JSON(http.StatusOK, LinksResponse{
		Links:   reports,
		Total:   total,
		Page:    page.Number,
		PerPage: page.PerPage,
	})
}

// LinkStats handles GET /api/v1/links/stats.
func (h *Handler) LinkStats(c *gin.Context) {
	stats, err := h.scanner.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RecheckLink handles POST /api/v1/links/:id/recheck.
func (h *Handler) RecheckLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	link, err := h.scanner.RecheckLink(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// IgnoreLink handles POST /api/v1/links/:id/ignore.
func (h *Handler) IgnoreLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err = h.scanner.IgnoreLink(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func linkFilter(c *gin.Context) store.LinkFilter {
	return store.LinkFilter{
		Status:       store.ParseStatusFilter(c.Query("status")),
		Domain:       strings.TrimSpace(c.Query("domain")),
		DocumentType: strings.TrimSpace(c.Query("document_type")),
	}
}
