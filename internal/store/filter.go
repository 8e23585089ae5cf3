package store

import (
	"strings"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// StatusFilter selects links by their check outcome.
type StatusFilter string

// Status filters.
const (
	StatusAll      StatusFilter = "all"
	StatusBroken   StatusFilter = "broken"
	StatusOK       StatusFilter = "ok"
	StatusRedirect StatusFilter = "redirect"
)

// ParseStatusFilter maps s to a filter, defaulting to StatusAll.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusBroken:
		return StatusBroken
	case StatusOK:
		return StatusOK
	case StatusRedirect:
		return StatusRedirect
	default:
		return StatusAll
	}
}

// LinkFilter narrows link listings. Ignored links are always excluded.
type LinkFilter struct {
	Status StatusFilter
	// DocumentType restricts to links seen in documents of this type.
	// Empty or "all" means any type.
	DocumentType string
	// Domain is a case-sensitive substring of the raw URL.
	Domain string
}

// HasDocumentType reports whether the filter restricts by document type.
func (f LinkFilter) HasDocumentType() bool {
	return f.DocumentType != "" && f.DocumentType != "all"
}

// Matches reports whether link satisfies the status and domain parts of f.
func (f LinkFilter) Matches(link *domain.Link) bool {
	if link.IsIgnored {
		return false
	}
	if f.Domain != "" && !strings.Contains(link.RawURL, f.Domain) {
		return false
	}
	switch f.Status {
	case StatusBroken:
		return link.IsBroken()
	case StatusOK:
		return link.IsOK()
	case StatusRedirect:
		return link.RedirectCount > 0
	default:
		return true
	}
}

// OrderField is a sortable link column.
type OrderField string

// Sortable columns.
const (
	OrderLastChecked  OrderField = "last_checked_at"
	OrderURL          OrderField = "url"
	OrderCode         OrderField = "last_code"
	OrderResponseTime OrderField = "response_time_ms"
	OrderOccurrences  OrderField = "occurrences"
)

// Paging defaults.
const (
	DefaultPerPage = 20
	MaxPerPage     = 10000
)

// ParseOrderField maps s to a column, defaulting to OrderLastChecked.
func ParseOrderField(s string) OrderField {
	switch OrderField(strings.ToLower(strings.TrimSpace(s))) {
	case OrderURL:
		return OrderURL
	case OrderCode:
		return OrderCode
	case OrderResponseTime:
		return OrderResponseTime
	case OrderOccurrences:
		return OrderOccurrences
	default:
		return OrderLastChecked
	}
}

// Page selects ordering and a window of results.
type Page struct {
	OrderBy OrderField
	Asc     bool
	Number  int
	PerPage int
}

// Normalize fills defaults and clamps out-of-range values.
func (p Page) Normalize() Page {
	if p.OrderBy == "" {
		p.OrderBy = OrderLastChecked
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.PerPage
}

// AllRows is a page large enough to cover exports and rule application.
func AllRows() Page {
	return Page{OrderBy: OrderLastChecked, Number: 1, PerPage: MaxPerPage}
}

// SampleDocumentLimit is how many document ids a LinkReport carries.
const SampleDocumentLimit = 3
