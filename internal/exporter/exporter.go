// Package exporter turns link reports and statistics into CSV and XLSX
// tables.
package exporter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps s to a format. An empty string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", domain.Validationf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename prefixes.
const (
	LinksFilePrefix = "broken-links"
	StatsFilePrefix = "link-stats"
)

// Filename returns prefix-YYYY-MM-DD-HHMMSS.ext in UTC.
func Filename(prefix string, f Format, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("2006-01-02-150405"), f)
}

// Table is a header row plus data rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

// LinkHeader is the column set of a link export.
var LinkHeader = []string{
	"URL", "Status Code", "Status", "Error Type", "Redirects", "Final URL",
	"Response Time(ms)", "Occurrences", "Sample Document IDs", "Last Checked",
}

// LinkSource lists links and statistics.
type LinkSource interface {
	ListLinks(ctx context.Context, filter store.LinkFilter, page store.Page) ([]domain.LinkReport, error)
	Stats(ctx context.Context) (domain.LinkStats, error)
}

// Service builds export tables from a LinkSource.
type Service struct {
	links LinkSource
}

// NewService creates a Service.
func NewService(links LinkSource) *Service {
	return &Service{links: links}
}

// Links returns every link matching filter as a table.
func (s *Service) Links(ctx context.Context, filter store.LinkFilter) (Table, error) {
	reports, err := s.links.ListLinks(ctx, filter, store.AllRows())
	if err != nil {
		return Table{}, err
	}
	return LinkTable(reports), nil
}

// Stats returns the statistics table.
func (s *Service) Stats(ctx context.Context) (Table, error) {
	stats, err := s.links.Stats(ctx)
	if err != nil {
		return Table{}, err
	}
	return StatsTable(stats), nil
}

// LinkTable formats reports as export rows.
func LinkTable(reports []domain.LinkReport) Table {
	t := Table{Sheet: "Links", Header: LinkHeader, Rows: make([][]string, 0, len(reports))}
	for i := range reports {
		r := &reports[i]
		t.Rows = append(t.Rows, []string{
			r.RawURL,
			optionalInt(r.LastCode, "N/A"),
			StatusText(&r.Link),
			optionalKind(r.ErrorKind),
			strconv.Itoa(r.RedirectCount),
			optionalString(r.FinalURL),
			optionalInt(r.ResponseTimeMS, ""),
			strconv.Itoa(r.OccurrenceCount),
			sampleDocuments(r),
			optionalTime(r.LastCheckedAt),
		})
	}
	return t
}

// StatsTable formats stats as Metric/Value rows.
func StatsTable(stats domain.LinkStats) Table {
	lastScan := "Never"
	if stats.LastScanAt != nil {
		lastScan = stats.LastScanAt.UTC().Format(time.RFC3339)
	}
	return Table{
		Sheet:  "Stats",
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total Links", strconv.Itoa(stats.Total)},
			{"Broken Links", strconv.Itoa(stats.Broken)},
			{"OK Links", strconv.Itoa(stats.OK)},
			{"Redirects", strconv.Itoa(stats.Redirects)},
			{"Last Scan", lastScan},
		},
	}
}

// StatusText is the human-readable status of a link.
func StatusText(l *domain.Link) string {
	switch {
	case l.ErrorKind != nil:
		return "Error: " + string(*l.ErrorKind)
	case l.LastCode != nil && *l.LastCode >= 400:
		return "Broken"
	case l.RedirectCount > 0:
		return "Redirect"
	case l.IsOK():
		return "OK"
	default:
		return "Unknown"
	}
}

func sampleDocuments(r *domain.LinkReport) string {
	parts := make([]string, 0, len(r.SampleDocumentIDs)+1)
	for _, id := range r.SampleDocumentIDs {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	if extra := r.OccurrenceCount - len(r.SampleDocumentIDs); extra > 0 && len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("... and %d more", extra))
	}
	return strings.Join(parts, ", ")
}

func optionalInt(v *int, fallback string) string {
	if v == nil {
		return fallback
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optionalKind(v *domain.ErrorKind) string {
	if v == nil {
		return ""
	}
	return string(*v)
}

func optionalTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
