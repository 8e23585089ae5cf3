// Package domain holds the link sweeper's core types shared by every layer.
package domain

import "time"

// LinkStatus is the outcome of the most recent check of a link.
type LinkStatus string

// Link statuses.
const (
	LinkStatusUnchecked LinkStatus = "unchecked"
	LinkStatusOK        LinkStatus = "ok"
	LinkStatusBroken    LinkStatus = "broken"
	LinkStatusRedirect  LinkStatus = "redirect"
	LinkStatusError     LinkStatus = "error"
	LinkStatusUnknown   LinkStatus = "unknown"
)

// ErrorKind classifies a transport-level check failure.
type ErrorKind string

// Error kinds recorded on links whose check failed before an HTTP response.
const (
	ErrorKindTimeout           ErrorKind = "Timeout"
	ErrorKindDNS               ErrorKind = "DNS Error"
	ErrorKindSSL               ErrorKind = "SSL Error"
	ErrorKindConnectionRefused ErrorKind = "Connection Refused"
	ErrorKindNetwork           ErrorKind = "Network Error"
)

// OccurrenceContext records where in a document a URL was found.
type OccurrenceContext string

// Occurrence contexts.
const (
	ContextHref  OccurrenceContext = "href"
	ContextPlain OccurrenceContext = "plain"
)

// OccurrenceFieldContent is the only document field that is scanned.
const OccurrenceFieldContent = "content"

// Link is a unique URL seen in the corpus, keyed by its normalized form.
type Link struct {
	ID             int64      `db:"id"               json:"id"`
	RawURL         string     `db:"raw_url"          json:"url"`
	NormalizedURL  string     `db:"normalized_url"   json:"normalized_url"`
	LastStatus     LinkStatus `db:"last_status"      json:"last_status"`
	LastCode       *int       `db:"last_code"        json:"last_code"`
	LastCheckedAt  *time.Time `db:"last_checked_at"  json:"last_checked_at"`
	FinalURL       *string    `db:"final_url"        json:"final_url"`
	RedirectCount  int        `db:"redirect_count"   json:"redirect_count"`
	ErrorKind      *ErrorKind `db:"error_kind"       json:"error_kind"`
	ResponseTimeMS *int       `db:"response_time_ms" json:"response_time_ms"`
	IsIgnored      bool       `db:"is_ignored"       json:"is_ignored"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}

// IsBroken reports whether the link counts as broken for queries and rules:
// a code of 400 or more, or any transport error.
func (l *Link) IsBroken() bool {
	return (l.LastCode != nil && *l.LastCode >= 400) || l.ErrorKind != nil
}

// IsOK reports whether the last code was in [200, 400).
func (l *Link) IsOK() bool {
	return l.LastCode != nil && *l.LastCode >= 200 && *l.LastCode < 400
}

// LinkInput is the upsert payload for a link sighting.
type LinkInput struct {
	RawURL        string
	NormalizedURL string
}

// Occurrence is a sighting of a link in one document.
type Occurrence struct {
	LinkID       int64             `db:"link_id"       json:"link_id"`
	DocumentID   int64             `db:"document_id"   json:"document_id"`
	DocumentType string            `db:"document_type" json:"document_type"`
	Field        string            `db:"field"         json:"field"`
	Context      OccurrenceContext `db:"context"       json:"context"`
	FirstSeenAt  time.Time         `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt   time.Time         `db:"last_seen_at"  json:"last_seen_at"`
	Count        int               `db:"count"         json:"count"`
}

// LinkReport is a link joined with its occurrence aggregates.
type LinkReport struct {
	Link
	OccurrenceCount   int     `db:"occurrence_count" json:"occurrence_count"`
	SampleDocumentIDs []int64 `db:"-"                json:"sample_document_ids"`
}

// LinkStats summarizes non-ignored links.
type LinkStats struct {
	Total      int        `json:"total_links"`
	Broken     int        `json:"broken_links"`
	OK         int        `json:"ok_links"`
	Redirects  int        `json:"redirects"`
	LastScanAt *time.Time `json:"last_scan"`
}
