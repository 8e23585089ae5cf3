// Package memory provides in-process implementations of the store
// interfaces for tests. TransientStore is also the production scan state
// when Redis is disabled.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

type occurrenceKey struct {
	linkID     int64
	documentID int64
	field      string
	context    domain.OccurrenceContext
}

// LinkStore is an in-memory store.LinkStore.
type LinkStore struct {
	mu           sync.RWMutex
	nextID       int64
	links        map[int64]*domain.Link
	byNormalized map[string]int64
	occurrences  map[occurrenceKey]*domain.Occurrence
	now          func() time.Time
}

var _ store.LinkStore = (*LinkStore)(nil)

// NewLinkStore creates an empty link store.
func NewLinkStore() *LinkStore {
	return &LinkStore{
		links:        make(map[int64]*domain.Link),
		byNormalized: make(map[string]int64),
		occurrences:  make(map[occurrenceKey]*domain.Occurrence),
		now:          time.Now,
	}
}

// SaveLink upserts by normalized URL.
func (s *LinkStore) SaveLink(_ context.Context, in domain.LinkInput) (int64, error) {
	if in.NormalizedURL == "" {
		return 0, domain.Validationf("normalized url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byNormalized[in.NormalizedURL]; ok {
		link := s.links[id]
		link.RawURL = in.RawURL
		link.LastCheckedAt = nil
		link.UpdatedAt = now
		return id, nil
	}

	s.nextID++
	s.links[s.nextID] = &domain.Link{
		ID:            s.nextID,
		RawURL:        in.RawURL,
		NormalizedURL: in.NormalizedURL,
		LastStatus:    domain.LinkStatusUnchecked,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byNormalized[in.NormalizedURL] = s.nextID

	return s.nextID, nil
}

// SaveOccurrence upserts a sighting.
func (s *LinkStore) SaveOccurrence(_ context.Context, occ store.OccurrenceInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[occ.LinkID]; !ok {
		return domain.NotFoundf("link %d", occ.LinkID)
	}

	field := occ.Field
	if field == "" {
		field = domain.OccurrenceFieldContent
	}
	key := occurrenceKey{linkID: occ.LinkID, documentID: occ.DocumentID, field: field, context: occ.Context}
	now := s.now()

	if existing, ok := s.occurrences[key]; ok {
		existing.Count++
		existing.LastSeenAt = now
		return nil
	}

	s.occurrences[key] = &domain.Occurrence{
		LinkID:       occ.LinkID,
		DocumentID:   occ.DocumentID,
		DocumentType: occ.DocumentType,
		Field:        field,
		Context:      occ.Context,
		FirstSeenAt:  now,
		LastSeenAt:   now,
		Count:        1,
	}

	return nil
}

// GetLink returns a copy of the link with id.
func (s *LinkStore) GetLink(_ context.Context, id int64) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok {
		return nil, domain.NotFoundf("link %d", id)
	}
	cp := *link
	return &cp, nil
}

// GetLinkByNormalizedURL returns a copy of the link keyed by normalizedURL.
func (s *LinkStore) GetLinkByNormalizedURL(_ context.Context, normalizedURL string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNormalized[normalizedURL]
	if !ok {
		return nil, domain.NotFoundf("link %q", normalizedURL)
	}
	cp := *s.links[id]
	return &cp, nil
}

// RecordCheck stores a check outcome.
func (s *LinkStore) RecordCheck(_ context.Context, id int64, result domain.CheckResult, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return domain.NotFoundf("link %d", id)
	}

	applyCheck(link, result, checkedAt)
	link.UpdatedAt = s.now()

	return nil
}

func applyCheck(link *domain.Link, result domain.CheckResult, checkedAt time.Time) {
	at := checkedAt
	finalURL := result.FinalURL
	responseTime := result.ResponseTimeMS

	link.LastStatus = result.Status
	link.LastCode = result.Code
	link.LastCheckedAt = &at
	link.FinalURL = &finalURL
	link.RedirectCount = result.RedirectCount
	link.ErrorKind = result.ErrorKind
	link.ResponseTimeMS = &responseTime
}

// ListUnchecked returns links awaiting a check in id order.
func (s *LinkStore) ListUnchecked(_ context.Context, limit int) ([]domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Link, 0, limit)
	for _, id := range s.sortedIDs() {
		if len(out) >= limit {
			break
		}
		link := s.links[id]
		if link.LastCheckedAt == nil && !link.IsIgnored {
			out = append(out, *link)
		}
	}
	return out, nil
}

// ListLinks returns the filtered, ordered page of link reports.
func (s *LinkStore) ListLinks(_ context.Context, filter store.LinkFilter, page store.Page) ([]domain.LinkReport, error) {
	s.mu.RLock()
	reports := s.reports(filter)
	s.mu.RUnlock()

	page = page.Normalize()
	sortReports(reports, page)

	start := page.Offset()
	if start >= len(reports) {
		return []domain.LinkReport{}, nil
	}
	end := min(start+page.PerPage, len(reports))

	return reports[start:end], nil
}

// CountLinks counts links matching filter.
func (s *LinkStore) CountLinks(_ context.Context, filter store.LinkFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.reports(filter)), nil
}

// Stats summarizes non-ignored links.
func (s *LinkStore) Stats(_ context.Context) (domain.LinkStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.LinkStats
	for _, link := range s.links {
		if link.LastCheckedAt != nil && (stats.LastScanAt == nil || link.LastCheckedAt.After(*stats.LastScanAt)) {
			at := *link.LastCheckedAt
			stats.LastScanAt = &at
		}
		if link.IsIgnored {
			continue
		}
		stats.Total++
		if link.IsBroken() {
			stats.Broken++
		}
		if link.IsOK() {
			stats.OK++
		}
		if link.RedirectCount > 0 {
			stats.Redirects++
		}
	}

	return stats, nil
}

// IgnoreLink flags the link as ignored.
func (s *LinkStore) IgnoreLink(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return domain.NotFoundf("link %d", id)
	}
	link.IsIgnored = true
	link.UpdatedAt = s.now()

	return nil
}

// MarkStale clears last_checked_at.
func (s *LinkStore) MarkStale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return domain.NotFoundf("link %d", id)
	}
	link.LastCheckedAt = nil
	link.UpdatedAt = s.now()

	return nil
}

// ClearOccurrences removes every occurrence.
func (s *LinkStore) ClearOccurrences(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.occurrences = make(map[occurrenceKey]*domain.Occurrence)
	return nil
}

// Occurrences returns a snapshot of all occurrences for link id.
func (s *LinkStore) Occurrences(linkID int64) []domain.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Occurrence
	for key, occ := range s.occurrences {
		if key.linkID == linkID {
			out = append(out, *occ)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Context < out[j].Context
	})
	return out
}

// Len returns the number of stored links.
func (s *LinkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// reports builds reports for matching links. Caller holds the lock.
func (s *LinkStore) reports(filter store.LinkFilter) []domain.LinkReport {
	docsByLink := make(map[int64]map[int64]struct{})
	for key, occ := range s.occurrences {
		if filter.HasDocumentType() && occ.DocumentType != filter.DocumentType {
			continue
		}
		docs, ok := docsByLink[key.linkID]
		if !ok {
			docs = make(map[int64]struct{})
			docsByLink[key.linkID] = docs
		}
		docs[key.documentID] = struct{}{}
	}

	var out []domain.LinkReport
	for _, id := range s.sortedIDs() {
		link := s.links[id]
		if !filter.Matches(link) {
			continue
		}
		docs := docsByLink[id]
		if filter.HasDocumentType() && len(docs) == 0 {
			continue
		}

		ids := make([]int64, 0, len(docs))
		for docID := range docs {
			ids = append(ids, docID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if len(ids) > store.SampleDocumentLimit {
			ids = ids[:store.SampleDocumentLimit]
		}

		out = append(out, domain.LinkReport{
			Link:              *link,
			OccurrenceCount:   len(docs),
			SampleDocumentIDs: ids,
		})
	}

	return out
}

func (s *LinkStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// sortReports orders reports by page.OrderBy. Missing values sort last in
// either direction, matching NULLS LAST in the PostgreSQL store.
func sortReports(reports []domain.LinkReport, page store.Page) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := &reports[i], &reports[j]
		cmp, decided := compareReports(a, b, page.OrderBy)
		if decided {
			return cmp < 0
		}
		if cmp == 0 {
			return a.ID < b.ID
		}
		if page.Asc {
			return cmp < 0
		}
		return cmp > 0
	})
}

// compareReports returns the ordering of a and b on field. decided is true
// when one side is missing and the result must not be reversed.
func compareReports(a, b *domain.LinkReport, field store.OrderField) (cmp int, decided bool) {
	switch field {
	case store.OrderURL:
		return strings.Compare(a.RawURL, b.RawURL), false
	case store.OrderCode:
		return compareOptionalInt(a.LastCode, b.LastCode)
	case store.OrderResponseTime:
		return compareOptionalInt(a.ResponseTimeMS, b.ResponseTimeMS)
	case store.OrderOccurrences:
		return a.OccurrenceCount - b.OccurrenceCount, false
	default:
		return compareOptionalTime(a.LastCheckedAt, b.LastCheckedAt)
	}
}

func compareOptionalInt(a, b *int) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, false
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	default:
		return *a - *b, false
	}
}

func compareOptionalTime(a, b *time.Time) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, false
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	default:
		return a.Compare(*b), false
	}
}
