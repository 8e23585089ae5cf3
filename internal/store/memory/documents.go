package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// DocumentStore is an in-memory store.DocumentStore.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[int64]*domain.Document
}

var _ store.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a store seeded with docs.
func NewDocumentStore(docs ...domain.Document) *DocumentStore {
	s := &DocumentStore{docs: make(map[int64]*domain.Document, len(docs))}
	for _, d := range docs {
		s.Put(d)
	}
	return s
}

// Put inserts or replaces a document.
func (s *DocumentStore) Put(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := doc
	s.docs[doc.ID] = &cp
}

// ListDocuments returns matching documents ordered by id.
func (s *DocumentStore) ListDocuments(_ context.Context, q store.DocumentQuery, limit, offset int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(q)
	if offset >= len(matched) {
		return []domain.Document{}, nil
	}
	end := len(matched)
	if limit > 0 {
		end = min(offset+limit, len(matched))
	}

	out := make([]domain.Document, 0, end-offset)
	for _, d := range matched[offset:end] {
		out = append(out, *d)
	}
	return out, nil
}

// CountDocuments counts matching documents.
func (s *DocumentStore) CountDocuments(_ context.Context, q store.DocumentQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(q)), nil
}

// GetDocument returns a copy of the document with id.
func (s *DocumentStore) GetDocument(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, domain.NotFoundf("document %d", id)
	}
	cp := *d
	return &cp, nil
}

// UpdateContent replaces a document's content.
func (s *DocumentStore) UpdateContent(_ context.Context, id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return domain.NotFoundf("document %d", id)
	}
	d.Content = content
	return nil
}

// SearchContent returns ids of matching documents containing needle.
func (s *DocumentStore) SearchContent(_ context.Context, q store.DocumentQuery, needle string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(needle)
	var ids []int64
	for _, d := range s.matching(q) {
		if strings.Contains(strings.ToLower(d.Content), lowered) {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (s *DocumentStore) matching(q store.DocumentQuery) []*domain.Document {
	var out []*domain.Document
	for _, d := range s.docs {
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, d.Type) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
