package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// DocumentRepository reads and rewrites the documents table of the hosting
// content store.
type DocumentRepository struct {
	db *sqlx.DB
}

var _ store.DocumentStore = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func buildDocumentWhere(q store.DocumentQuery) *whereBuilder {
	w := &whereBuilder{}
	if len(q.Types) > 0 {
		w.add("type = ANY(%s)", pq.Array(q.Types))
	}
	if q.Status != "" {
		w.add("status = %s", q.Status)
	}
	return w
}

// ListDocuments returns a page of matching documents ordered by id.
func (r *DocumentRepository) ListDocuments(
	ctx context.Context,
	q store.DocumentQuery,
	limit, offset int,
) ([]domain.Document, error) {
	w := buildDocumentWhere(q)
	limitArg := len(w.args) + 1
	query := fmt.Sprintf(`
		SELECT id, type, status, content
		FROM documents
		%s
		ORDER BY id ASC
		LIMIT $%d OFFSET $%d
	`, w.clause(), limitArg, limitArg+1)

	args := append(w.args, limit, offset)

	docs := []domain.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, domain.Persistence("list documents", err)
	}

	return docs, nil
}

// CountDocuments counts matching documents.
func (r *DocumentRepository) CountDocuments(ctx context.Context, q store.DocumentQuery) (int, error) {
	w := buildDocumentWhere(q)
	query := `SELECT COUNT(*) FROM documents ` + w.clause()

	var count int
	if err := r.db.GetContext(ctx, &count, query, w.args...); err != nil {
		return 0, domain.Persistence("count documents", err)
	}

	return count, nil
}

// GetDocument returns the document with id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	query := `SELECT id, type, status, content FROM documents WHERE id = $1`

	var doc domain.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, notFoundOr(err, "get document", fmt.Sprintf("document %d", id))
	}

	return &doc, nil
}

// UpdateContent replaces a document's content.
func (r *DocumentRepository) UpdateContent(ctx context.Context, id int64, content string) error {
	query := `UPDATE documents SET content = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, content)
	return domain.Persistence("update document content",
		execRequireRows(result, err, domain.NotFoundf("document %d", id)))
}

// SearchContent returns ids of matching documents whose content contains
// needle, case-insensitively.
func (r *DocumentRepository) SearchContent(ctx context.Context, q store.DocumentQuery, needle string) ([]int64, error) {
	w := buildDocumentWhere(q)
	w.add("content ILIKE %s", containsPattern(needle))
	query := `SELECT id FROM documents ` + w.clause() + ` ORDER BY id ASC`

	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, query, w.args...); err != nil {
		return nil, domain.Persistence("search documents", err)
	}

	return ids, nil
}
