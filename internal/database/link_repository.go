package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// linkSelectColumns lists columns for SELECT queries on links.
const linkSelectColumns = `l.id, l.raw_url, l.normalized_url, l.last_status, l.last_code,
	l.last_checked_at, l.final_url, l.redirect_count, l.error_kind, l.response_time_ms,
	l.is_ignored, l.created_at, l.updated_at`

// orderColumns maps sortable fields to SQL expressions.
var orderColumns = map[store.OrderField]string{
	store.OrderLastChecked:  "l.last_checked_at",
	store.OrderURL:          "l.raw_url",
	store.OrderCode:         "l.last_code",
	store.OrderResponseTime: "l.response_time_ms",
	store.OrderOccurrences:  "occurrence_count",
}

// LinkRepository handles database operations for links and occurrences.
type LinkRepository struct {
	db *sqlx.DB
}

var _ store.LinkStore = (*LinkRepository)(nil)

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// SaveLink upserts a link in a single statement so concurrent sightings of
// the same normalized URL never create two rows.
func (r *LinkRepository) SaveLink(ctx context.Context, in domain.LinkInput) (int64, error) {
	if in.NormalizedURL == "" {
		return 0, domain.Validationf("normalized url is required")
	}

	query := `
		INSERT INTO links (raw_url, normalized_url)
		VALUES ($1, $2)
		ON CONFLICT (normalized_url) DO UPDATE
		SET raw_url = EXCLUDED.raw_url, last_checked_at = NULL, updated_at = NOW()
		RETURNING id
	`

	var id int64
	if err := r.db.GetContext(ctx, &id, query, in.RawURL, in.NormalizedURL); err != nil {
		return 0, domain.Persistence("save link", err)
	}

	return id, nil
}

// SaveOccurrence upserts a sighting, incrementing count on conflict.
func (r *LinkRepository) SaveOccurrence(ctx context.Context, occ store.OccurrenceInput) error {
	field := occ.Field
	if field == "" {
		field = domain.OccurrenceFieldContent
	}

	query := `
		INSERT INTO link_occurrences (link_id, document_id, document_type, field, context)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (link_id, document_id, field, context) DO UPDATE
		SET count = link_occurrences.count + 1,
			last_seen_at = NOW(),
			document_type = EXCLUDED.document_type
	`

	_, err := r.db.ExecContext(ctx, query, occ.LinkID, occ.DocumentID, occ.DocumentType, field, string(occ.Context))
	if err != nil {
		return domain.Persistence("save occurrence", err)
	}

	return nil
}

// GetLink returns the link with id.
func (r *LinkRepository) GetLink(ctx context.Context, id int64) (*domain.Link, error) {
	query := `SELECT ` + linkSelectColumns + ` FROM links l WHERE l.id = $1`

	var link domain.Link
	if err := r.db.GetContext(ctx, &link, query, id); err != nil {
		return nil, notFoundOr(err, "get link", fmt.Sprintf("link %d", id))
	}

	return &link, nil
}

// GetLinkByNormalizedURL returns the link keyed by normalizedURL.
func (r *LinkRepository) GetLinkByNormalizedURL(ctx context.Context, normalizedURL string) (*domain.Link, error) {
	query := `SELECT ` + linkSelectColumns + ` FROM links l WHERE l.normalized_url = $1`

	var link domain.Link
	if err := r.db.GetContext(ctx, &link, query, normalizedURL); err != nil {
		return nil, notFoundOr(err, "get link by url", fmt.Sprintf("link %q", normalizedURL))
	}

	return &link, nil
}

// RecordCheck stores the outcome of a check.
func (r *LinkRepository) RecordCheck(ctx context.Context, id int64, result domain.CheckResult, checkedAt time.Time) error {
	query := `
		UPDATE links
		SET last_status = $2, last_code = $3, last_checked_at = $4, final_url = $5,
			redirect_count = $6, error_kind = $7, response_time_ms = $8, updated_at = NOW()
		WHERE id = $1
	`

	var errorKind *string
	if result.ErrorKind != nil {
		kind := string(*result.ErrorKind)
		errorKind = &kind
	}

	res, err := r.db.ExecContext(ctx, query,
		id, string(result.Status), result.Code, checkedAt, result.FinalURL,
		result.RedirectCount, errorKind, result.ResponseTimeMS,
	)
	if reqErr := execRequireRows(res, err, domain.NotFoundf("link %d", id)); reqErr != nil {
		return domain.Persistence("record check", reqErr)
	}

	return nil
}

// ListUnchecked returns up to limit links awaiting a check in id order.
func (r *LinkRepository) ListUnchecked(ctx context.Context, limit int) ([]domain.Link, error) {
	query := `
		SELECT ` + linkSelectColumns + `
		FROM links l
		WHERE l.last_checked_at IS NULL AND l.is_ignored = FALSE
		ORDER BY l.id ASC
		LIMIT $1
	`

	links := []domain.Link{}
	if err := r.db.SelectContext(ctx, &links, query, limit); err != nil {
		return nil, domain.Persistence("list unchecked links", err)
	}

	return links, nil
}

// linkReportRow is the scan target for ListLinks.
type linkReportRow struct {
	domain.Link
	OccurrenceCount   int           `db:"occurrence_count"`
	SampleDocumentIDs pq.Int64Array `db:"sample_document_ids"`
}

// ListLinks returns the filtered, ordered page of links with occurrence aggregates.
func (r *LinkRepository) ListLinks(ctx context.Context, filter store.LinkFilter, page store.Page) ([]domain.LinkReport, error) {
	page = page.Normalize()
	where := buildLinkWhere(filter)

	direction := "DESC"
	if page.Asc {
		direction = "ASC"
	}
	orderColumn, ok := orderColumns[page.OrderBy]
	if !ok {
		orderColumn = orderColumns[store.OrderLastChecked]
	}

	limitArg := len(where.args) + 1
	query := fmt.Sprintf(`
		SELECT %s,
			COUNT(DISTINCT o.document_id) AS occurrence_count,
			(ARRAY_AGG(DISTINCT o.document_id ORDER BY o.document_id)
				FILTER (WHERE o.document_id IS NOT NULL))[1:%d] AS sample_document_ids
		FROM links l
		LEFT JOIN link_occurrences o ON o.link_id = l.id
		%s
		GROUP BY l.id
		ORDER BY %s %s NULLS LAST, l.id ASC
		LIMIT $%d OFFSET $%d
	`, linkSelectColumns, store.SampleDocumentLimit, where.clause(), orderColumn, direction, limitArg, limitArg+1)

	args := append(where.args, page.PerPage, page.Offset())

	var rows []linkReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.Persistence("list links", err)
	}

	reports := make([]domain.LinkReport, 0, len(rows))
	for _, row := range rows {
		samples := []int64(row.SampleDocumentIDs)
		if samples == nil {
			samples = []int64{}
		}
		reports = append(reports, domain.LinkReport{
			Link:              row.Link,
			OccurrenceCount:   row.OccurrenceCount,
			SampleDocumentIDs: samples,
		})
	}

	return reports, nil
}

// CountLinks counts links matching filter.
func (r *LinkRepository) CountLinks(ctx context.Context, filter store.LinkFilter) (int, error) {
	where := buildLinkWhere(filter)
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT l.id)
		FROM links l
		LEFT JOIN link_occurrences o ON o.link_id = l.id
		%s
	`, where.clause())

	var count int
	if err := r.db.GetContext(ctx, &count, query, where.args...); err != nil {
		return 0, domain.Persistence("count links", err)
	}

	return count, nil
}

// buildLinkWhere builds the WHERE clause shared by ListLinks and CountLinks.
func buildLinkWhere(filter store.LinkFilter) *whereBuilder {
	w := &whereBuilder{}
	w.raw("l.is_ignored = FALSE")

	switch filter.Status {
	case store.StatusBroken:
		w.raw("(l.last_code >= 400 OR l.error_kind IS NOT NULL)")
	case store.StatusOK:
		w.raw("l.last_code BETWEEN 200 AND 399")
	case store.StatusRedirect:
		w.raw("l.redirect_count > 0")
	case store.StatusAll:
	}

	if filter.Domain != "" {
		w.add("strpos(l.raw_url, %s) > 0", filter.Domain)
	}
	if filter.HasDocumentType() {
		w.add("o.document_type = %s", filter.DocumentType)
	}

	return w
}

// statsRow is the scan target for Stats.
type statsRow struct {
	Total     int        `db:"total"`
	Broken    int        `db:"broken"`
	OK        int        `db:"ok"`
	Redirects int        `db:"redirects"`
	LastScan  *time.Time `db:"last_scan"`
}

// Stats summarizes non-ignored links. The last scan time covers every link.
func (r *LinkRepository) Stats(ctx context.Context) (domain.LinkStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_ignored) AS total,
			COUNT(*) FILTER (WHERE NOT is_ignored AND (last_code >= 400 OR error_kind IS NOT NULL)) AS broken,
			COUNT(*) FILTER (WHERE NOT is_ignored AND last_code BETWEEN 200 AND 399) AS ok,
			COUNT(*) FILTER (WHERE NOT is_ignored AND redirect_count > 0) AS redirects,
			MAX(last_checked_at) AS last_scan
		FROM links
	`

	var row statsRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return domain.LinkStats{}, domain.Persistence("link stats", err)
	}

	return domain.LinkStats{
		Total:      row.Total,
		Broken:     row.Broken,
		OK:         row.OK,
		Redirects:  row.Redirects,
		LastScanAt: row.LastScan,
	}, nil
}

// IgnoreLink flags the link as ignored. Repeating the call is harmless.
func (r *LinkRepository) IgnoreLink(ctx context.Context, id int64) error {
	query := `UPDATE links SET is_ignored = TRUE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return domain.Persistence("ignore link", execRequireRows(result, err, domain.NotFoundf("link %d", id)))
}

// MarkStale clears last_checked_at so the link is checked again.
func (r *LinkRepository) MarkStale(ctx context.Context, id int64) error {
	query := `UPDATE links SET last_checked_at = NULL, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	return domain.Persistence("mark link stale", execRequireRows(result, err, domain.NotFoundf("link %d", id)))
}

// ClearOccurrences truncates the occurrence index.
func (r *LinkRepository) ClearOccurrences(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `TRUNCATE TABLE link_occurrences`); err != nil {
		return domain.Persistence("clear occurrences", err)
	}
	return nil
}
