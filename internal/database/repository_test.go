package database_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/database"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// linkColumns lists the columns returned by link SELECT queries.
var linkColumns = []string{
	"id", "raw_url", "normalized_url", "last_status", "last_code",
	"last_checked_at", "final_url", "redirect_count", "error_kind", "response_time_ms",
	"is_ignored", "created_at", "updated_at",
}

// operationColumns lists the columns returned by operation SELECT queries.
var operationColumns = []string{
	"id", "kind", "actor_id", "payload", "undo_available", "consumed_at", "created_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return sqlx.NewDb(mockDB, "postgres"), mock, func() { mockDB.Close() }
}

func newLinkRepo(t *testing.T) (*database.LinkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, cleanup := newMockDB(t)
	return database.NewLinkRepository(db), mock, cleanup
}

func newOperationRepo(t *testing.T) (*database.OperationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, cleanup := newMockDB(t)
	return database.NewOperationRepository(db), mock, cleanup
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLinkRepository_SaveLink(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO links .+ ON CONFLICT \(normalized_url\) DO UPDATE`).
		WithArgs("https://Example.com/a/", "https://example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := repo.SaveLink(context.Background(), domain.LinkInput{
		RawURL:        "https://Example.com/a/",
		NormalizedURL: "https://example.com/a",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	expectationsMet(t, mock)
}

func TestLinkRepository_SaveLink_Errors(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	_, err := repo.SaveLink(context.Background(), domain.LinkInput{RawURL: "x"})
	require.ErrorIs(t, err, domain.ErrValidation)

	mock.ExpectQuery("INSERT INTO links").WillReturnError(errors.New("connection reset"))

	_, err = repo.SaveLink(context.Background(), domain.LinkInput{RawURL: "x", NormalizedURL: "x"})
	require.ErrorIs(t, err, domain.ErrPersistence)

	expectationsMet(t, mock)
}

func TestLinkRepository_SaveOccurrence(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO link_occurrences .+ SET count = link_occurrences.count \+ 1`).
		WithArgs(3, 11, "post", "content", "href").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOccurrence(context.Background(), store.OccurrenceInput{
		LinkID: 3, DocumentID: 11, DocumentType: "post", Context: domain.ContextHref,
	})
	require.NoError(t, err)

	expectationsMet(t, mock)
}

func TestLinkRepository_GetLink(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM links l WHERE l.id = \\$1").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(linkColumns).AddRow(
			5, "https://a.test/x", "https://a.test/x", "error", nil,
			now, "https://a.test/x", 0, "DNS Error", 12,
			false, now, now,
		))

	link, err := repo.GetLink(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkStatusError, link.LastStatus)
	assert.Nil(t, link.LastCode)
	require.NotNil(t, link.ErrorKind)
	assert.Equal(t, domain.ErrorKindDNS, *link.ErrorKind)
	assert.True(t, link.IsBroken())

	expectationsMet(t, mock)
}

func TestLinkRepository_GetLink_NotFound(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM links l WHERE l.id").
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetLink(context.Background(), 9)
	require.ErrorIs(t, err, domain.ErrNotFound)

	expectationsMet(t, mock)
}

func TestLinkRepository_RecordCheck(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	checkedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	code := 301
	mock.ExpectExec("UPDATE links SET last_status").
		WithArgs(4, "ok", code, checkedAt, "https://a.test/final", 1, nil, 87).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordCheck(context.Background(), 4, domain.CheckResult{
		Status:         domain.LinkStatusOK,
		Code:           &code,
		FinalURL:       "https://a.test/final",
		RedirectCount:  1,
		ResponseTimeMS: 87,
	}, checkedAt)
	require.NoError(t, err)

	expectationsMet(t, mock)
}

func TestLinkRepository_RecordCheck_MissingLink(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	kind := domain.ErrorKindTimeout
	mock.ExpectExec("UPDATE links SET last_status").
		WithArgs(4, "error", nil, sqlmock.AnyArg(), "https://a.test", 0, "Timeout", 10000).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordCheck(context.Background(), 4, domain.CheckResult{
		Status:         domain.LinkStatusError,
		ErrorKind:      &kind,
		FinalURL:       "https://a.test",
		ResponseTimeMS: 10000,
	}, time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)

	expectationsMet(t, mock)
}

func TestLinkRepository_ListUnchecked(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("WHERE l.last_checked_at IS NULL AND l.is_ignored = FALSE ORDER BY l.id ASC LIMIT \\$1").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(linkColumns).
			AddRow(1, "https://a.test/", "https://a.test/", "unchecked", nil, nil, nil, 0, nil, nil, false, now, now).
			AddRow(2, "https://b.test/", "https://b.test/", "unchecked", nil, nil, nil, 0, nil, nil, false, now, now))

	links, err := repo.ListUnchecked(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, int64(1), links[0].ID)
	assert.Nil(t, links[0].LastCheckedAt)

	expectationsMet(t, mock)
}

func TestLinkRepository_ListLinks(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	now := time.Now()
	columns := append(append([]string{}, linkColumns...), "occurrence_count", "sample_document_ids")

	mock.ExpectQuery(`l.last_code >= 400 OR l.error_kind IS NOT NULL.+strpos\(l.raw_url, \$1\) > 0 AND o.document_type = \$2 GROUP BY l.id ORDER BY l.raw_url ASC NULLS LAST, l.id ASC LIMIT \$3 OFFSET \$4`).
		WithArgs("old.test", "post", 10, 10).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			8, "https://old.test/a", "https://old.test/a", "broken", 404,
			now, "https://old.test/a", 0, nil, 55,
			false, now, now,
			5, []byte("{1,2,3}"),
		))

	reports, err := repo.ListLinks(context.Background(),
		store.LinkFilter{Status: store.StatusBroken, Domain: "old.test", DocumentType: "post"},
		store.Page{OrderBy: store.OrderURL, Asc: true, Number: 2, PerPage: 10},
	)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 5, reports[0].OccurrenceCount)
	assert.Equal(t, []int64{1, 2, 3}, reports[0].SampleDocumentIDs)
	require.NotNil(t, reports[0].LastCode)
	assert.Equal(t, 404, *reports[0].LastCode)

	expectationsMet(t, mock)
}

func TestLinkRepository_ListLinks_DefaultsAndEmptySamples(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	now := time.Now()
	columns := append(append([]string{}, linkColumns...), "occurrence_count", "sample_document_ids")

	mock.ExpectQuery(`WHERE l.is_ignored = FALSE GROUP BY l.id ORDER BY l.last_checked_at DESC NULLS LAST`).
		WithArgs(store.DefaultPerPage, 0).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			1, "https://a.test/", "https://a.test/", "unchecked", nil,
			nil, nil, 0, nil, nil,
			false, now, now,
			0, nil,
		))

	reports, err := repo.ListLinks(context.Background(), store.LinkFilter{}, store.Page{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].SampleDocumentIDs)
	assert.NotNil(t, reports[0].SampleDocumentIDs)

	expectationsMet(t, mock)
}

func TestLinkRepository_CountLinks(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT l.id\) .+ WHERE l.is_ignored = FALSE AND l.redirect_count > 0`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountLinks(context.Background(), store.LinkFilter{Status: store.StatusRedirect})
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	expectationsMet(t, mock)
}

func TestLinkRepository_Stats(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	last := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectQuery(`COUNT\(\*\) FILTER .+ MAX\(last_checked_at\) AS last_scan FROM links`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "broken", "ok", "redirects", "last_scan"}).
			AddRow(5, 2, 3, 1, last))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LinkStats{Total: 5, Broken: 2, OK: 3, Redirects: 1, LastScanAt: &last}, stats)

	expectationsMet(t, mock)
}

func TestLinkRepository_IgnoreLink(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE links SET is_ignored = TRUE").
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE links SET is_ignored = TRUE").
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.IgnoreLink(context.Background(), 3))
	require.ErrorIs(t, repo.IgnoreLink(context.Background(), 99), domain.ErrNotFound)

	expectationsMet(t, mock)
}

func TestLinkRepository_MarkStaleAndClear(t *testing.T) {
	repo, mock, cleanup := newLinkRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE links SET last_checked_at = NULL").
		WithArgs(6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("TRUNCATE TABLE link_occurrences").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkStale(context.Background(), 6))
	require.NoError(t, repo.ClearOccurrences(context.Background()))

	expectationsMet(t, mock)
}

func TestOperationRepository_SaveOperation(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO operations").
		WithArgs("replace", "admin", `{"find":"a"}`, `{"12":"old content"}`, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(21, now))

	op := &domain.Operation{
		Kind:         domain.OperationKindReplace,
		ActorID:      "admin",
		Payload:      []byte(`{"find":"a"}`),
		UndoSnapshot: domain.UndoSnapshot{12: "old content"},
	}
	id, err := repo.SaveOperation(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, int64(21), id)
	assert.True(t, op.UndoAvailable)

	expectationsMet(t, mock)
}

func TestOperationRepository_SaveOperation_DropsOversizedSnapshot(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO operations").
		WithArgs("replace", "", "{}", nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(22, time.Now()))

	op := &domain.Operation{
		Kind:         domain.OperationKindReplace,
		UndoSnapshot: domain.UndoSnapshot{1: strings.Repeat("z", domain.MaxUndoSnapshotBytes)},
	}
	_, err := repo.SaveOperation(context.Background(), op)
	require.NoError(t, err)
	assert.False(t, op.UndoAvailable)

	expectationsMet(t, mock)
}

func TestOperationRepository_GetLastUndoableOperation(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	now := time.Now()
	columns := append(append([]string{}, operationColumns...), "undo_snapshot")
	mock.ExpectQuery("SELECT .+ FROM operations WHERE undo_available ORDER BY id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(3, "replace", "admin", `{"find":"x"}`, true, nil, now, `{"5":"<p>x</p>","6":"y"}`))

	op, err := repo.GetLastUndoableOperation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), op.ID)
	assert.Equal(t, domain.UndoSnapshot{5: "<p>x</p>", 6: "y"}, op.UndoSnapshot)
	assert.JSONEq(t, `{"find":"x"}`, string(op.Payload))

	expectationsMet(t, mock)
}

func TestOperationRepository_GetLastUndoableOperation_None(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	mock.ExpectQuery("FROM operations WHERE undo_available").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetLastUndoableOperation(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)

	expectationsMet(t, mock)
}

func TestOperationRepository_ListOperations(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	consumed := time.Now()
	mock.ExpectQuery("SELECT .+ FROM operations ORDER BY id DESC LIMIT").
		WithArgs(domain.OperationRetention).
		WillReturnRows(sqlmock.NewRows(operationColumns).
			AddRow(5, "replace", "admin", `{}`, false, consumed, time.Now()).
			AddRow(4, "replace", "admin", `{}`, false, nil, time.Now()))

	ops, err := repo.ListOperations(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.False(t, ops[0].UndoDropped())
	assert.True(t, ops[1].UndoDropped())

	expectationsMet(t, mock)
}

func TestOperationRepository_MarkConsumedAndPrune(t *testing.T) {
	repo, mock, cleanup := newOperationRepo(t)
	defer cleanup()

	at := time.Now()
	mock.ExpectExec("UPDATE operations SET undo_available = FALSE, undo_snapshot = NULL").
		WithArgs(3, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE operations SET undo_available = FALSE").
		WithArgs(3, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM operations WHERE id NOT IN`).
		WithArgs(domain.OperationRetention).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.MarkOperationConsumed(context.Background(), 3, at))
	require.ErrorIs(t, repo.MarkOperationConsumed(context.Background(), 3, at), domain.ErrNotFound)

	deleted, err := repo.PruneOperations(context.Background(), domain.OperationRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	expectationsMet(t, mock)
}

func TestDocumentRepository_ListAndCount(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewDocumentRepository(db)

	q := store.DocumentQuery{Types: []string{"post", "page"}, Status: domain.DocumentStatusPublished}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents WHERE type = ANY\(\$1\) AND status = \$2`).
		WithArgs(sqlmock.AnyArg(), "publish").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM documents WHERE type = ANY\(\$1\) AND status = \$2 ORDER BY id ASC LIMIT \$3 OFFSET \$4`).
		WithArgs(sqlmock.AnyArg(), "publish", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "content"}).
			AddRow(1, "post", "publish", "<a href=\"https://a.test\">a</a>"))

	count, err := repo.CountDocuments(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	docs, err := repo.ListDocuments(context.Background(), q, 20, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "post", docs[0].Type)

	expectationsMet(t, mock)
}

func TestDocumentRepository_SearchAndUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT id FROM documents WHERE status = \$1 AND content ILIKE \$2 ORDER BY id ASC`).
		WithArgs("publish", `%http://old.test/100\%off%`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(5))
	mock.ExpectExec("UPDATE documents SET content").
		WithArgs(2, "new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET content").
		WithArgs(404, "new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ids, err := repo.SearchContent(context.Background(),
		store.DocumentQuery{Status: domain.DocumentStatusPublished}, "http://old.test/100%off")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, ids)

	require.NoError(t, repo.UpdateContent(context.Background(), 2, "new"))
	require.ErrorIs(t, repo.UpdateContent(context.Background(), 404, "new"), domain.ErrNotFound)

	expectationsMet(t, mock)
}

func TestSettingsRepository_GetSet(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := database.NewSettingsRepository(db)

	mock.ExpectQuery("SELECT value FROM sweeper_settings WHERE key").
		WithArgs("rules").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO sweeper_settings .+ ON CONFLICT \\(key\\) DO UPDATE").
		WithArgs("rules", `["a"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT value FROM sweeper_settings WHERE key").
		WithArgs("rules").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`["a"]`))

	var got []string
	found, err := repo.Get(context.Background(), "rules", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Set(context.Background(), "rules", []string{"a"}))

	found, err = repo.Get(context.Background(), "rules", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a"}, got)

	expectationsMet(t, mock)
}

func TestConfig_DSNAndURL(t *testing.T) {
	cfg := database.Config{Host: "db", Port: 5432, User: "sweeper", Password: "p@ss", DBName: "links"}

	assert.Equal(t, "host=db port=5432 user=sweeper password=p@ss dbname=links sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://sweeper:p%40ss@db:5432/links?sslmode=disable", cfg.URL())
}
