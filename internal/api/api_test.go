package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/api"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/checker"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/rules"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/scanner"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/server"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubChecker reports URLs containing "broken" as 404 and everything else
// as 200.
type stubChecker struct{}

func (stubChecker) Check(_ context.Context, rawURL string) domain.CheckResult {
	code := http.StatusOK
	status := domain.LinkStatusOK
	if strings.Contains(rawURL, "broken") {
		code = http.StatusNotFound
		status = domain.LinkStatusBroken
	}
	return domain.CheckResult{Status: status, Code: &code, FinalURL: rawURL, ResponseTimeMS: 5}
}

func (s stubChecker) CheckBatch(ctx context.Context, urls []string) map[string]domain.CheckResult {
	out := make(map[string]domain.CheckResult, len(urls))
	for _, u := range urls {
		out[u] = s.Check(ctx, u)
	}
	return out
}

type testAPI struct {
	router *gin.Engine
	docs   *memory.DocumentStore
}

func newTestAPI(t *testing.T, middleware ...gin.HandlerFunc) *testAPI {
	t.Helper()

	docs := memory.NewDocumentStore(
		domain.Document{ID: 1, Type: "post", Status: "publish", Content: `<a href="http://old.test/broken">x</a> http://fine.test/ok`},
		domain.Document{ID: 2, Type: "page", Status: "publish", Content: `read http://old.test/broken now`},
		domain.Document{ID: 3, Type: "post", Status: "publish", Content: `http://fine.test/ok`},
	)
	links := memory.NewLinkStore()
	cfg := settings.NewService(memory.NewKeyValueStore(), settings.Settings{
		RequestTimeoutSeconds: 5,
		UserAgent:             "test",
		ScanDocumentTypes:     []string{"post", "page"},
		BatchSizeDocuments:    10,
		BatchSizeURLs:         10,
	})

	orch := scanner.New(scanner.Config{
		Links:      links,
		Documents:  docs,
		State:      memory.NewTransientStore(),
		Settings:   cfg,
		NewChecker: func(checker.Config) scanner.LinkChecker { return stubChecker{} },
	})
	engine := replacer.New(replacer.Config{
		Documents:  docs,
		Links:      links,
		Operations: memory.NewOperationStore(),
		Settings:   cfg,
	})
	ruleSvc := rules.New(rules.Config{
		Store:    memory.NewKeyValueStore(),
		Links:    links,
		Replacer: engine,
	})

	h := api.NewHandler(api.Config{
		Scanner:  orch,
		Links:    links,
		Replacer: engine,
		Rules:    ruleSvc,
		Exporter: exporter.NewService(links),
		Settings: cfg,
	})

	router := gin.New()
	router.Use(middleware...)
	api.SetupRoutes(router, h)
	return &testAPI{router: router, docs: docs}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) scan(t *testing.T) {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/api/v1/scan/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[api.StartScanResponse](t, rec).TotalDocuments)

	rec = a.do(t, http.MethodPost, "/api/v1/scan/documents?offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode[domain.DocumentBatchResult](t, rec)
	assert.Equal(t, 3, docs.ProcessedCount)
	assert.False(t, docs.HasMore)

	rec = a.do(t, http.MethodPost, "/api/v1/scan/urls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[domain.URLBatchResult](t, rec).CheckedCount)

	rec = a.do(t, http.MethodPost, "/api/v1/scan/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.LinkStats](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Broken)
}

func TestScan_Flow(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	a.scan(t)

	rec := a.do(t, http.MethodGet, "/api/v1/scan/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[domain.ScanStatus](t, rec)
	assert.False(t, status.IsScanning)
	require.NotNil(t, status.Progress)
	assert.Equal(t, 2, status.Progress.ProcessedURLs)
}

func TestScan_AlreadyScanning(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/v1/scan/start", nil).Code)

	rec := a.do(t, http.MethodPost, "/api/v1/scan/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/v1/scan/stop", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/v1/scan/start", nil).Code)
}

func TestScan_BadOffset(t *testing.T) {
	t.Parallel()

	rec := newTestAPI(t).do(t, http.MethodPost, "/api/v1/scan/documents?offset=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinks_ListAndFilter(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	a.scan(t)

	rec := a.do(t, http.MethodGet, "/api/v1/links?status=broken", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[api.LinksResponse](t, rec)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Links, 1)
	assert.Equal(t, "http://old.test/broken", page.Links[0].Link.RawURL)
	assert.Equal(t, 2, page.Links[0].OccurrenceCount)
	assert.Equal(t, 20, page.PerPage)

	rec = a.do(t, http.MethodGet, "/api/v1/links?orderby=url&order=asc&per_page=1&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[api.LinksResponse](t, rec)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Links, 1)
	assert.Equal(t, "http://old.test/broken", page.Links[0].Link.RawURL)
}

func TestLinks_RecheckAndIgnore(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	a.scan(t)

	page := decode[api.LinksResponse](t, a.do(t, http.MethodGet, "/api/v1/links?status=broken", nil))
	require.Len(t, page.Links, 1)
	id := page.Links[0].Link.ID
	path := "/api/v1/links/" + itoa(id)

	rec := a.do(t, http.MethodPost, path+"/recheck", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.LinkStatusBroken, decode[domain.Link](t, rec).LastStatus)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, path+"/ignore", nil).Code)
	page = decode[api.LinksResponse](t, a.do(t, http.MethodGet, "/api/v1/links?status=broken", nil))
	assert.Zero(t, page.Total)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/v1/links/999/recheck", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/links/abc/recheck", nil).Code)
}

func TestReplace_PreviewExecuteUndo(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	body := api.ReplaceRequest{Find: "http://old.test/broken", Replace: "https://new.test/", MatchType: "equals"}

	rec := a.do(t, http.MethodPost, "/api/v1/replace/preview", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[replacer.Preview](t, rec)
	assert.Equal(t, 2, preview.AffectedCount)

	rec = a.do(t, http.MethodPost, "/api/v1/replace/execute", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[replacer.ExecuteResult](t, rec)
	assert.Equal(t, 2, res.ReplacedCount)
	assert.True(t, res.UndoAvailable)

	doc, err := a.docs.GetDocument(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "read https://new.test/ now", doc.Content)

	rec = a.do(t, http.MethodGet, "/api/v1/operations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]domain.Operation](t, rec)["operations"], 1)

	rec = a.do(t, http.MethodPost, "/api/v1/replace/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[replacer.UndoResult](t, rec).RestoredCount)

	doc, err = a.docs.GetDocument(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "read http://old.test/broken now", doc.Content)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/v1/replace/undo", nil).Code)
}

// capturingLogger records every Info message with the fields it was
// enriched with.
type capturingLogger struct {
	mu      *sync.Mutex
	entries *[]capturedEntry
	fields  []logger.Field
}

type capturedEntry struct {
	msg    string
	fields map[string]string
}

func newCapturingLogger() *capturingLogger {
	return &capturingLogger{mu: &sync.Mutex{}, entries: &[]capturedEntry{}}
}

func (l *capturingLogger) Debug(string, ...logger.Field) {}
func (l *capturingLogger) Warn(string, ...logger.Field)  {}
func (l *capturingLogger) Error(string, ...logger.Field) {}
func (l *capturingLogger) Fatal(string, ...logger.Field) {}
func (l *capturingLogger) Sync() error                   { return nil }

func (l *capturingLogger) Info(msg string, fields ...logger.Field) {
	entry := capturedEntry{msg: msg, fields: map[string]string{}}
	for _, f := range append(append([]logger.Field{}, l.fields...), fields...) {
		entry.fields[f.Key] = f.String
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, entry)
	l.mu.Unlock()
}

func (l *capturingLogger) With(fields ...logger.Field) logger.Logger {
	return &capturingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]logger.Field{}, l.fields...), fields...),
	}
}

func (l *capturingLogger) find(msg string) (capturedEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return capturedEntry{}, false
}

func TestReplace_LogsWithRequestID(t *testing.T) {
	t.Parallel()

	captured := newCapturingLogger()
	a := newTestAPI(t, server.RequestIDMiddleware(captured))
	body := api.ReplaceRequest{Find: "http://old.test/broken", Replace: "https://new.test/", MatchType: "equals"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/replace/execute", strings.NewReader(
		`{"find":"`+body.Find+`","replace":"`+body.Replace+`","match_type":"equals"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.RequestIDHeader, "req-42")
	req.Header.Set(api.ActorHeader, "editor")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entry, ok := captured.find("Replacement executed")
	require.True(t, ok)
	assert.Equal(t, "req-42", entry.fields["request_id"])
	assert.Equal(t, "editor", entry.fields["actor"])
}

func TestReplace_Validation(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/replace/execute", map[string]string{"find": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/replace/execute",
		api.ReplaceRequest{Find: "http://nowhere.test/", Replace: "https://x.test/", MatchType: "equals"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no documents matched")
}

func TestRules_CRUDAndApply(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	a.scan(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules", api.CreateRuleRequest{
		Pattern:     "http://old.test/*",
		Replacement: "https://new.test/*",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[domain.Rule](t, rec)
	assert.True(t, rule.Enabled)
	assert.NotEmpty(t, rule.ID)

	rec = a.do(t, http.MethodGet, "/api/v1/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/rules/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dry := decode[rules.ApplyResult](t, rec)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 1, dry.MatchedCount)
	require.Len(t, dry.Replacements, 1)
	assert.Equal(t, "https://new.test/broken", dry.Replacements[0].NewURL)

	rec = a.do(t, http.MethodPost, "/api/v1/rules/"+rule.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Rule](t, rec).Enabled)

	rec = a.do(t, http.MethodPost, "/api/v1/rules/apply?dry_run=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[rules.ApplyResult](t, rec).MatchedCount)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/rules/"+rule.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/rules/"+rule.ID, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/rules/apply?dry_run=maybe", nil).Code)
}

func TestRules_InvalidReplacement(t *testing.T) {
	t.Parallel()

	rec := newTestAPI(t).do(t, http.MethodPost, "/api/v1/rules", api.CreateRuleRequest{
		Pattern:     "http://old.test/*",
		Replacement: "not a url",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)
	a.scan(t)

	rec := a.do(t, http.MethodGet, "/api/v1/export/links?status=broken", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exporter.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "broken-links-")
	assert.Contains(t, rec.Body.String(), "http://old.test/broken")
	assert.NotContains(t, rec.Body.String(), "http://fine.test/ok")

	rec = a.do(t, http.MethodGet, "/api/v1/export/stats?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/export/stats?format=pdf", nil).Code)
}

func TestSettings(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[settings.Settings](t, rec).UserAgent)

	rec = a.do(t, http.MethodPut, "/api/v1/settings", map[string]any{"user_agent": "Sweeper/2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[settings.Settings](t, rec)
	assert.Equal(t, "Sweeper/2", updated.UserAgent)
	assert.Equal(t, 10, updated.BatchSizeDocuments)

	rec = a.do(t, http.MethodPut, "/api/v1/settings", map[string]any{"batch_size_urls": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{domain.Validationf("bad"), http.StatusBadRequest},
		{domain.NotFoundf("gone"), http.StatusNotFound},
		{domain.ErrAlreadyScanning, http.StatusConflict},
		{domain.ErrUnavailable, http.StatusGone},
		{domain.Persistence("save", assert.AnError), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, api.StatusFor(tt.err), tt.err.Error())
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
