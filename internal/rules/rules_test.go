package rules_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/rules"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store/memory"
)

func TestReplacementURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		pattern     string
		replacement string
		want        string
	}{
		{"wildcard prefix found after scheme", "http://oldsite.com/page?x=1", "oldsite.com/*", "newsite.com/*", "newsite.com/page?x=1"},
		{"wildcard prefix is case-insensitive", "HTTP://OLDSITE.COM/Page", "http://oldsite.com/*", "https://newsite.com/*", "https://newsite.com/Page"},
		{"wildcard with suffix slot", "http://old.com/a", "http://old.com/*", "http://new.com/*?from=old", "http://new.com/a?from=old"},
		{"substring fallback", "http://OLD.com/a", "old.com", "new.com", "http://new.com/a"},
		{"two wildcards fall back to substring", "http://old.com/a/b", "http://*/a/*", "http://x/*", "http://old.com/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rules.ReplacementURL(tt.url, tt.pattern, tt.replacement))
		})
	}
}

func TestMatchesURL(t *testing.T) {
	t.Parallel()

	assert.True(t, rules.MatchesURL("http://OldSite.com/page", "http://oldsite.com/*", domain.MatchContains))
	assert.False(t, rules.MatchesURL("http://oldsite.com/page", "oldsite.com/*", domain.MatchContains), "wildcards are anchored")
	assert.True(t, rules.MatchesURL("http://a.com/x.pdf", "http://a.com/*.pdf", domain.MatchContains))
	assert.True(t, rules.MatchesURL("http://old.com/a", "old.com", domain.MatchContains))
	assert.False(t, rules.MatchesURL("http://old.com/a", "old.com", domain.MatchStartsWith))
	assert.True(t, rules.MatchesURL("http://old.com/a", "HTTP://OLD.COM/A", domain.MatchEquals))
	assert.True(t, rules.MatchesURL("http://old.com/a.(1)", "http://old.com/a.(*)", domain.MatchEquals), "regex metacharacters are literal")
}

func newService(t *testing.T) *rules.Service {
	t.Helper()
	var n int
	return rules.New(rules.Config{
		Store: memory.NewKeyValueStore(),
		Now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("rule-%d", n)
		},
	})
}

func TestService_CRUD(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, domain.Rule{Pattern: "", Replacement: "http://new.com"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Add(ctx, domain.Rule{Pattern: "old.com", Replacement: "new.com"})
	require.ErrorIs(t, err, domain.ErrValidation)

	first, err := svc.Add(ctx, domain.Rule{Pattern: "old.com", Replacement: "http://new.com", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "rule-1", first.ID)
	assert.Equal(t, domain.MatchContains, first.MatchType)
	assert.Equal(t, 2026, first.CreatedAt.Year())

	second, err := svc.Add(ctx, domain.Rule{Pattern: "x.com", Replacement: "http://y.com", MatchType: domain.MatchStartsWith})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{first.ID, second.ID}, []string{list[0].ID, list[1].ID})

	toggled, err := svc.Toggle(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Enabled)

	bad := "relative/path"
	_, err = svc.Update(ctx, first.ID, domain.RuleUpdate{Replacement: &bad})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://new.com", got.Replacement, "a failed update leaves the rule unchanged")

	pattern := "older.com"
	updated, err := svc.Update(ctx, first.ID, domain.RuleUpdate{Pattern: &pattern})
	require.NoError(t, err)
	assert.Equal(t, "older.com", updated.Pattern)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	require.NoError(t, svc.Delete(ctx, first.ID))
	require.ErrorIs(t, svc.Delete(ctx, first.ID), domain.ErrNotFound)
	_, err = svc.Get(ctx, first.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Toggle(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type applyFixture struct {
	svc   *rules.Service
	docs  *memory.DocumentStore
	links *memory.LinkStore
	ops   *memory.OperationStore
}

func newApplyFixture(t *testing.T) *applyFixture {
	t.Helper()
	ctx := context.Background()

	f := &applyFixture{
		docs: memory.NewDocumentStore(
			domain.Document{ID: 1, Type: "post", Status: "publish", Content: `<a href="http://old.com/a">a</a>`},
			domain.Document{ID: 2, Type: "post", Status: "publish", Content: `see http://old.com/b and http://other.com/x`},
		),
		links: memory.NewLinkStore(),
		ops:   memory.NewOperationStore(),
	}

	for _, u := range []string{"http://old.com/a", "http://old.com/b", "http://other.com/x", "http://old.com/ignored"} {
		id, err := f.links.SaveLink(ctx, domain.LinkInput{RawURL: u, NormalizedURL: u})
		require.NoError(t, err)
		code := 404
		require.NoError(t, f.links.RecordCheck(ctx, id, domain.CheckResult{Status: domain.LinkStatusBroken, Code: &code}, time.Now()))
		if u == "http://old.com/ignored" {
			require.NoError(t, f.links.IgnoreLink(ctx, id))
		}
	}

	engine := replacer.New(replacer.Config{
		Documents:  f.docs,
		Links:      f.links,
		Operations: f.ops,
		Settings: settings.NewService(memory.NewKeyValueStore(), settings.Settings{
			ScanDocumentTypes: []string{"post"},
		}),
	})
	f.svc = rules.New(rules.Config{Store: memory.NewKeyValueStore(), Links: f.links, Replacer: engine})
	return f
}

func TestService_ApplyDryRunThenReal(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, domain.Rule{Pattern: "http://old.com/*", Replacement: "http://disabled.com/*", Enabled: false})
	require.NoError(t, err)
	wildcardRule, err := f.svc.Add(ctx, domain.Rule{Pattern: "http://old.com/*", Replacement: "http://new.com/*", Enabled: true})
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, domain.Rule{Pattern: "old.com", Replacement: "http://shadowed.com", Enabled: true})
	require.NoError(t, err)

	dry, err := f.svc.Apply(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Nil(t, dry.ReplacedCount)
	assert.Equal(t, 2, dry.MatchedCount)

	newURLs := map[string]string{}
	for _, r := range dry.Replacements {
		assert.Equal(t, wildcardRule.ID, r.RuleID, "first matching enabled rule wins")
		newURLs[r.OldURL] = r.NewURL
	}
	assert.Equal(t, map[string]string{
		"http://old.com/a": "http://new.com/a",
		"http://old.com/b": "http://new.com/b",
	}, newURLs)

	doc, err := f.docs.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, `<a href="http://old.com/a">a</a>`, doc.Content, "dry run must not write")
	ops, err := f.ops.ListOperations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ops)
	linksBefore := f.links.Len()

	real, err := f.svc.Apply(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, dry.Replacements, real.Replacements)
	require.NotNil(t, real.ReplacedCount)
	assert.Equal(t, 2, *real.ReplacedCount)

	doc, err = f.docs.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, `<a href="http://new.com/a">a</a>`, doc.Content)
	doc, err = f.docs.GetDocument(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, `see http://new.com/b and http://other.com/x`, doc.Content)

	ops, err = f.ops.ListOperations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 2, "each replaced link is its own operation")
	assert.Greater(t, f.links.Len(), linksBefore)
}

func TestService_ApplyWithoutActiveRules(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	res, err := f.svc.Apply(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MatchedCount)
	assert.Empty(t, res.Replacements)
}

func TestService_ApplySkipsLinksMissingFromDocuments(t *testing.T) {
	t.Parallel()

	f := newApplyFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, domain.Rule{
		Pattern: "http://other.com/x", Replacement: "http://elsewhere.com/x", MatchType: domain.MatchEquals, Enabled: true,
	})
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, domain.Rule{Pattern: "http://old.com/*", Replacement: "http://new.com/*", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, f.docs.UpdateContent(ctx, 1, "no links any more"))

	res, err := f.svc.Apply(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.MatchedCount)
	require.NotNil(t, res.ReplacedCount)
	assert.Equal(t, 2, *res.ReplacedCount)
}
