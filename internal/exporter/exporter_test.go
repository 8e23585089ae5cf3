package exporter_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store/memory"
)

func intPtr(v int) *int                            { return &v }
func strPtr(v string) *string                      { return &v }
func kindPtr(v domain.ErrorKind) *domain.ErrorKind { return &v }

func TestStatusText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link domain.Link
		want string
	}{
		{"error kind wins", domain.Link{ErrorKind: kindPtr(domain.ErrorKindDNS), LastCode: intPtr(404)}, "Error: DNS Error"},
		{"broken", domain.Link{LastCode: intPtr(404), RedirectCount: 2}, "Broken"},
		{"redirect", domain.Link{LastCode: intPtr(200), RedirectCount: 1}, "Redirect"},
		{"ok", domain.Link{LastCode: intPtr(204)}, "OK"},
		{"unchecked", domain.Link{}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, exporter.StatusText(&tt.link))
		})
	}
}

func TestLinkTable(t *testing.T) {
	t.Parallel()

	checked := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	table := exporter.LinkTable([]domain.LinkReport{
		{
			Link: domain.Link{
				RawURL: "http://a.test/x", LastCode: intPtr(404), LastCheckedAt: &checked,
				FinalURL: strPtr("http://a.test/x"), ResponseTimeMS: intPtr(12),
			},
			OccurrenceCount:   5,
			SampleDocumentIDs: []int64{1, 2, 3},
		},
		{
			Link:            domain.Link{RawURL: "http://b.test/", ErrorKind: kindPtr(domain.ErrorKindTimeout)},
			OccurrenceCount: 1,
		},
	})

	assert.Equal(t, []string{
		"URL", "Status Code", "Status", "Error Type", "Redirects", "Final URL",
		"Response Time(ms)", "Occurrences", "Sample Document IDs", "Last Checked",
	}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{
		"http://a.test/x", "404", "Broken", "", "0", "http://a.test/x", "12", "5",
		"1, 2, 3, ... and 2 more", "2026-03-04T05:06:07Z",
	}, table.Rows[0])
	assert.Equal(t, []string{
		"http://b.test/", "N/A", "Error: Timeout", "Timeout", "0", "", "", "1", "", "",
	}, table.Rows[1])
}

func TestStatsTable(t *testing.T) {
	t.Parallel()

	table := exporter.StatsTable(domain.LinkStats{Total: 5, Broken: 2, OK: 3})
	assert.Equal(t, []string{"Metric", "Value"}, table.Header)
	assert.Equal(t, []string{"OK Links", "3"}, table.Rows[2])
	assert.Equal(t, []string{"Last Scan", "Never"}, table.Rows[4])
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	table := exporter.Table{Header: []string{"URL", "Note"}, Rows: [][]string{{"http://a.test/", `has "quotes", commas`}}}
	require.NoError(t, exporter.Write(&buf, exporter.FormatCSV, table))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"URL", "Note"}, {"http://a.test/", `has "quotes", commas`}}, records)
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	table := exporter.StatsTable(domain.LinkStats{Total: 1})
	require.NoError(t, exporter.Write(&buf, exporter.FormatXLSX, table))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows("Stats")
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"Metric", "Value"}, rows[0])
	assert.Equal(t, []string{"Total Links", "1"}, rows[1])
}

func TestParseFormatAndFilename(t *testing.T) {
	t.Parallel()

	f, err := exporter.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatCSV, f)

	f, err = exporter.ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatXLSX, f)

	_, err = exporter.ParseFormat("pdf")
	require.ErrorIs(t, err, domain.ErrValidation)

	at := time.Date(2026, 10, 19, 8, 9, 10, 0, time.UTC)
	assert.Equal(t, "broken-links-2026-10-19-080910.csv", exporter.Filename(exporter.LinksFilePrefix, exporter.FormatCSV, at))
	assert.Equal(t, "link-stats-2026-10-19-080910.xlsx", exporter.Filename(exporter.StatsFilePrefix, exporter.FormatXLSX, at))
}

func TestService_LinksFiltered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	links := memory.NewLinkStore()
	for _, u := range []string{"http://a.test/1", "http://b.test/2"} {
		id, err := links.SaveLink(ctx, domain.LinkInput{RawURL: u, NormalizedURL: u})
		require.NoError(t, err)
		code := 500
		require.NoError(t, links.RecordCheck(ctx, id, domain.CheckResult{Status: domain.LinkStatusBroken, Code: &code}, time.Now()))
	}

	svc := exporter.NewService(links)
	table, err := svc.Links(ctx, store.LinkFilter{Status: store.StatusBroken, Domain: "b.test"})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "http://b.test/2", table.Rows[0][0])

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken Links", "2"}, stats.Rows[1])
}
