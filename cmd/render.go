package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/sweep"
)

const maxURLWidth = 70

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func renderLinks(w io.Writer, reports []domain.LinkReport, total int) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No links found")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "URL", "Status", "Code", "Time (ms)", "Documents"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: maxURLWidth, WidthMaxEnforcer: text.Trim},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	for i := range reports {
		r := &reports[i]
		code := "N/A"
		if r.LastCode != nil {
			code = strconv.Itoa(*r.LastCode)
		}
		elapsed := ""
		if r.ResponseTimeMS != nil {
			elapsed = strconv.Itoa(*r.ResponseTimeMS)
		}
		t.AppendRow(table.Row{r.ID, r.RawURL, exporter.StatusText(&r.Link), code, elapsed, r.OccurrenceCount})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d", len(reports), total)})
	t.Render()
}

func renderSweep(w io.Writer, res sweep.Result) {
	t := newTable(w)
	t.SetTitle("Sweep")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Documents scanned", fmt.Sprintf("%d / %d", res.ProcessedDocuments, res.TotalDocuments)},
		{"URLs checked", res.CheckedURLs},
		{"Total links", res.Stats.Total},
		{"Broken links", res.Stats.Broken},
		{"OK links", res.Stats.OK},
		{"Redirects", res.Stats.Redirects},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
	})
	if res.Stopped {
		t.AppendRow(table.Row{"Stopped", "yes"})
	}
	if res.Rules != nil {
		replaced := 0
		if res.Rules.ReplacedCount != nil {
			replaced = *res.Rules.ReplacedCount
		}
		t.AppendRow(table.Row{"Rule matches", res.Rules.MatchedCount})
		t.AppendRow(table.Row{"Rule replacements", replaced})
	}
	t.Render()
}
