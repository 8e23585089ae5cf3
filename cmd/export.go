package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

func newExportCommand() *cobra.Command {
	var (
		format, output, status, domainFilter, docType string
		stats                                         bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export links or statistics as CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}

			app, err := startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			prefix := exporter.LinksFilePrefix
			var table exporter.Table
			if stats {
				prefix = exporter.StatsFilePrefix
				table, err = app.Services.Exporter.Stats(cmd.Context())
			} else {
				table, err = app.Services.Exporter.Links(cmd.Context(), store.LinkFilter{
					Status:       store.ParseStatusFilter(status),
					Domain:       domainFilter,
					DocumentType: docType,
				})
			}
			if err != nil {
				return err
			}

			if output == "" {
				output = exporter.Filename(prefix, f, time.Now())
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err = exporter.Write(file, f, table); err != nil {
				_ = file.Close()
				return err
			}
			if err = file.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(table.Rows), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(exporter.FormatCSV), "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: timestamped name)")
	cmd.Flags().BoolVar(&stats, "stats", false, "export summary statistics instead of links")
	cmd.Flags().StringVar(&status, "status", "broken", "all, broken, ok or redirect")
	cmd.Flags().StringVar(&domainFilter, "domain", "", "only URLs containing this text")
	cmd.Flags().StringVar(&docType, "type", "", "only links found in documents of this type")
	return cmd
}
