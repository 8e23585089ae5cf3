package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

func newLinksCommand() *cobra.Command {
	var (
		status, domainFilter, docType, orderBy string
		asc                                    bool
		limit                                  int
	)

	cmd := &cobra.Command{
		Use:   "links",
		Short: "List tracked links",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			filter := store.LinkFilter{
				Status:       store.ParseStatusFilter(status),
				Domain:       domainFilter,
				DocumentType: docType,
			}
			page := store.Page{
				OrderBy: store.ParseOrderField(orderBy),
				Asc:     asc,
				Number:  1,
				PerPage: limit,
			}.Normalize()

			links := app.Services.Stores.Links
			reports, err := links.ListLinks(cmd.Context(), filter, page)
			if err != nil {
				return err
			}
			total, err := links.CountLinks(cmd.Context(), filter)
			if err != nil {
				return err
			}

			renderLinks(cmd.OutOrStdout(), reports, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "broken", "all, broken, ok or redirect")
	cmd.Flags().StringVar(&domainFilter, "domain", "", "only URLs containing this text")
	cmd.Flags().StringVar(&docType, "type", "", "only links found in documents of this type")
	cmd.Flags().StringVar(&orderBy, "order-by", string(store.OrderLastChecked),
		"last_checked_at, url, last_code, response_time_ms or occurrences")
	cmd.Flags().BoolVar(&asc, "asc", false, "sort ascending")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultPerPage, "maximum rows")
	return cmd
}
