package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Serve(cmd.Context())
		},
	}
}
