package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		migrateDirection("up", "Apply all pending migrations", database.Up),
		migrateDirection("down", "Roll back all migrations", database.Down),
	)
	return cmd
}

func migrateDirection(use, short string, direction database.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(configPath(), false)
			if err != nil {
				return err
			}

			db, err := database.NewPostgresConnection(cmd.Context(), bootstrap.DatabaseConfig(cfg))
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err = database.Migrate(db, direction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s complete\n", direction)
			return nil
		},
	}
}
