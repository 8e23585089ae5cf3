// Package cmd implements the link-sweeper command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/bootstrap"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

const (
	keyConfig = "config"
	keyDebug  = "debug"
)

var rootCmd = &cobra.Command{
	Use:   "link-sweeper",
	Short: "Find, check and repair links in stored content",
	Long: `link-sweeper scans stored documents for outbound links, checks them
over HTTP, and rewrites broken ones with previewable, undoable replacements
and wildcard rules.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String(keyConfig, "", "config file (default $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().Bool(keyDebug, false, "enable debug logging")

	cobra.CheckErr(viper.BindPFlag(keyConfig, rootCmd.PersistentFlags().Lookup(keyConfig)))
	cobra.CheckErr(viper.BindPFlag(keyDebug, rootCmd.PersistentFlags().Lookup(keyDebug)))
	cobra.CheckErr(viper.BindEnv(keyDebug, "APP_DEBUG"))

	rootCmd.AddCommand(
		newServeCommand(),
		newSweepCommand(),
		newLinksCommand(),
		newExportCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
}

// configPath resolves --config, then CONFIG_PATH, then the default.
func configPath() string {
	return bootstrap.ResolveConfigPath(viper.GetString(keyConfig))
}

func startApp(ctx context.Context) (*bootstrap.App, error) {
	app, err := bootstrap.Start(ctx, configPath(), viper.GetBool(keyDebug), Version)
	if err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}
	return app, nil
}
