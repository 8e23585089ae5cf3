package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/sweep"
)

func newSweepCommand() *cobra.Command {
	var applyRules bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one full scan and check cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			runner := app.Services.Runner
			if applyRules != app.Config.Schedule.AutoApplyRules {
				runner = sweep.NewRunner(sweep.Config{
					Scanner:        app.Services.Scanner,
					Rules:          app.Services.Rules,
					AutoApplyRules: applyRules,
					Logger:         app.Logger,
					Recorder:       app.Services.Telemetry,
				})
			}

			res, err := runner.Run(cmd.Context())
			if errors.Is(err, domain.ErrAlreadyScanning) {
				return errors.New("another scan is in progress; stop it first or wait for it to finish")
			}
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			renderSweep(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&applyRules, "apply-rules", false, "apply enabled rules to broken links after the sweep")
	return cmd
}
