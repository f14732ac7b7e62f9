package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/storm/internal/core/services"
)

func newRunCommand(app *appContext) *cobra.Command {
	var (
		all            bool
		startDate      string
		keepRereleases bool
	)

	cmd := &cobra.Command{
		Use:   "run [storm...]",
		Short: "Execute a curation cycle for one or more storms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one storm, or pass --all")
			}
			if all && len(args) > 0 {
				return fmt.Errorf("--all takes no storm names")
			}

			ctx := cmd.Context()
			storms := args
			if all {
				var err error
				storms, err = app.store.ListStormNames(ctx)
				if err != nil {
					return err
				}
				if len(storms) == 0 {
					return fmt.Errorf("no storms configured")
				}
			}

			source, err := app.sourceClient(ctx)
			if err != nil {
				return err
			}
			writer, err := app.writerClient(ctx)
			if err != nil {
				return err
			}
			runner := services.NewRunner(app.store, source, writer, app.log, app.runnerOptions(keepRereleases)...)

			// One storm's failure doesn't stop the rest; the first error is
			// still reported.
			var firstErr error
			for _, storm := range storms {
				rec, err := runner.Run(ctx, storm, startDate)
				if err != nil {
					app.log.Error().Err(err).Str("storm", storm).Msg("run failed")
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: delivered %d tracks (run %s)\n", storm, len(rec.StormTracks), rec.ID)
			}
			return firstErr
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Run every configured storm")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Override the window start (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&keepRereleases, "keep-rereleases", false, "Skip re-release deduplication")
	return cmd
}
