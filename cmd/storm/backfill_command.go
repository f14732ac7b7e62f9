package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/storm/internal/core/services"
)

func newBackfillCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill-uids <storm>",
		Short: "Backfill content keys onto historical runs",
		Long:  "Computes the content-key set for every recorded run of the storm that lacks one, so old runs participate in re-release deduplication.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backfiller := services.NewBackfiller(app.store, app.log)
			updated, err := backfiller.BackfillTrackUIDs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d runs backfilled\n", args[0], updated)
			return nil
		},
	}
	return cmd
}
