package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/storm/internal/core/services"
)

func newReplayCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <storm> <start-date> <run-date>",
		Short: "Re-run the filter stage over persisted metadata",
		Long:  "Replay rebuilds a run's filter output for the given window from the local database. Nothing is fetched, delivered or persisted; the hypothetical run record is printed as JSON.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			replayer := services.NewReplayer(app.store, app.log)
			rec, err := replayer.Replay(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}
