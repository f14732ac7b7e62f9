package main

import (
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "storm",
		Short:         "Storm playlist curation",
		Long:          "Storm collects new releases from followed artists, filters them and delivers the survivors to a playlist.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is a development convenience; absence is fine.
			_ = godotenv.Load()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			cmd.SetContext(ctx)
			cobra.OnFinalize(stop)

			return app.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newReplayCommand(app))
	rootCmd.AddCommand(newBackfillCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}
