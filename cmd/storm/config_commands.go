package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/storm/internal/core/domain"
)

func newConfigCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage storm definitions",
	}
	cmd.AddCommand(newConfigSetCommand(app))
	cmd.AddCommand(newConfigShowCommand(app))
	cmd.AddCommand(newConfigListCommand(app))
	return cmd
}

func newConfigSetCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <storm> <file.json>",
		Short: "Create or replace a storm definition from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]

			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var cfg domain.StormConfig
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.Name = name
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := app.store.SaveConfig(cmd.Context(), name, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration saved\n", name)
			return nil
		},
	}
}

func newConfigShowCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <storm>",
		Short: "Print a storm definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.store.GetConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newConfigListCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured storms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := app.store.ListStormNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
