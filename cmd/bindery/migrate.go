package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context(), opts, appOptions{migrate: true})
				if err != nil {
					return err
				}
				defer a.Close()
				return printVersion(cmd, a)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context(), opts, appOptions{})
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.db.MigrateDown(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd, a)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the state of every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := openApp(cmd.Context(), opts, appOptions{})
				if err != nil {
					return err
				}
				defer a.Close()
				return a.db.MigrationStatus(cmd.Context())
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, a *app) error {
	version, err := a.db.Version(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
