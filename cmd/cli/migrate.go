package main

import (
	"github.com/spf13/cobra"

	"github.com/botte/botte-service/internal/database"
	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/version"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the task queue schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(cmd); err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := initDatabase(ctx); err != nil {
			return err
		}
		defer database.Close()

		if err := taskqueue.Migrate(ctx, database.Pool()); err != nil {
			return err
		}
		logger.Info().Msg("Task queue schema is up to date")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, versionCmd)
}
