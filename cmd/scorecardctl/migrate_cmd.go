package main

import (
	"github.com/spf13/cobra"

	"scorecard/api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect database migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Migrations directory (defaults to SCORECARD_MIGRATIONS_DIR)")

	migrationsDir := func(e *env) string {
		if dir != "" {
			return dir
		}
		return e.cfg.MigrationsDir
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			applied, err := store.ApplyMigrations(cmd.Context(), e.store.DB(), migrationsDir(e), e.logger)
			if err != nil {
				return err
			}
			if applied == nil {
				applied = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"command": "migrate up", "applied": applied})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			version, err := store.RollbackLast(cmd.Context(), e.store.DB(), migrationsDir(e))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"command": "migrate down", "rolledBack": version})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			states, err := store.MigrationStatus(cmd.Context(), e.store.DB(), migrationsDir(e))
			if err != nil {
				return err
			}
			rows := make([]map[string]any, 0, len(states))
			for _, state := range states {
				rows = append(rows, map[string]any{"version": state.Version, "applied": state.Applied})
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"command": "migrate status", "migrations": rows})
		},
	})
	return cmd
}
