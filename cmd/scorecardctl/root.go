package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorecard/api/internal/config"
	"scorecard/api/internal/logging"
	"scorecard/api/internal/store"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scorecardctl",
		Short:        "Scorecard operations: imports, migrations, search and exports",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newImportCmd(),
		newMigrateCmd(),
		newReindexCmd(),
		newExportCmd(),
		newHashPasswordCmd(),
		newDocsCmd(),
	)
	return cmd
}

// env bundles what most subcommands need. Close releases the database.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.PostgresStore
	close  func()
}

func loadEnv(ctx context.Context, withDB bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, close: func() { _ = logger.Sync() }}
	if !withDB {
		return e, nil
	}
	pool := store.DefaultPoolOptions()
	pool.MaxOpenConns = cfg.DBMaxConns
	db, err := store.Open(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.store = store.NewPostgresStore(db)
	e.close = func() {
		_ = db.Close()
		_ = logger.Sync()
	}
	return e, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
