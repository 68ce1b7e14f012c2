package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"scorecard/api/internal/search"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every hierarchy node to Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			if e.cfg.MeiliURL == "" {
				return errors.New("MEILI_URL is not set")
			}

			meili := search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.logger)
			defer meili.Close()
			start := time.Now()
			count, err := search.NewService(meili, search.NewPostgres(e.store), e.store, e.logger).ReindexAll(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"command":     "reindex",
				"duration_ms": time.Since(start).Milliseconds(),
				"indexed":     count,
			})
		},
	}
}
