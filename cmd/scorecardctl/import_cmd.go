package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"scorecard/api/internal/importer"
	"scorecard/api/internal/search"
	"scorecard/api/internal/store"
)

type importOutput struct {
	Command    string             `json:"command"`
	DurationMS int64              `json:"duration_ms"`
	DryRun     bool               `json:"dry_run"`
	Result     store.ReplaceStats `json:"result"`
	Totals     store.ReplaceStats `json:"totals"`
	Indexed    int                `json:"indexed"`
}

type importFlags struct {
	dir        string
	pillars    string
	categories string
	goals      string
	programs   string
}

// files resolves the workbook paths. Explicit file flags override the
// conventional names inside --dir.
func (f importFlags) files() (importer.Files, error) {
	var files importer.Files
	if f.dir != "" {
		files = importer.FilesInDir(f.dir)
	}
	override := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	override(&files.Pillars, f.pillars)
	override(&files.Categories, f.categories)
	override(&files.Goals, f.goals)
	override(&files.Programs, f.programs)
	if files.Pillars == "" || files.Categories == "" || files.Goals == "" || files.Programs == "" {
		return importer.Files{}, errors.New("pass --dir or all of --pillars, --categories, --goals and --programs")
	}
	return files, nil
}

func newImportCmd() *cobra.Command {
	var (
		flags   importFlags
		dryRun  bool
		reindex bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the hierarchy with the content of four XLSX workbooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := flags.files()
			if err != nil {
				return err
			}
			start := time.Now()
			if dryRun {
				snapshot, err := importer.ReadSnapshot(files)
				if err != nil {
					return err
				}
				parsed := store.ReplaceStats{
					Pillars:    len(snapshot.Pillars),
					Categories: len(snapshot.Categories),
					Goals:      len(snapshot.Goals),
					Programs:   len(snapshot.Programs),
				}
				return writeJSON(cmd.OutOrStdout(), importOutput{
					Command:    "import",
					DurationMS: time.Since(start).Milliseconds(),
					DryRun:     true,
					Result:     parsed,
					Totals:     parsed,
				})
			}

			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := importer.New(e.store, e.logger).Run(cmd.Context(), files)
			if err != nil {
				return err
			}
			totals, err := e.store.HierarchyCounts(cmd.Context())
			if err != nil {
				return err
			}
			out := importOutput{Command: "import", Result: stats, Totals: totals}
			if reindex && e.cfg.MeiliURL != "" {
				meili := search.NewMeili(e.cfg.MeiliURL, e.cfg.MeiliMasterKey, e.logger)
				defer meili.Close()
				out.Indexed, err = search.NewService(meili, search.NewPostgres(e.store), e.store, e.logger).ReindexAll(cmd.Context())
				if err != nil {
					return err
				}
			}
			out.DurationMS = time.Since(start).Milliseconds()
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&flags.dir, "dir", "", "Directory holding pillars.xlsx, categories.xlsx, goals.xlsx and programs.xlsx")
	cmd.Flags().StringVar(&flags.pillars, "pillars", "", "Pillars workbook")
	cmd.Flags().StringVar(&flags.categories, "categories", "", "Categories workbook")
	cmd.Flags().StringVar(&flags.goals, "goals", "", "Goals workbook")
	cmd.Flags().StringVar(&flags.programs, "programs", "", "Programs workbook")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate the workbooks without touching the database")
	cmd.Flags().BoolVar(&reindex, "reindex", true, "Rebuild the search index after a successful import")
	return cmd
}
