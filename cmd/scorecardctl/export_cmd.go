package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scorecard/api/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		format   string
		function string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the scorecard to PDF or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()

			result, err := export.NewService(e.store, e.logger).Export(cmd.Context(), export.Request{Format: export.Format(format), Function: function})
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = result.Filename
			} else if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, result.Filename)
			}
			if err := os.WriteFile(path, result.Data, 0o644); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"command": "export", "file": path, "bytes": len(result.Data)})
		},
	}

	cmd.Flags().StringVar(&format, "format", "xlsx", "Output format: pdf or xlsx")
	cmd.Flags().StringVar(&function, "function", "", "Only export pillars of this function")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file or directory (defaults to the generated file name)")
	return cmd
}
