package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scorecard/api/internal/blob"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage the markdown served by /api/docs and the assistant prompt",
	}

	var dir string
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Upload every markdown file in the content directory to the MinIO bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()
			if dir == "" {
				dir = e.cfg.ContentDir
			}

			objects, err := blob.NewMinio(blob.MinioOptions{
				Endpoint:  e.cfg.MinioEndpoint,
				AccessKey: e.cfg.MinioAccessKey,
				SecretKey: e.cfg.MinioSecretKey,
				Bucket:    e.cfg.MinioBucket,
				UseSSL:    e.cfg.MinioUseSSL,
			})
			if err != nil {
				return err
			}
			if err := objects.EnsureBucket(cmd.Context()); err != nil {
				return err
			}

			names, err := markdownFiles(dir)
			if err != nil {
				return err
			}
			for _, name := range names {
				data, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					return err
				}
				if err := objects.Put(cmd.Context(), name, data, "text/markdown; charset=utf-8"); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"command": "docs publish", "bucket": e.cfg.MinioBucket, "published": names})
		},
	}
	publish.Flags().StringVar(&dir, "dir", "", "Content directory (defaults to SCORECARD_CONTENT_DIR)")
	cmd.AddCommand(publish)
	return cmd
}

func markdownFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
