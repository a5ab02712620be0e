package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/mohammad-safakhou/newspulse/config"
	srv "github.com/mohammad-safakhou/newspulse/internal/server"
	"github.com/mohammad-safakhou/newspulse/internal/store"
	"github.com/mohammad-safakhou/newspulse/models"
)

func main() {
	var root = &cobra.Command{Use: "newspulse"}
	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return srv.Run(cfgPath)
		},
	}

	var migDir string
	var direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(cfgPath)
			if err := cfg.Databases.Postgres.Validate(); err != nil {
				return err
			}
			return srv.Migrate(migDir, cfg.Databases.Postgres.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var ingest = &cobra.Command{
		Use:   "ingest [file.json]",
		Short: "Load articles from a JSON file into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(cfgPath)
			if err := cfg.Databases.Postgres.Validate(); err != nil {
				return err
			}
			return runIngest(cmd.Context(), cfg, args[0])
		},
	}

	root.AddCommand(serve, migrate, ingest)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runIngest upserts every article in the file; articles are keyed by URL so
// re-running the same file is safe.
func runIngest(ctx context.Context, cfg *appconfig.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var articles []models.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	st, err := store.NewWithDSN(ctx, cfg.Databases.Postgres.DSN())
	if err != nil {
		return err
	}
	defer st.Close()

	var inserted int
	for _, a := range articles {
		if a.URL == "" || a.Title == "" {
			log.Printf("[INGEST] skipping article with missing url or title: %q", a.Title)
			continue
		}
		if _, err := st.InsertArticle(ctx, a); err != nil {
			return fmt.Errorf("insert %s: %w", a.URL, err)
		}
		inserted++
	}
	log.Printf("[INGEST] upserted %d/%d articles from %s", inserted, len(articles), path)
	return nil
}
