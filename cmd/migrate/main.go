package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"jobfinder_bot/migrations"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the SQLite subscriber store schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")

	rootCmd.AddCommand(
		gooseCommand("up", "Migrate to the latest version", goose.Up),
		gooseCommand("up-one", "Migrate one version up", goose.UpByOne),
		gooseCommand("down", "Roll back one version", goose.Down),
		gooseCommand("status", "Show migration status", goose.Status),
		gooseCommand("version", "Show current version", goose.Version),
		gooseCommand("reset", "Roll back all migrations", goose.Reset),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func gooseCommand(use, short string, run func(*sql.DB, string, ...goose.OptionsFunc) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := sql.Open("sqlite", dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := migrations.Setup(); err != nil {
				return err
			}
			if err := run(db, "."); err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return nil
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
