package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/syncevo/syncengine/internal/appconfig"
	"github.com/syncevo/syncengine/internal/reportstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply report-store schema migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}

	var db *sql.DB
	var dialect string
	switch cfg.Profile {
	case appconfig.ProfileStandard:
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("migrate: storage.postgres_dsn is required for profile %q", appconfig.ProfileStandard)
		}
		db, err = sql.Open("pgx", cfg.Storage.PostgresDSN)
		dialect = "postgres"
	default:
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("migrate: storage.sqlite_path is required for profile %q", appconfig.ProfileLite)
		}
		db, err = sql.Open("sqlite", cfg.Storage.SQLitePath)
		dialect = "sqlite3"
	}
	if err != nil {
		return fmt.Errorf("migrate: open database: %w", err)
	}
	defer db.Close()

	if err := reportstore.Migrate(db, dialect); err != nil {
		return err
	}
	fmt.Println("migrations applied successfully")
	return nil
}
