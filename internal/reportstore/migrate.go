package reportstore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate runs every pending goose migration against db using dialect
// ("sqlite3" or "postgres"), matching the teacher's profile-driven
// migration invocation at process startup.
func Migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("reportstore: set dialect %q: %w", dialect, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("reportstore: migrate: %w", err)
	}
	return nil
}
