package swapdb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/lightninglabs/loopout/swapdb/sqlc"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// runMigrations brings db's schema up to the latest version using
// golang-migrate/migrate/v4. sqlite and postgres read from separate embedded
// source trees: AUTOINCREMENT/BLOB and BIGSERIAL/BYTEA aren't interchangeable
// SQL, so the two dialects can't share one migration file.
func runMigrations(db *sql.DB, backend sqlc.BackendType) error {
	var (
		driver  database.Driver
		dbName  string
		sideDir string
		err     error
	)

	switch backend {
	case sqlc.BackendTypeSqlite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
		dbName = "sqlite"
		sideDir = "migrations/sqlite"

	case sqlc.BackendTypePostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
		dbName = "postgres"
		sideDir = "migrations/postgres"

	default:
		return fmt.Errorf("unsupported backend: %v", backend)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, sideDir)
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
