package swapdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/lightninglabs/loopout/swapdb/sqlc"

	_ "modernc.org/sqlite" // SQLite driver, pure-Go, no cgo.
)

// BaseDB wraps a *sql.DB with its dialect tag and satisfies BatchedQuerier,
// the same way lnd/taproot-assets' tapdb.BaseDB wraps an external *sql.DB
// handle.
type BaseDB struct {
	*sql.DB

	backend sqlc.BackendType
}

// Backend reports which SQL dialect this BaseDB speaks.
func (b *BaseDB) Backend() sqlc.BackendType {
	return b.backend
}

// BeginTx starts a new transaction with the driver's default isolation
// level, each acquiring a fresh pooled connection per §4.5/§5 ("pooled
// connection abstraction", "fresh pooled connection" per operation).
func (b *BaseDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return b.DB.BeginTx(ctx, opts)
}

// Config selects and configures the backend swapdb connects to.
type Config struct {
	// Backend is sqlite (local/dev) or postgres (production), matching
	// db/factory.go's Backend field.
	Backend sqlc.BackendType

	// SqlitePath is the file path used when Backend is sqlite. ":memory:"
	// is accepted for tests.
	SqlitePath string

	// Host, Port, User, Pass, DBName configure the postgres connection
	// when Backend is postgres.
	Host   string
	Port   int
	User   string
	Pass   string
	DBName string

	// SkipMigrations skips the golang-migrate Up() call, for callers that
	// run migrations out of band.
	SkipMigrations bool
}

// Open connects to cfg's backend, runs migrations (unless skipped), and
// returns a ready BaseDB.
func Open(cfg *Config) (*BaseDB, error) {
	switch cfg.Backend {
	case sqlc.BackendTypeSqlite:
		return openSqlite(cfg)
	case sqlc.BackendTypePostgres:
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %v", cfg.Backend)
	}
}

func openSqlite(cfg *Config) (*BaseDB, error) {
	path := cfg.SqlitePath
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// A single shared in-memory database needs exactly one connection or
	// every pooled connection sees its own empty schema.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	base := &BaseDB{DB: db, backend: sqlc.BackendTypeSqlite}

	if !cfg.SkipMigrations {
		if err := runMigrations(db, sqlc.BackendTypeSqlite); err != nil {
			return nil, err
		}
	}

	return base, nil
}

func openPostgres(cfg *Config) (*BaseDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, pq.QuoteLiteral(cfg.Pass), cfg.DBName,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %w", err)
	}

	base := &BaseDB{DB: db, backend: sqlc.BackendTypePostgres}

	if !cfg.SkipMigrations {
		if err := runMigrations(db, sqlc.BackendTypePostgres); err != nil {
			return nil, err
		}
	}

	return base, nil
}
