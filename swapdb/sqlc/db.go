package sqlc

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, mirroring the interface
// sqlc generates so every query method below works identically inside or
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// BackendType distinguishes the two SQL dialects swapdb supports.
type BackendType uint8

const (
	// BackendTypeSqlite is the local/dev backend.
	BackendTypeSqlite BackendType = iota

	// BackendTypePostgres is the production backend.
	BackendTypePostgres
)

// Queries is the generated-shape query struct: every exported method is a
// single SQL statement against db.
type Queries struct {
	db      DBTX
	backend BackendType
}

// New returns a Queries bound to db.
func New(db DBTX, backend BackendType) *Queries {
	return &Queries{db: db, backend: backend}
}

// WithTx returns a copy of q bound to tx instead of its original DBTX, used
// by TransactionExecutor to run a batch of statements atomically.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, backend: q.backend}
}
