// Package swapdb persists the four loop-out entities (LoopOut, Invoice,
// Script, Utxo) behind a sqlc-shaped query layer and a
// BatchedQuerier/TransactionExecutor pair in the same shape as
// taproot-assets' tapdb.NewTransactionExecutor call sites, generalized down
// to these four tables.
package swapdb

import (
	"context"
	"database/sql"

	"github.com/lightninglabs/loopout/swapdb/sqlc"
)

// BatchedQuerier is the minimal surface a concrete backend (sqlite or
// Postgres) must provide so TransactionExecutor can run a batch of queries
// atomically: begin a transaction, and expose the backend type so query
// text can pick the right bind-placeholder style.
type BatchedQuerier interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

	// Backend reports which SQL dialect this querier speaks.
	Backend() sqlc.BackendType
}

// TransactionExecutor runs a sequence of queries against a typed query
// struct Q inside a single SQL transaction, rolling back on any error.
type TransactionExecutor[Q any] struct {
	db      BatchedQuerier
	wrapTx  func(*sql.Tx) Q
}

// NewTransactionExecutor returns a TransactionExecutor bound to db, using
// wrapTx to produce a Q bound to each transaction it opens.
func NewTransactionExecutor[Q any](db BatchedQuerier, wrapTx func(*sql.Tx) Q) *TransactionExecutor[Q] {
	return &TransactionExecutor[Q]{db: db, wrapTx: wrapTx}
}

// ExecTx runs fn against a fresh transaction-scoped Q, committing on
// success and rolling back on any returned error.
func (t *TransactionExecutor[Q]) ExecTx(ctx context.Context, fn func(Q) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(t.wrapTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
