package main

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/loopout/swapdb/sqlc"
)

func btcutilAmount(sats int64) btcutil.Amount { return btcutil.Amount(sats) }

// swapdbBackendType maps the db.backend config string to the BackendType
// swapdb.Open expects.
func swapdbBackendType(name string) sqlc.BackendType {
	if name == "postgres" {
		return sqlc.BackendTypePostgres
	}
	return sqlc.BackendTypeSqlite
}
