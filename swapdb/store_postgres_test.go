package swapdb_test

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swapdb/sqlc"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
)

// newTestPostgresStore spins up a throwaway Postgres container with
// dockertest and runs the postgres migration tree against it, the same way
// lnd's itest harness stands up bitcoind/lnd rather than asserting against
// mocks. It exists specifically to catch dialect drift between
// migrations/sqlite and migrations/postgres that sqlite-only tests can't
// see.
func newTestPostgresStore(t *testing.T) *swapdb.Store {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker daemon unreachable: %v", err)
	}

	const (
		pass   = "loopout"
		user   = "loopout"
		dbName = "loopout"
	)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=" + pass,
			"POSTGRES_USER=" + user,
			"POSTGRES_DB=" + dbName,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	portStr := resource.GetPort("5432/tcp")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	var base *swapdb.BaseDB
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		dsn := fmt.Sprintf(
			"host=localhost port=%d user=%s password=%s dbname=%s sslmode=disable",
			port, user, pass, dbName,
		)
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		if err := db.Ping(); err != nil {
			return err
		}
		_ = db.Close()

		base, err = swapdb.Open(&swapdb.Config{
			Backend: sqlc.BackendTypePostgres,
			Host:    "localhost",
			Port:    port,
			DBName:  dbName,
			User:    user,
			Pass:    pass,
		})
		return err
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = base.Close() })

	return swapdb.NewStore(base)
}

// TestPostgresMigrationsApplyAndRoundTrip exercises the postgres migration
// tree end to end: a fresh container has no schema until Open runs
// migrations/postgres, and a full insert/fetch round trip through sqlc's
// postgres-flavored queries must succeed the same way it does on sqlite.
func TestPostgresMigrationsApplyAndRoundTrip(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	in := testInsert(0x7a)
	inserted, err := store.InsertFullLoopOut(ctx, in)
	require.NoError(t, err)
	require.Equal(t, swapdb.LoopOutStateInitiated, inserted.LoopOut.State)
	require.NotZero(t, inserted.LoopOut.ID)

	fetched, err := store.GetFullLoopOut(ctx, in.Invoice.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, inserted.Utxo.Txid, fetched.Utxo.Txid)
	require.Equal(t, inserted.Script.Tree, fetched.Script.Tree)
}
