package main

import (
	"github.com/btcsuite/btclog"

	"github.com/lightninglabs/loopout/claimer"
	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/htlc"
	"github.com/lightninglabs/loopout/keyring"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/loopoutrpc"
	"github.com/lightninglabs/loopout/mempool"
	"github.com/lightninglabs/loopout/onchain"
	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swapdb"
)

// levelFromString maps the debuglevel config value to a btclog.Level,
// defaulting to Info on an unrecognized value rather than failing startup
// over a logging typo.
func levelFromString(s string) btclog.Level {
	switch s {
	case "trace":
		return btclog.LevelTrace
	case "debug":
		return btclog.LevelDebug
	case "warn":
		return btclog.LevelWarn
	case "error":
		return btclog.LevelError
	case "critical":
		return btclog.LevelCritical
	case "off":
		return btclog.LevelOff
	default:
		return btclog.LevelInfo
	}
}

// setupLoggers assigns a subsystem logger to every package that declares
// one, following lnd's own per-subsystem btclog.Logger convention (each
// subsystem gets its own short tag, one shared backend/writer).
func setupLoggers(backend *btclog.Backend, debugLevel string) {
	level := levelFromString(debugLevel)

	assign := func(tag string, use func(btclog.Logger)) {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}

	assign("SWAP", swapd.UseLogger)
	assign("ONCH", onchain.UseLogger)
	assign("LNGW", lngateway.UseLogger)
	assign("SWDB", swapdb.UseLogger)
	assign("HTLC", htlc.UseLogger)
	assign("KRNG", keyring.UseLogger)
	assign("FEE ", feeoracle.UseLogger)
	assign("CLAM", claimer.UseLogger)
	assign("RPC ", loopoutrpc.UseLogger)
	assign("MPOL", mempool.UseLogger)
}
