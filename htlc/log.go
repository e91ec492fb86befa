package htlc

import "github.com/btcsuite/btclog"

// log is the package-level subsystem logger, wired up by the top-level
// application via UseLogger. It is a no-op until then.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by htlc.
func UseLogger(logger btclog.Logger) {
	log = logger
}
