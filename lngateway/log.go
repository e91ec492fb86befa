package lngateway

import "github.com/btcsuite/btclog"

var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by lngateway.
func UseLogger(logger btclog.Logger) {
	log = logger
}
