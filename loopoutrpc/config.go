package loopoutrpc

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/loopout/swaperrors"
)

// Config configures the HTTP surface. MacaroonPath is optional; leaving it
// empty serves every route without authentication, which is the itest and
// regtest default.
type Config struct {
	// ListenAddr is the address the server listens on, e.g. "localhost:8081".
	ListenAddr string

	// MacaroonPath, if set, is the file holding the server's hex-encoded
	// macaroon root key (created on first run). Every request must then
	// present a macaroon baked from that key in an
	// "Authorization: Macaroon <hex>" header.
	MacaroonPath string
}

// Validate checks cfg for completeness.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return swaperrors.New(swaperrors.KindConfigFailure, "listen address required")
	}

	return nil
}

// btcutilAmount narrows sats, a JSON-decoded int64, into btcutil.Amount.
// Kept as a named conversion rather than an inline cast so the one place the
// wire int64 becomes a domain btcutil.Amount is easy to find.
func btcutilAmount(sats int64) btcutil.Amount { return btcutil.Amount(sats) }
