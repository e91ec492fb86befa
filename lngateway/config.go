package lngateway

import "time"

// DefaultInvoiceLifetime is used when Config.InvoiceLifetime is zero.
const DefaultInvoiceLifetime = 24 * time.Hour

// Config holds the configuration needed to dial the LN node lndclient
// fronts.
type Config struct {
	// LndAddress is the host:port of the lnd gRPC interface.
	LndAddress string

	// TLSCertPath is the path to lnd's TLS certificate.
	TLSCertPath string

	// MacaroonPath is the path to the macaroon used to authenticate
	// against lnd.
	MacaroonPath string

	// Network is the Bitcoin network lnd is running on.
	Network string

	// InvoiceLifetime is how long invoices created by AddInvoice remain
	// payable. Default: DefaultInvoiceLifetime.
	InvoiceLifetime time.Duration
}

// Validate checks that every field required to dial lnd is present.
func (c *Config) Validate() error {
	if c.LndAddress == "" {
		return ErrLndAddressRequired
	}

	if c.MacaroonPath == "" {
		return ErrMacaroonRequired
	}

	if c.InvoiceLifetime <= 0 {
		c.InvoiceLifetime = DefaultInvoiceLifetime
	}

	return nil
}
