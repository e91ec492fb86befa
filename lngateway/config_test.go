package lngateway_test

import (
	"testing"
	"time"

	"github.com/lightninglabs/loopout/lngateway"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := &lngateway.Config{
		LndAddress:   "localhost:10009",
		MacaroonPath: "/tmp/admin.macaroon",
	}

	require.NoError(t, cfg.Validate())
	require.Equal(t, lngateway.DefaultInvoiceLifetime, cfg.InvoiceLifetime)
}

func TestConfigValidateMissingFields(t *testing.T) {
	require.ErrorIs(t,
		(&lngateway.Config{MacaroonPath: "m"}).Validate(),
		lngateway.ErrLndAddressRequired,
	)
	require.ErrorIs(t,
		(&lngateway.Config{LndAddress: "a", InvoiceLifetime: time.Hour}).Validate(),
		lngateway.ErrMacaroonRequired,
	)
}
