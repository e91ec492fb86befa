package lngateway

import "errors"

var (
	// ErrLndAddressRequired is returned when no lnd.address is configured.
	ErrLndAddressRequired = errors.New("lnd address is required")

	// ErrMacaroonRequired is returned when no macaroon path is configured.
	ErrMacaroonRequired = errors.New("lnd macaroon path is required")

	// ErrPaymentFailed is returned when a payment attempt did not settle.
	ErrPaymentFailed = errors.New("lngateway: payment failed")
)
