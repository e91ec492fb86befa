// Package swaperrors defines the enumerated error kinds every component
// boundary in the loop-out server wraps its failures into, so the HTTP
// surface never has to inspect a raw driver or RPC error to pick a status
// code. Built on github.com/go-errors/errors for stack-trace-carrying
// wrapped errors at component boundaries.
package swaperrors

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies why a swap operation failed. Every error the coordinator
// surfaces to a caller carries exactly one Kind.
type Kind int

const (
	// KindInvalidAmount means amount_sats is outside [min_amount,
	// max_amount].
	KindInvalidAmount Kind = iota

	// KindInvalidPubkey means the buyer pubkey does not parse as a
	// 32-byte x-only key.
	KindInvalidPubkey

	// KindInvalidPaymentHash means a payment hash path parameter is not
	// 64 hex characters.
	KindInvalidPaymentHash

	// KindNotFound means a lookup found no matching row.
	KindNotFound

	// KindLNFailure means invoice creation or payment failed at the LN
	// gateway.
	KindLNFailure

	// KindWalletFailure means fee estimation, PSBT funding or signing
	// failed, or the wallet lacks sufficient funds.
	KindWalletFailure

	// KindBroadcastFailed means the funding transaction was rejected by
	// the chain backend; the swap's rows remain, state stays INITIATED.
	KindBroadcastFailed

	// KindStorageFailure means the database pool or a SQL statement
	// failed; the swap is not resumable through the path that hit it.
	KindStorageFailure

	// KindConfigFailure is fatal and only ever raised at startup.
	KindConfigFailure

	// KindUnauthorized means the request's macaroon credential was
	// missing or failed verification.
	KindUnauthorized
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInvalidPubkey:
		return "invalid_pubkey"
	case KindInvalidPaymentHash:
		return "invalid_payment_hash"
	case KindNotFound:
		return "not_found"
	case KindLNFailure:
		return "ln_failure"
	case KindWalletFailure:
		return "wallet_failure"
	case KindBroadcastFailed:
		return "broadcast_failed"
	case KindStorageFailure:
		return "storage_failure"
	case KindConfigFailure:
		return "config_failure"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the HTTP status code the JSON API responds with for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidAmount, KindInvalidPubkey, KindInvalidPaymentHash:
		return 400
	case KindNotFound:
		return 404
	case KindUnauthorized:
		return 401
	default:
		return 500
	}
}

// Error wraps an underlying error with the Kind the component boundary
// assigned it, plus (for validation kinds) the request parameter that
// failed. The stack of the original error is preserved via go-errors for
// logging, but callers across the boundary only ever see Kind and Param.
type Error struct {
	Kind  Kind
	Param string

	err *goerrors.Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err == nil {
		return e.Kind.String()
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.err.Error())
}

// Message returns the error's own text, without the "kind: " prefix Error()
// adds for logs. This is what the HTTP surface puts in a response body's
// "message" field, since a client never needs the internal Kind tag.
func (e *Error) Message() string {
	if e.err == nil {
		return e.Kind.String()
	}

	return e.err.Err.Error()
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped error.
func (e *Error) Unwrap() error {
	if e.err == nil {
		return nil
	}

	return e.err.Err
}

// Stack returns a formatted stack trace captured at the point Wrap was
// called, for logging only.
func (e *Error) Stack() string {
	if e.err == nil {
		return ""
	}

	return string(e.err.Stack())
}

// Wrap attaches kind to err, capturing a stack trace for diagnostics. A nil
// err returns a nil *Error. Note that a nil *Error stored in an `error`
// interface compares non-nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, err: goerrors.Wrap(err, 1)}
}

// WrapParam is Wrap plus the request parameter name a validation failure
// applies to, matching the {"message": ..., "param": ...} body the HTTP
// surface returns for 400s.
func WrapParam(kind Kind, param string, err error) *Error {
	wrapped := Wrap(kind, err)
	if wrapped == nil {
		return nil
	}

	wrapped.Param = param
	return wrapped
}

// New creates a swaperrors.Error directly from a message, for call sites
// that detect the failure themselves rather than wrapping a lower-level
// error.
func New(kind Kind, msg string) *Error {
	return Wrap(kind, errors.New(msg))
}

// NewParam is New plus a request parameter name.
func NewParam(kind Kind, param, msg string) *Error {
	return WrapParam(kind, param, errors.New(msg))
}

// As reports whether err is (or wraps) a *Error, returning it if so.
func As(err error) (*Error, bool) {
	var swapErr *Error
	ok := errors.As(err, &swapErr)
	return swapErr, ok
}
