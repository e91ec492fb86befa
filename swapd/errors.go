package swapd

import "errors"

// errInvalidPubkeyLength is wrapped into a swaperrors.KindInvalidPubkey by
// NewLoopOut; it never escapes this package on its own.
var errInvalidPubkeyLength = errors.New("pubkey must be 32 bytes")
