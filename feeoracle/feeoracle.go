// Package feeoracle returns a fee rate for a requested confirmation
// priority. It is a thin, narrowly-scoped wrapper around the same
// mempool.space-backed chain bridge the onchain wallet uses for broadcast
// and height, kept as its own component so the coordinator can request a
// fee rate without acquiring the wallet lock (see the design note on never
// holding the wallet lock across an awaited fee-oracle call).
package feeoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/lightninglabs/loopout/mempool"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// requestTimeout bounds every call into the chain bridge.
const requestTimeout = 15 * time.Second

// FeePriority is a confirmation-target tier the coordinator requests a fee
// rate for.
type FeePriority uint32

const (
	// Blocks1 targets next-block confirmation.
	Blocks1 FeePriority = 1

	// Blocks3 targets confirmation within 3 blocks.
	Blocks3 FeePriority = 3

	// Blocks6 is the priority the coordinator uses to fund a swap (§4.6
	// step 10).
	Blocks6 FeePriority = 6

	// Blocks144 targets economy, roughly one-day confirmation.
	Blocks144 FeePriority = 144
)

// ErrNoFeeEstimate is returned when the chain bridge fails to produce a rate
// or returns a zero rate.
var ErrNoFeeEstimate = fmt.Errorf("feeoracle: no fee estimate available")

// Bridge is the subset of mempool.ChainBridge the oracle needs. Declared as
// an interface so tests can stub it without standing up a real chain bridge.
type Bridge interface {
	EstimateFee(ctx context.Context, confTarget uint32) (chainfee.SatPerKWeight, error)
	CurrentHeight(ctx context.Context) (uint32, error)
}

// Oracle estimates a fee rate for a given confirmation-target priority.
type Oracle struct {
	bridge Bridge
}

// New creates an Oracle backed by bridge.
func New(bridge Bridge) *Oracle {
	return &Oracle{bridge: bridge}
}

// Rate returns the fee rate for the requested priority. It fails with
// ErrNoFeeEstimate if the backing chain bridge cannot produce one within
// requestTimeout.
func (o *Oracle) Rate(ctx context.Context, priority FeePriority) (chainfee.SatPerKWeight, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	rate, err := o.bridge.EstimateFee(ctx, uint32(priority))
	if err != nil {
		log.Debugf("fee estimate for target=%d failed: %v", priority, err)
		return 0, fmt.Errorf("%w: %v", ErrNoFeeEstimate, err)
	}

	if rate == 0 {
		return 0, ErrNoFeeEstimate
	}

	return rate, nil
}

// CurrentHeight passes through the chain bridge's height, so callers that
// already hold an Oracle don't need a second handle to the chain bridge just
// to compute a CLTV expiry or funding-tx nLockTime.
func (o *Oracle) CurrentHeight(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	return o.bridge.CurrentHeight(ctx)
}
