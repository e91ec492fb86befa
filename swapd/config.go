package swapd

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swaperrors"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// DefaultCltvDelta is used when Config.CltvDelta is zero.
const DefaultCltvDelta = 500

// KeyDeriver allocates and derives the server's per-swap taproot key.
// *keyring.KeyStore satisfies this.
type KeyDeriver interface {
	Derive(ctx context.Context) (uint32, *btcec.PublicKey, *btcec.PrivateKey, error)
}

// FundingWallet funds, signs and broadcasts a swap's on-chain HTLC output,
// and reports the chain tip height cltv_expiry is computed from.
// *onchain.Wallet satisfies this.
type FundingWallet interface {
	Height(ctx context.Context) (uint32, error)
	BuildAndSignSend(ctx context.Context, outputs []*wire.TxOut,
		feeRate chainfee.SatPerKWeight, nLockTime uint32) (*wire.MsgTx, error)
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
}

// InvoiceIssuer requests the off-chain leg of a swap: a BOLT11 invoice whose
// payment hash the on-chain HTLC commits to. *lngateway.Gateway satisfies
// this.
type InvoiceIssuer interface {
	AddInvoice(ctx context.Context, amountSat btcutil.Amount) (*lngateway.InvoiceResult, error)
}

// FeeEstimator returns a fee rate for a requested confirmation priority.
// *feeoracle.Oracle satisfies this.
type FeeEstimator interface {
	Rate(ctx context.Context, priority feeoracle.FeePriority) (chainfee.SatPerKWeight, error)
}

// Config wires together every leaf component the coordinator orchestrates:
// key store, HTLC builder, on-chain wallet, LN gateway, fee oracle and
// durable store, each initialized in dependency order ahead of NewLoopOut.
// The four external collaborators are interfaces rather than the concrete
// lnd/chain-backed types so a test can supply in-memory fakes without
// standing up a wallet, lnd connection or mempool.space client.
type Config struct {
	// NetParams is the Bitcoin network the swap's HTLC address and
	// funding transaction are built for.
	NetParams *chaincfg.Params

	// MinAmount and MaxAmount bound the accepted amount_sats range
	// (loopout.min/loopout.max).
	MinAmount btcutil.Amount
	MaxAmount btcutil.Amount

	// CltvDelta is added to the current tip height to compute each
	// swap's absolute cltv_expiry (loopout.cltv).
	CltvDelta uint32

	// FeePct is the integer percentage of amount_sats the server charges
	// on top as its loop-out fee (loopout.fee).
	FeePct int64

	KeyStore  KeyDeriver
	Wallet    FundingWallet
	LN        InvoiceIssuer
	FeeOracle FeeEstimator
	Store     *swapdb.Store
}

// Validate checks that every required collaborator and bound is present.
func (c *Config) Validate() error {
	if c.NetParams == nil {
		return swaperrors.New(swaperrors.KindConfigFailure, "network params required")
	}
	if c.MinAmount <= 0 || c.MaxAmount <= 0 || c.MinAmount > c.MaxAmount {
		return swaperrors.New(swaperrors.KindConfigFailure, "invalid min/max amount bounds")
	}
	if c.FeePct < 0 || c.FeePct > 100 {
		return swaperrors.New(swaperrors.KindConfigFailure, "fee percent out of range")
	}
	if c.KeyStore == nil || c.Wallet == nil || c.LN == nil ||
		c.FeeOracle == nil || c.Store == nil {

		return swaperrors.New(swaperrors.KindConfigFailure, "all collaborators are required")
	}
	if c.CltvDelta == 0 {
		c.CltvDelta = DefaultCltvDelta
	}

	return nil
}
