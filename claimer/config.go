package claimer

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lntypes"

	"github.com/lightninglabs/loopout/swaperrors"
)

// InvoicePayer is the subset of lngateway.Gateway the claimer needs: paying
// the swap's invoice and getting back the revealed preimage. Declared as an
// interface, the same way feeoracle.Bridge narrows mempool.ChainBridge, so
// tests can stub it without dialing a real LN node.
type InvoicePayer interface {
	PayInvoiceSync(ctx context.Context, bolt11 string,
		feeLimitSat btcutil.Amount) (lntypes.Preimage, error)
}

// Signer produces the BIP-341 script-path Schnorr signature over a claim
// transaction's single input, committing to leafScript as the tapscript
// being spent. It is narrowed to exactly this one operation so the buyer's
// raw private key never has to pass through this package: a server-side
// instance would be backed by an lndclient.SignerClient remote-signing
// call, routing every signing operation through an lndclient/signrpc
// boundary rather than holding private key material in application code.
type Signer interface {
	SignClaim(ctx context.Context, tx *wire.MsgTx, prevOut *wire.TxOut,
		leafScript []byte) (*schnorr.Signature, error)
}

// Bridge is the narrow chain-backend surface the claimer needs: tip height
// for the claim tx's anti-fee-sniping nLockTime, and broadcast.
type Bridge interface {
	CurrentHeight(ctx context.Context) (uint32, error)
	PublishTransaction(ctx context.Context, tx *wire.MsgTx, label string) error
}

// Config wires the claimer's collaborators.
type Config struct {
	NetParams *chaincfg.Params
	LN        InvoicePayer
	Signer    Signer
	Bridge    Bridge

	// PaymentFeeLimitSat bounds LNGateway.PayInvoiceSync's routing fee.
	PaymentFeeLimitSat int64
}

// Validate checks every required collaborator is present.
func (c *Config) Validate() error {
	if c.NetParams == nil {
		return swaperrors.New(swaperrors.KindConfigFailure, "network params required")
	}
	if c.LN == nil || c.Signer == nil || c.Bridge == nil {
		return swaperrors.New(swaperrors.KindConfigFailure, "all collaborators are required")
	}
	if c.PaymentFeeLimitSat <= 0 {
		return swaperrors.New(swaperrors.KindConfigFailure, "payment fee limit must be positive")
	}

	return nil
}
