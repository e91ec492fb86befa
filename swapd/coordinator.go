// Package swapd implements the loop-out server's core orchestration: turning
// a buyer's swap request into a funded on-chain HTLC and, once its
// cltv_expiry is reached, marking the swap TIMEOUT. Confirmation and claim
// of the HTLC are not tracked.
package swapd

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/htlc"
	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swaperrors"
)

// Coordinator drives a loop-out swap from request to funded HTLC, acting as
// the single writer for each swap's state the same way a mint/transfer
// server funnels every state change for one asset through one coordinating
// call path.
type Coordinator struct {
	cfg *Config
}

// New validates cfg and returns a ready Coordinator.
func New(cfg *Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Coordinator{cfg: cfg}, nil
}

// feeFor computes the server's integer-percentage fee on top of amount.
func (c *Coordinator) feeFor(amount btcutil.Amount) btcutil.Amount {
	return amount * btcutil.Amount(c.cfg.FeePct) / 100
}

// NewLoopOut runs the happy path of §4.6: validate the request, request an
// invoice, derive a server key, build the HTLC, persist every artifact, fund
// and broadcast the on-chain output, in that order. Each step's row is
// committed to the store before the next step begins, so a crash mid-swap
// always leaves a recoverable, inspectable trail rather than silently losing
// work the server already asked its collaborators to do.
func (c *Coordinator) NewLoopOut(ctx context.Context, buyerPubkeyHex string,
	amountSats btcutil.Amount) (*swapdb.FullLoopOut, error) {

	if amountSats < c.cfg.MinAmount || amountSats > c.cfg.MaxAmount {
		return nil, swaperrors.NewParam(
			swaperrors.KindInvalidAmount, "amount", "invalid parameter",
		)
	}

	buyerPubkeyBytes, err := decodeHexPubkey(buyerPubkeyHex)
	if err != nil {
		return nil, swaperrors.NewParam(
			swaperrors.KindInvalidPubkey, "pubkey", "invalid parameter",
		)
	}

	buyerPubkey, err := schnorr.ParsePubKey(buyerPubkeyBytes)
	if err != nil {
		return nil, swaperrors.NewParam(
			swaperrors.KindInvalidPubkey, "pubkey", "invalid parameter",
		)
	}

	fee := c.feeFor(amountSats)
	invoiceAmount := amountSats + fee

	// Step: reserve the LoopOut row before anything externally visible
	// happens, so every subsequent failure has a row to attach itself to.
	loopOut, err := c.cfg.Store.InsertLoopOut(ctx)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	// Step: the invoice is requested before its row is persisted, so the
	// payment_hash committed into the HTLC and the Invoice row always
	// agree (§4.6 step 4's ordering requirement).
	invoiceResult, err := c.cfg.LN.AddInvoice(ctx, invoiceAmount)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindLNFailure, err)
	}

	paymentHash := [32]byte(invoiceResult.PaymentHash)
	preimage := [32]byte(invoiceResult.Preimage)

	invoiceRow, err := c.cfg.Store.InsertInvoice(ctx, loopOut.ID, swapdb.Invoice{
		PaymentRequest:  invoiceResult.Bolt11,
		PaymentHash:     paymentHash,
		PaymentPreimage: &preimage,
		AmountSat:       int64(invoiceAmount),
	})
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	// Step: allocate and derive the server's per-swap key before the
	// HTLC is built, since the HTLC commits to the server's public key.
	keyIndex, serverPubkey, _, err := c.cfg.KeyStore.Derive(ctx)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	height, err := c.cfg.Wallet.Height(ctx)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	cltvExpiry := height + c.cfg.CltvDelta

	swapHTLC, err := htlc.Build(buyerPubkey, serverPubkey, paymentHash, cltvExpiry)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	addr, err := swapHTLC.Address(c.cfg.NetParams)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	scriptRow, err := c.cfg.Store.InsertScript(ctx, loopOut.ID, swapdb.Script{
		Address:             addr.String(),
		ExternalTapkey:      hexEncode(schnorr.SerializePubKey(swapHTLC.OutputKey)),
		InternalTapkey:      hexEncode(schnorr.SerializePubKey(swapHTLC.InternalKey)),
		InternalTapkeyTweak: hexEncode(swapHTLC.Tweak.Serialize()),
		Tree:                [][]byte{swapHTLC.Leaves[0], swapHTLC.Leaves[1]},
		CltvExpiry:          cltvExpiry,
		RemotePubkey:        hexEncode(schnorr.SerializePubKey(buyerPubkey)),
		LocalPubkey:         hexEncode(schnorr.SerializePubKey(serverPubkey)),
		LocalPubkeyIndex:    keyIndex,
	})
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	feeRate, err := c.cfg.FeeOracle.Rate(ctx, feeoracle.Blocks6)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	// The swap's own output is placed first so BuildAndSignSend's
	// vout-0 pinning guarantee applies without the wallet needing any
	// notion of "the" recipient output.
	outputs := []*wire.TxOut{{
		Value:    int64(amountSats),
		PkScript: pkScript,
	}}

	fundingTx, err := c.cfg.Wallet.BuildAndSignSend(ctx, outputs, feeRate, height)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	// The Utxo row is committed before broadcast: a crash between the
	// two leaves a funding transaction the reconciler can discover by
	// txid without having broadcast anything twice.
	utxoRow, err := c.cfg.Store.InsertUtxo(ctx, scriptRow.ID, swapdb.Utxo{
		Txid:      fundingTx.TxHash().String(),
		Vout:      0,
		AmountSat: int64(amountSats),
	})
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	if err := c.cfg.Wallet.Broadcast(ctx, fundingTx); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindBroadcastFailed, err)
	}

	log.Infof("funded loop out %d: txid=%s amount=%d fee=%d cltv_expiry=%d",
		loopOut.ID, fundingTx.TxHash(), amountSats, fee, cltvExpiry)

	return &swapdb.FullLoopOut{
		LoopOut: loopOut,
		Invoice: invoiceRow,
		Script:  scriptRow,
		Utxo:    utxoRow,
	}, nil
}

// GetLoopOut looks up a swap by its invoice payment hash.
func (c *Coordinator) GetLoopOut(ctx context.Context, paymentHash [32]byte) (*swapdb.FullLoopOut, error) {
	full, err := c.cfg.Store.GetFullLoopOut(ctx, paymentHash)
	if err != nil {
		if err == swapdb.ErrNotFound {
			return nil, swaperrors.New(swaperrors.KindNotFound, "loop out not found")
		}
		return nil, swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	return &full, nil
}
