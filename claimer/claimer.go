// Package claimer implements the counterparty side of a loop-out swap:
// verifying a server-returned FullLoopOut reconstructs the promised Taproot
// HTLC, paying the swap's invoice, and building the preimage-revealing
// script-path spend that claims the on-chain output.
package claimer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/htlc"
	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swaperrors"
)

// Claimant drives the counterparty's half of one swap.
type Claimant struct {
	cfg *Config
}

// New validates cfg and returns a ready Claimant.
func New(cfg *Config) (*Claimant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Claimant{cfg: cfg}, nil
}

// reconstructed holds everything Verify derives from a FullLoopOut. Verify
// and Claim each build one through reconstruct from the same inputs, so the
// two never compute the HTLC differently.
type reconstructed struct {
	htlc *htlc.HTLC
}

// Verify reconstructs full's HTLC from its persisted internal-key tweak and
// checks it against every value the server claims: the taproot output key,
// the internal key and the two leaf scripts. A server that lies about any
// of these fails verification before any money moves. The timeout leaf's
// cltv_expiry and server pubkey are covered by the timeout-leaf comparison,
// since the reconstruction builds that leaf from them.
func (c *Claimant) Verify(full *swapdb.FullLoopOut) error {
	r, err := c.reconstruct(full)
	if err != nil {
		return err
	}

	if len(full.Script.Tree) != 2 {
		return swaperrors.New(swaperrors.KindWalletFailure,
			"expected exactly two leaf scripts")
	}
	if !bytes.Equal(full.Script.Tree[htlc.LeafHTLC], r.htlc.Leaves[htlc.LeafHTLC]) ||
		!bytes.Equal(full.Script.Tree[htlc.LeafTimeout], r.htlc.Leaves[htlc.LeafTimeout]) {

		return swaperrors.New(swaperrors.KindWalletFailure,
			"leaf scripts do not match reconstructed HTLC")
	}

	wantExternal := hex.EncodeToString(schnorr.SerializePubKey(r.htlc.OutputKey))
	if wantExternal != full.Script.ExternalTapkey {
		return swaperrors.New(swaperrors.KindWalletFailure,
			"external tapkey does not match reconstructed HTLC")
	}

	wantInternal := hex.EncodeToString(schnorr.SerializePubKey(r.htlc.InternalKey))
	if wantInternal != full.Script.InternalTapkey {
		return swaperrors.New(swaperrors.KindWalletFailure,
			"internal tapkey does not match reconstructed HTLC")
	}

	return nil
}

// reconstruct rebuilds full's HTLC deterministically from its persisted
// tweak, buyer pubkey, server pubkey, payment hash and cltv_expiry via
// htlc.BuildWithTweak (see htlc.go's reproducibility note).
func (c *Claimant) reconstruct(full *swapdb.FullLoopOut) (*reconstructed, error) {
	buyerPubkeyBytes, err := hex.DecodeString(full.Script.RemotePubkey)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	buyerPubkey, err := schnorr.ParsePubKey(buyerPubkeyBytes)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	serverPubkeyBytes, err := hex.DecodeString(full.Script.LocalPubkey)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	serverPubkey, err := schnorr.ParsePubKey(serverPubkeyBytes)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	tweakBytes, err := hex.DecodeString(full.Script.InternalTapkeyTweak)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	tweak, _ := btcec.PrivKeyFromBytes(tweakBytes)

	rebuilt, err := htlc.BuildWithTweak(
		buyerPubkey, serverPubkey, full.Invoice.PaymentHash,
		full.Script.CltvExpiry, tweak,
	)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	return &reconstructed{htlc: rebuilt}, nil
}

// Claim pays full's invoice, then builds, signs and broadcasts the
// preimage-revealing script-path spend of its funding UTXO to destAddr.
// feeSat is the estimated on-chain fee to subtract from the claimed amount;
// this package has no fee oracle of its own, per §4.7's "broadcast via any
// Bitcoin backend" — the caller picks the backend and the fee.
func (c *Claimant) Claim(ctx context.Context, full *swapdb.FullLoopOut,
	destAddr btcutil.Address, feeSat int64) (*wire.MsgTx, error) {

	if err := c.Verify(full); err != nil {
		return nil, err
	}

	r, err := c.reconstruct(full)
	if err != nil {
		return nil, err
	}

	preimage, err := c.cfg.LN.PayInvoiceSync(
		ctx, full.Invoice.PaymentRequest,
		btcutil.Amount(c.cfg.PaymentFeeLimitSat),
	)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindLNFailure, err)
	}

	gotHash := sha256.Sum256(preimage[:])
	if gotHash != full.Invoice.PaymentHash {
		return nil, swaperrors.New(swaperrors.KindLNFailure,
			"revealed preimage does not hash to the swap's payment hash")
	}

	claimAmount := full.Utxo.AmountSat - feeSat
	if claimAmount <= 0 {
		return nil, swaperrors.New(swaperrors.KindWalletFailure,
			"fee exceeds funding amount")
	}

	destPkScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	txid, err := chainhash.NewHashFromStr(full.Utxo.Txid)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	height, err := c.cfg.Bridge.CurrentHeight(ctx)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	// The funding output's PkScript is re-derived from the reconstructed
	// HTLC rather than re-parsing the server-supplied address string, so
	// a malicious server can't substitute a different prevout script for
	// the one the signature below commits to.
	fundingAddr, err := r.htlc.Address(c.cfg.NetParams)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	fundingPkScript, err := txscript.PayToAddrScript(fundingAddr)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}
	prevOut := &wire.TxOut{
		Value:    full.Utxo.AmountSat,
		PkScript: fundingPkScript,
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = height
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: *txid, Index: full.Utxo.Vout},
		Sequence:         0,
	})
	tx.AddTxOut(&wire.TxOut{Value: claimAmount, PkScript: destPkScript})

	htlcLeafScript := r.htlc.Leaves[htlc.LeafHTLC]

	sig, err := c.cfg.Signer.SignClaim(ctx, tx, prevOut, htlcLeafScript)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	controlBlock, err := r.htlc.ControlBlock(htlc.LeafHTLC)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindWalletFailure, err)
	}

	tx.TxIn[0].Witness = wire.TxWitness{
		preimage[:],
		sig.Serialize(),
		htlcLeafScript,
		controlBlock,
	}

	if err := c.cfg.Bridge.PublishTransaction(ctx, tx, ""); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindBroadcastFailed, err)
	}

	log.Infof("claimed loop out utxo %s:%d, txid=%s amount=%d",
		full.Utxo.Txid, full.Utxo.Vout, tx.TxHash(), claimAmount)

	return tx, nil
}
