package main

import (
	"context"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// localKeySigner implements claimer.Signer by holding the buyer's raw
// private key directly, the same way a standalone wallet CLI signs its own
// spends: this process IS the key's owner, so there is no remote signer to
// delegate to.
type localKeySigner struct {
	privKey *btcec.PrivateKey
}

// SignClaim produces the BIP-341 script-path signature over tx's single
// input, committing to leafScript as the tapscript being spent. The sighash
// machinery mirrors htlc.Build's own use of package txscript, so the
// signature this produces is computed the same way the rest of the module
// already reasons about these scripts.
func (s *localKeySigner) SignClaim(_ context.Context, tx *wire.MsgTx,
	prevOut *wire.TxOut, leafScript []byte) (*schnorr.Signature, error) {

	fetcher := txscript.NewCannedPrevOutputFetcher(
		prevOut.PkScript, prevOut.Value,
	)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	tapLeaf := txscript.NewBaseTapLeaf(leafScript)

	rawSig, err := txscript.RawTxInTapscriptSignature(
		tx, sigHashes, 0, prevOut.Value, prevOut.PkScript, tapLeaf,
		txscript.SigHashDefault, s.privKey,
	)
	if err != nil {
		return nil, err
	}

	return schnorr.ParseSignature(rawSig)
}

// loadPrivKeyHex parses a hex-encoded 32-byte secp256k1 scalar given either
// directly as the flag value or, when the value looks like a path, read from
// that file (so a key need not be passed on a shared command line).
func loadPrivKeyHex(flagVal string) (*btcec.PrivateKey, error) {
	raw := strings.TrimSpace(flagVal)

	if looksLikePath(raw) {
		contents, err := os.ReadFile(raw)
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(string(contents))
	}

	keyBytes, err := hexDecode(raw)
	if err != nil {
		return nil, err
	}

	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	return priv, nil
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "~/")
}
