package onchain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// lockTTL bounds how long a coin-selected UTXO is held before the janitor
// frees it back to the selectable pool, in case the transaction that
// reserved it is never broadcast.
const lockTTL = 10 * time.Minute

// fundOutputs selects wallet UTXOs to cover outputs plus fees at feeRate and
// returns an unsigned PSBT with a change output appended if the leftover
// exceeds the dust limit. Selected inputs are locked for lockTTL.
func (w *Wallet) fundOutputs(outputs []*wire.TxOut,
	feeRate chainfee.SatPerKWeight) (*psbt.Packet, int32, error) {

	var outputAmount btcutil.Amount
	for _, txOut := range outputs {
		outputAmount += btcutil.Amount(txOut.Value)
	}

	unspent, err := w.wallet.ListUnspent(int32(w.cfg.MinConfs), 9999999, "")
	if err != nil {
		return nil, -1, fmt.Errorf("failed to list unspent: %w", err)
	}

	// Base estimate: the outputs plus fixed transaction overhead. Input
	// weight is added below once the actual input count is known; no
	// change output is counted.
	estimatedVSize := int64(len(outputs)*34 + 10)
	feeRateSatPerVByte := int64(feeRate) * 4 / 1000

	var (
		selectedIns []*wire.TxIn
		totalInput  btcutil.Amount
	)

	for _, utxo := range unspent {
		txHash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			continue
		}

		outpoint := wire.OutPoint{Hash: *txHash, Index: utxo.Vout}
		if w.utxoLocks.IsLocked(outpoint) {
			continue
		}

		if err := w.utxoLocks.LockUTXO(outpoint, lockTTL); err != nil {
			continue
		}

		selectedIns = append(selectedIns, wire.NewTxIn(&outpoint, nil, nil))
		totalInput += btcutil.Amount(utxo.Amount)

		estimatedVSize += 180
		estimatedFee := btcutil.Amount(estimatedVSize * feeRateSatPerVByte)

		if totalInput >= outputAmount+estimatedFee {
			break
		}
	}

	estimatedFee := btcutil.Amount(estimatedVSize * feeRateSatPerVByte)
	if totalInput < outputAmount+estimatedFee {
		for _, in := range selectedIns {
			_ = w.utxoLocks.UnlockUTXO(in.PreviousOutPoint)
		}
		return nil, -1, ErrInsufficientFunds
	}

	unsignedTx := &wire.MsgTx{
		Version: wire.TxVersion,
		TxIn:    selectedIns,
		TxOut:   append([]*wire.TxOut{}, outputs...),
	}

	packet, err := psbt.NewFromUnsignedTx(unsignedTx)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to build psbt: %w", err)
	}

	for i, in := range selectedIns {
		_, prevOut, _, err := w.wallet.FetchOutpointInfo(&in.PreviousOutPoint)
		if err == nil && prevOut != nil {
			packet.Inputs[i].WitnessUtxo = prevOut
		}
	}

	changeIdx := int32(-1)
	change := totalInput - outputAmount - estimatedFee
	if change > btcutil.Amount(546) {
		changeAddr, err := w.wallet.NewChangeAddress(
			waddrmgr.DefaultAccountNum, waddrmgr.KeyScopeBIP0084,
		)
		if err != nil {
			return nil, -1, fmt.Errorf("failed to get change address: %w", err)
		}

		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, -1, fmt.Errorf("failed to create change script: %w", err)
		}

		packet.UnsignedTx.TxOut = append(packet.UnsignedTx.TxOut, &wire.TxOut{
			Value:    int64(change),
			PkScript: changeScript,
		})
		packet.Outputs = append(packet.Outputs, psbt.POutput{})
		changeIdx = int32(len(packet.UnsignedTx.TxOut) - 1)
	}

	return packet, changeIdx, nil
}

// signAll signs every input the wallet holds the key for, leaving
// counterparty-signed HTLC inputs (if any) untouched for the caller to
// complete with a witness assembled from Claimer.
func (w *Wallet) signAll(packet *psbt.Packet) (*psbt.Packet, error) {
	for i := range packet.Inputs {
		if i >= len(packet.UnsignedTx.TxIn) {
			continue
		}

		if err := w.signInput(packet, i); err != nil {
			continue
		}
	}

	return packet, nil
}

func (w *Wallet) signInput(packet *psbt.Packet, inputIdx int) error {
	pInput := packet.Inputs[inputIdx]
	if pInput.WitnessUtxo == nil {
		return fmt.Errorf("missing witness UTXO for input %d", inputIdx)
	}

	prevOut := pInput.WitnessUtxo

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(prevOut.PkScript, w.cfg.NetParams)
	if err != nil || len(addrs) == 0 {
		return fmt.Errorf("failed to extract address: %w", err)
	}

	privKey, err := w.wallet.PrivKeyForAddress(addrs[0])
	if err != nil {
		return fmt.Errorf("don't have private key for address: %w", err)
	}

	if !txscript.IsPayToWitnessPubKeyHash(prevOut.PkScript) {
		return fmt.Errorf("unsupported script type")
	}

	return w.signP2WPKH(packet, inputIdx, prevOut, privKey)
}

func (w *Wallet) signP2WPKH(packet *psbt.Packet, inputIdx int,
	prevOut *wire.TxOut, privKey *btcec.PrivateKey) error {

	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, nil)

	sigHash, err := txscript.CalcWitnessSigHash(
		prevOut.PkScript, sigHashes, txscript.SigHashAll,
		packet.UnsignedTx, inputIdx, prevOut.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to calculate sighash: %w", err)
	}

	sig := ecdsa.Sign(privKey, sigHash)
	sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))
	pubKeyBytes := privKey.PubKey().SerializeCompressed()

	packet.UnsignedTx.TxIn[inputIdx].Witness = wire.TxWitness{sigBytes, pubKeyBytes}
	return nil
}
