package main

import (
	"encoding/hex"
	"fmt"

	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swapdb"
)

// toFullLoopOut reconstructs the swapdb.FullLoopOut shape claimer.Claimant
// expects from a LoopOutResponse plus two fields the wire response never
// carries: the buyer's own pubkey (this client already knows it, having
// generated it) and the funding UTXO's actual value, looked up on-chain
// rather than trusted from the response, since Claim's claimAmount math
// depends on it and a lying server could otherwise under- or over-state it.
func toFullLoopOut(resp *swapd.LoopOutResponse, buyerPubkeyHex string,
	utxoAmountSat int64) (*swapdb.FullLoopOut, error) {

	paymentHashBytes, err := hex.DecodeString(resp.LoopInfo.LoopHash)
	if err != nil || len(paymentHashBytes) != 32 {
		return nil, fmt.Errorf("server returned malformed loop_hash")
	}
	var paymentHash [32]byte
	copy(paymentHash[:], paymentHashBytes)

	tree := make([][]byte, len(resp.TaprootScriptInfo.Tree))
	for i, leafHex := range resp.TaprootScriptInfo.Tree {
		leaf, err := hex.DecodeString(leafHex)
		if err != nil {
			return nil, fmt.Errorf("server returned malformed tree leaf %d: %w", i, err)
		}
		tree[i] = leaf
	}

	return &swapdb.FullLoopOut{
		Invoice: swapdb.Invoice{
			PaymentRequest: resp.Invoice,
			PaymentHash:    paymentHash,
			AmountSat:      utxoAmountSat + resp.LoopInfo.Fee,
		},
		Script: swapdb.Script{
			Address:             resp.Address,
			ExternalTapkey:      resp.TaprootScriptInfo.ExternalKey,
			InternalTapkey:      resp.TaprootScriptInfo.InternalKey,
			InternalTapkeyTweak: resp.TaprootScriptInfo.InternalKeyTweak,
			Tree:                tree,
			CltvExpiry:          resp.LoopInfo.CltvExpiry,
			RemotePubkey:        buyerPubkeyHex,
			LocalPubkey:         resp.LooperPubkey,
		},
		Utxo: swapdb.Utxo{
			Txid:      resp.Txid,
			Vout:      resp.Vout,
			AmountSat: utxoAmountSat,
		},
	}, nil
}
