package swapd

import "github.com/lightninglabs/loopout/swapdb"

// TaprootScriptInfo is the wire representation of a swap's HTLC output.
type TaprootScriptInfo struct {
	ExternalKey      string   `json:"external_key"`
	InternalKey      string   `json:"internal_key"`
	InternalKeyTweak string   `json:"internal_key_tweak"`
	Tree             []string `json:"tree"`
}

// LoopInfo is the wire representation of a swap's fee and timing terms.
type LoopInfo struct {
	Fee        int64  `json:"fee"`
	LoopHash   string `json:"loop_hash"`
	CltvExpiry uint32 `json:"cltv_expiry"`
}

// LoopOutResponse is the JSON body returned by POST /loop/out and
// GET /loop/out/{payment_hash}.
type LoopOutResponse struct {
	Invoice           string            `json:"invoice"`
	Address           string            `json:"address"`
	LooperPubkey      string            `json:"looper_pubkey"`
	Txid              string            `json:"txid"`
	Vout              uint32            `json:"vout"`
	TaprootScriptInfo TaprootScriptInfo `json:"taproot_script_info"`
	LoopInfo          LoopInfo          `json:"loop_info"`
}

// ToResponse converts a persisted FullLoopOut into the wire response shape.
// The fee is the difference between the invoice amount (amount + fee) and
// the funding UTXO amount, so no separate fee bookkeeping is needed.
func ToResponse(full *swapdb.FullLoopOut) LoopOutResponse {
	fee := full.Invoice.AmountSat - full.Utxo.AmountSat

	treeHex := make([]string, len(full.Script.Tree))
	for i, leaf := range full.Script.Tree {
		treeHex[i] = hexEncode(leaf)
	}

	return LoopOutResponse{
		Invoice:      full.Invoice.PaymentRequest,
		Address:      full.Script.Address,
		LooperPubkey: full.Script.LocalPubkey,
		Txid:         full.Utxo.Txid,
		Vout:         full.Utxo.Vout,
		TaprootScriptInfo: TaprootScriptInfo{
			ExternalKey:      full.Script.ExternalTapkey,
			InternalKey:      full.Script.InternalTapkey,
			InternalKeyTweak: full.Script.InternalTapkeyTweak,
			Tree:             treeHex,
		},
		LoopInfo: LoopInfo{
			Fee:        fee,
			LoopHash:   hexEncode(full.Invoice.PaymentHash[:]),
			CltvExpiry: full.Script.CltvExpiry,
		},
	}
}
