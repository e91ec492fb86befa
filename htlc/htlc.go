// Package htlc builds the Taproot hash-timelocked contract used to fund a
// loop-out swap: a two-leaf script tree spendable either by the buyer
// revealing the payment preimage, or by the server after a CLTV timeout.
package htlc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// LeafHTLC is the index of the hash-branch leaf in the tap tree.
const LeafHTLC = 0

// LeafTimeout is the index of the timeout-branch leaf in the tap tree.
const LeafTimeout = 1

// numsPointHex is the BIP-0341 well-known NUMS point. Its discrete log is
// unknown to anyone, so an internal key derived only from it (plus a
// per-swap blinding tweak) cannot be spent via the key path.
const numsPointHex = "0250929b74c1a04954b78b4b6035e97a5e0" +
	"78a5a0f28ec96d547bfee9ace803ac0"

// NUMSPoint is the compressed well-known unspendable point used as the base
// of every HTLC's internal key.
var NUMSPoint *btcec.PublicKey

func init() {
	pointBytes, err := hex.DecodeString(numsPointHex)
	if err != nil {
		panic(fmt.Sprintf("invalid NUMS point constant: %v", err))
	}

	NUMSPoint, err = btcec.ParsePubKey(pointBytes)
	if err != nil {
		panic(fmt.Sprintf("failed to parse NUMS point: %v", err))
	}
}

// HTLC holds every artifact produced by Build: the taproot output key, the
// internal key and its blinding tweak, the two leaf scripts, and enough
// information to produce a control block for either leaf.
type HTLC struct {
	// OutputKey is the taproot output key, O = taproot_tweak(I, M).
	OutputKey *btcec.PublicKey

	// InternalKey is I = NUMSPoint + tweak*G.
	InternalKey *btcec.PublicKey

	// Tweak is the scalar r such that InternalKey = NUMSPoint + r*G. It
	// must be persisted alongside the Script row; without it the internal
	// key cannot be proven unspendable nor can a dispute-tooling path
	// reconstruct the full taproot spend info.
	Tweak *btcec.PrivateKey

	// Leaves holds the two leaf scripts in deterministic order: the HTLC
	// (hash branch) leaf first, the timeout branch second.
	Leaves [2][]byte

	leafHashes [2][32]byte
	merkleRoot [32]byte
}

// HTLCLeafScript returns the hash-branch leaf script:
//
//	OP_PUSH32 <claimant> OP_CHECKSIGVERIFY
//	OP_SIZE OP_PUSH1 0x20 OP_EQUALVERIFY
//	OP_SHA256 OP_PUSH32 <paymentHash> OP_EQUAL
//
// The OP_SIZE check on the preimage guards against witness malleability by
// requiring an exact 32-byte preimage.
func HTLCLeafScript(claimant *btcec.PublicKey, paymentHash [32]byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddData(schnorr.SerializePubKey(claimant))
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(paymentHash[:])
	builder.AddOp(txscript.OP_EQUAL)

	return builder.Script()
}

// TimeoutLeafScript returns the timeout-branch leaf script:
//
//	<cltvExpiry> OP_CHECKLOCKTIMEVERIFY OP_DROP OP_PUSH32 <server> OP_CHECKSIG
func TimeoutLeafScript(server *btcec.PublicKey, cltvExpiry uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(cltvExpiry))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(schnorr.SerializePubKey(server))
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// Build constructs the HTLC for a given buyer/server pair, payment hash and
// absolute CLTV expiry height. It is a pure function of its inputs and of
// the internally sampled blinding tweak; calling BuildWithTweak with a fixed
// tweak makes it fully reproducible.
func Build(buyer, server *btcec.PublicKey, paymentHash [32]byte,
	cltvExpiry uint32) (*HTLC, error) {

	tweak, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to sample htlc tweak: %w", err)
	}

	return BuildWithTweak(buyer, server, paymentHash, cltvExpiry, tweak)
}

// BuildWithTweak is Build with an explicit blinding tweak, used by tests
// that need bit-for-bit reproducibility and by dispute tooling reconstructing
// a swap's spend info from a persisted Script row.
func BuildWithTweak(buyer, server *btcec.PublicKey, paymentHash [32]byte,
	cltvExpiry uint32, tweak *btcec.PrivateKey) (*HTLC, error) {

	htlcLeafScript, err := HTLCLeafScript(buyer, paymentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to build htlc leaf: %w", err)
	}

	timeoutLeafScript, err := TimeoutLeafScript(server, cltvExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeout leaf: %w", err)
	}

	htlcLeaf := txscript.NewBaseTapLeaf(htlcLeafScript)
	timeoutLeaf := txscript.NewBaseTapLeaf(timeoutLeafScript)

	// Both leaves sit at depth 1, HTLC leaf first, so both control blocks
	// are minimum length and leaf order is deterministic.
	branch := txscript.NewTapBranch(htlcLeaf, timeoutLeaf)
	merkleRoot := branch.TapHash()

	internalKey := blindedInternalKey(tweak)
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, merkleRoot[:])

	return &HTLC{
		OutputKey:   outputKey,
		InternalKey: internalKey,
		Tweak:       tweak,
		Leaves:      [2][]byte{htlcLeafScript, timeoutLeafScript},
		leafHashes: [2][32]byte{
			htlcLeaf.TapHash(),
			timeoutLeaf.TapHash(),
		},
		merkleRoot: merkleRoot,
	}, nil
}

// blindedInternalKey returns NUMSPoint + tweak*G, an internal key nobody can
// spend via the key path, unique per-swap so tapkeys can't be correlated
// across swaps without knowledge of the persisted tweak.
func blindedInternalKey(tweak *btcec.PrivateKey) *btcec.PublicKey {
	var tweakPoint, sum btcec.JacobianPoint
	tweak.PubKey().AsJacobian(&tweakPoint)

	var numsJacobian btcec.JacobianPoint
	NUMSPoint.AsJacobian(&numsJacobian)

	btcec.AddNonConst(&numsJacobian, &tweakPoint, &sum)
	sum.ToAffine()

	return btcec.NewPublicKey(&sum.X, &sum.Y)
}

// ControlBlock returns the control block that proves leaf's membership in
// the tap tree, for leaf indices LeafHTLC or LeafTimeout.
func (h *HTLC) ControlBlock(leaf int) ([]byte, error) {
	if leaf != LeafHTLC && leaf != LeafTimeout {
		panic("htlc: invalid leaf index")
	}

	other := LeafTimeout
	if leaf == LeafTimeout {
		other = LeafHTLC
	}

	cb := &txscript.ControlBlock{
		LeafVersion:    txscript.BaseLeafVersion,
		InternalKey:    h.InternalKey,
		InclusionProof: h.leafHashes[other][:],
	}

	if h.OutputKey.SerializeCompressed()[0] ==
		btcec.PubKeyFormatCompressedOdd {

		cb.OutputKeyYIsOdd = true
	}

	return cb.ToBytes()
}

// MerkleRoot returns the tap-branch root hash M used to tweak the internal
// key into the output key.
func (h *HTLC) MerkleRoot() [32]byte {
	return h.merkleRoot
}

// Address returns the P2TR address for this HTLC's output key on net.
func (h *HTLC) Address(net *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(h.OutputKey), net,
	)
}
