package htlc

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (*btcec.PublicKey, *btcec.PublicKey) {
	t.Helper()

	buyerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	serverPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return buyerPriv.PubKey(), serverPriv.PubKey()
}

// TestBuildOutputKey checks property 1: the output key produced by Build is
// the taproot tweak of the internal key by the merkle root of the two
// leaves.
func TestBuildOutputKey(t *testing.T) {
	buyer, server := testKeys(t)

	var paymentHash [32]byte
	copy(paymentHash[:], sha256.New().Sum(nil))

	h, err := Build(buyer, server, paymentHash, 600)
	require.NoError(t, err)

	root := h.MerkleRoot()
	expected := txscript.ComputeTaprootOutputKey(h.InternalKey, root[:])

	require.True(t, h.OutputKey.IsEqual(expected))
}

// TestBuildWithTweakDeterministic checks property 8: Build is a pure
// function of its inputs and the tweak; fixing the tweak makes it fully
// reproducible.
func TestBuildWithTweakDeterministic(t *testing.T) {
	buyer, server := testKeys(t)

	var paymentHash [32]byte
	copy(paymentHash[:], sha256.New().Sum(nil))

	tweak, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	h1, err := BuildWithTweak(buyer, server, paymentHash, 600, tweak)
	require.NoError(t, err)

	h2, err := BuildWithTweak(buyer, server, paymentHash, 600, tweak)
	require.NoError(t, err)

	require.True(t, h1.OutputKey.IsEqual(h2.OutputKey))
	require.Equal(t, h1.Leaves, h2.Leaves)
	require.Equal(t, h1.MerkleRoot(), h2.MerkleRoot())
}

// TestLeafOrderAndCount checks that exactly two leaves exist, HTLC leaf
// first, as required by the Script invariant.
func TestLeafOrderAndCount(t *testing.T) {
	buyer, server := testKeys(t)

	var paymentHash [32]byte
	copy(paymentHash[:], []byte("01234567890123456789012345678901"))

	h, err := Build(buyer, server, paymentHash, 700)
	require.NoError(t, err)

	require.Len(t, h.Leaves, 2)

	wantHTLC, err := HTLCLeafScript(buyer, paymentHash)
	require.NoError(t, err)
	require.Equal(t, wantHTLC, h.Leaves[LeafHTLC])

	wantTimeout, err := TimeoutLeafScript(server, 700)
	require.NoError(t, err)
	require.Equal(t, wantTimeout, h.Leaves[LeafTimeout])
}

// TestControlBlockVerifies exercises the control block for both leaves and
// checks that the root hash it commits to tweaks its internal key into the
// HTLC's output key.
func TestControlBlockVerifies(t *testing.T) {
	buyer, server := testKeys(t)

	var paymentHash [32]byte
	copy(paymentHash[:], []byte("preimage-hash-32-bytes-long!!!!!"))

	h, err := Build(buyer, server, paymentHash, 900)
	require.NoError(t, err)

	for _, leaf := range []int{LeafHTLC, LeafTimeout} {
		cbBytes, err := h.ControlBlock(leaf)
		require.NoError(t, err)

		cb, err := txscript.ParseControlBlock(cbBytes)
		require.NoError(t, err)

		root := cb.RootHash(h.Leaves[leaf])
		outputKey := txscript.ComputeTaprootOutputKey(cb.InternalKey, root)
		require.True(t, outputKey.IsEqual(h.OutputKey))
	}
}

func TestAddressIsRegtestP2TR(t *testing.T) {
	buyer, server := testKeys(t)

	var paymentHash [32]byte
	copy(paymentHash[:], []byte("preimage-hash-32-bytes-long!!!!!"))

	h, err := Build(buyer, server, paymentHash, 600)
	require.NoError(t, err)

	addr, err := h.Address(&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NotEmpty(t, addr.String())
	require.True(t, strings.HasPrefix(addr.String(), "bcrt1p"))
}
