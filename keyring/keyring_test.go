package keyring

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testSeed(offset byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i) + offset
	}
	return seed
}

// TestDeriveSequential checks that successive Derive calls hand out
// sequential indexes and distinct keys.
func TestDeriveSequential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := &Config{NetParams: &chaincfg.RegressionNetParams, Seed: testSeed(0)}

	ks, err := New(ctx, cfg)
	require.NoError(t, err)

	idx1, pub1, priv1, err := ks.Derive(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx1)
	require.True(t, pub1.IsEqual(priv1.PubKey()))

	idx2, pub2, _, err := ks.Derive(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx2)

	require.NotEqual(t,
		pub1.SerializeCompressed(), pub2.SerializeCompressed(),
	)
}

// TestDeriveIndexReproducible checks that DeriveIndex reconstructs the exact
// same key pair for a previously-allocated index.
func TestDeriveIndexReproducible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := &Config{NetParams: &chaincfg.RegressionNetParams, Seed: testSeed(1)}

	ks, err := New(ctx, cfg)
	require.NoError(t, err)

	idx, pub, priv, err := ks.Derive(ctx)
	require.NoError(t, err)

	pub2, priv2, err := ks.DeriveIndex(idx)
	require.NoError(t, err)

	require.True(t, pub.IsEqual(pub2))
	require.Equal(t, priv.Serialize(), priv2.Serialize())
}

// TestDeterministicAcrossInstances checks that two KeyStores built from the
// same seed derive identical keys at the same index.
func TestDeterministicAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seed := testSeed(2)

	ks1, err := New(ctx, &Config{NetParams: &chaincfg.RegressionNetParams, Seed: seed})
	require.NoError(t, err)
	ks2, err := New(ctx, &Config{NetParams: &chaincfg.RegressionNetParams, Seed: seed})
	require.NoError(t, err)

	_, pub1, _, err := ks1.Derive(ctx)
	require.NoError(t, err)
	_, pub2, _, err := ks2.Derive(ctx)
	require.NoError(t, err)

	require.True(t, pub1.IsEqual(pub2))
}

// TestIndexPersistence checks that a KeyStore resumes from the index
// committed by a prior instance sharing the same IndexStateStore.
func TestIndexPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryIndexStateStore()
	cfg := &Config{
		NetParams:  &chaincfg.RegressionNetParams,
		Seed:       testSeed(3),
		IndexStore: store,
	}

	ks1, err := New(ctx, cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, _, err := ks1.Derive(ctx)
		require.NoError(t, err)
	}

	current, err := store.CurrentIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(5), current)

	ks2, err := New(ctx, cfg)
	require.NoError(t, err)

	idx, _, _, err := ks2.Derive(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(5), idx)
}

func TestMemoryIndexStateStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryIndexStateStore()

	idx, err := store.CurrentIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx)

	require.NoError(t, store.CommitIndex(ctx, 42))

	idx, err = store.CurrentIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(42), idx)
}

func TestFileIndexStateStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tmpFile := t.TempDir() + "/keystate.json"

	store, err := NewFileIndexStateStore(tmpFile)
	require.NoError(t, err)

	require.NoError(t, store.CommitIndex(ctx, 100))

	store2, err := NewFileIndexStateStore(tmpFile)
	require.NoError(t, err)

	idx, err := store2.CurrentIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(100), idx)
}
