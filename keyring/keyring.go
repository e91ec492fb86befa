// Package keyring derives the per-swap Bitcoin keys a loop-out server commits
// to in each HTLC's timeout leaf, from a single BIP32 seed.
package keyring

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// DefaultPurpose is the BIP43 purpose field used for the flat, single-branch
// derivation path m/purpose'/index'. There is no coin type or account level:
// every swap key hangs directly off purpose' at its own hardened index, since
// keys are never reused outside this server and never need to be enumerated
// by an external wallet.
const DefaultPurpose = 734 // Chosen arbitrarily.

// Config holds the configuration for the KeyStore.
type Config struct {
	// NetParams is the network parameters.
	NetParams *chaincfg.Params

	// Seed is the wallet seed for key derivation, used if MasterXprv is
	// empty.
	Seed []byte

	// MasterXprv, if set, is a serialized BIP32 extended private key
	// parsed directly as the master key instead of deriving one from
	// Seed. Production callers always set this from the LOOPER_XPRV
	// environment variable; Seed remains for tests and for any caller
	// that only has raw entropy.
	MasterXprv string

	// Purpose is the BIP43 purpose field. Default: DefaultPurpose.
	Purpose uint32

	// IndexStore persists the next unused derivation index across
	// restarts. If nil, an in-memory store is used (tests only; a
	// production server always seeds this from the swap database's
	// high-water mark at startup).
	IndexStore IndexStateStore
}

// IndexStateStore persists the next unused derivation index.
type IndexStateStore interface {
	// CurrentIndex returns the next unused index.
	CurrentIndex(ctx context.Context) (uint32, error)

	// CommitIndex persists index as the next unused index.
	CommitIndex(ctx context.Context, index uint32) error
}

// KeyStore derives per-swap signing keys via flat BIP32 HD derivation at
// m/purpose'/index', handing out each index at most once.
type KeyStore struct {
	cfg *Config

	masterKey *hdkeychain.ExtendedKey

	mu        sync.Mutex
	nextIndex uint32
}

// New creates a new KeyStore, seeding its index allocator from cfg.IndexStore
// (or starting at zero if cfg.IndexStore is nil).
func New(ctx context.Context, cfg *Config) (*KeyStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if len(cfg.Seed) == 0 && cfg.MasterXprv == "" {
		return nil, fmt.Errorf("seed or master xprv is required")
	}

	if cfg.NetParams == nil {
		return nil, fmt.Errorf("network params required")
	}

	if cfg.Purpose == 0 {
		cfg.Purpose = DefaultPurpose
	}

	var (
		masterKey *hdkeychain.ExtendedKey
		err       error
	)
	if cfg.MasterXprv != "" {
		masterKey, err = hdkeychain.NewKeyFromString(cfg.MasterXprv)
		if err != nil {
			return nil, fmt.Errorf("failed to parse LOOPER_XPRV: %w", err)
		}
		if !masterKey.IsPrivate() {
			return nil, fmt.Errorf("LOOPER_XPRV must be an extended private key")
		}
	} else {
		masterKey, err = hdkeychain.NewMaster(cfg.Seed, cfg.NetParams)
		if err != nil {
			return nil, fmt.Errorf("failed to create master key: %w", err)
		}
	}

	store := cfg.IndexStore
	if store == nil {
		store = NewMemoryIndexStateStore()
		cfg.IndexStore = store
	}

	next, err := store.CurrentIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load next key index: %w", err)
	}

	return &KeyStore{
		cfg:       cfg,
		masterKey: masterKey,
		nextIndex: next,
	}, nil
}

// NextIndex allocates and persists the next unused derivation index without
// deriving a key for it. Callers that need both should use Derive, which
// allocates and derives atomically; NextIndex exists for callers (such as
// the swap store) that must reserve an index before the HTLC script that
// will use it has been fully constructed.
func (ks *KeyStore) NextIndex(ctx context.Context) (uint32, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	index := ks.nextIndex
	if err := ks.cfg.IndexStore.CommitIndex(ctx, index+1); err != nil {
		return 0, fmt.Errorf("failed to commit key index: %w", err)
	}
	ks.nextIndex = index + 1

	return index, nil
}

// Derive allocates the next unused index and returns the public and private
// keys at m/purpose'/index'. index is persisted before Derive returns, so a
// crash immediately after never hands out the same index twice.
func (ks *KeyStore) Derive(ctx context.Context) (uint32, *btcec.PublicKey, *btcec.PrivateKey, error) {
	index, err := ks.NextIndex(ctx)
	if err != nil {
		return 0, nil, nil, err
	}

	pub, priv, err := ks.DeriveIndex(index)
	if err != nil {
		return 0, nil, nil, err
	}

	return index, pub, priv, nil
}

// DeriveIndex re-derives the key pair at a previously-allocated index. It is
// used to reconstruct a swap's server key from its persisted index rather
// than keeping private key material in the swap database.
func (ks *KeyStore) DeriveIndex(index uint32) (*btcec.PublicKey, *btcec.PrivateKey, error) {
	key, err := ks.masterKey.Derive(hdkeychain.HardenedKeyStart + ks.cfg.Purpose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive purpose: %w", err)
	}

	key, err = key.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive index: %w", err)
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get private key: %w", err)
	}

	return privKey.PubKey(), privKey, nil
}
