package onchain

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/mempool"
	"github.com/stretchr/testify/require"
)

// TestUTXOLockManager tests the UTXO lock manager.
func TestUTXOLockManager(t *testing.T) {
	t.Parallel()

	lockMgr := newUTXOLockManager()
	require.NotNil(t, lockMgr)

	outpoint := wire.OutPoint{
		Hash:  chainhash.Hash{0x01},
		Index: 0,
	}

	require.False(t, lockMgr.IsLocked(outpoint))

	err := lockMgr.LockUTXO(outpoint, 1*time.Minute)
	require.NoError(t, err)
	require.True(t, lockMgr.IsLocked(outpoint))

	err = lockMgr.LockUTXO(outpoint, 1*time.Minute)
	require.ErrorIs(t, err, ErrUTXOLocked)

	err = lockMgr.UnlockUTXO(outpoint)
	require.NoError(t, err)
	require.False(t, lockMgr.IsLocked(outpoint))

	err = lockMgr.UnlockUTXO(outpoint)
	require.ErrorIs(t, err, ErrUTXONotLocked)
}

// TestUTXOLockManagerExpiry tests UTXO lock expiration.
func TestUTXOLockManagerExpiry(t *testing.T) {
	t.Parallel()

	lockMgr := newUTXOLockManager()

	outpoint := wire.OutPoint{
		Hash:  chainhash.Hash{0x02},
		Index: 0,
	}

	err := lockMgr.LockUTXO(outpoint, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, lockMgr.IsLocked(outpoint))

	time.Sleep(200 * time.Millisecond)
	require.False(t, lockMgr.IsLocked(outpoint))

	err = lockMgr.LockUTXO(outpoint, 1*time.Minute)
	require.NoError(t, err)
	require.True(t, lockMgr.IsLocked(outpoint))
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{
			name: "valid config",
			cfg: &Config{
				NetParams:   &chaincfg.TestNet3Params,
				ChainBridge: &mempool.ChainBridge{},
				PrivatePass: []byte("password"),
				PublicPass:  []byte("public"),
			},
			wantErr: nil,
		},
		{
			name: "missing net params",
			cfg: &Config{
				ChainBridge: &mempool.ChainBridge{},
				PrivatePass: []byte("password"),
			},
			wantErr: ErrInvalidNetParams,
		},
		{
			name: "missing chain bridge",
			cfg: &Config{
				NetParams:   &chaincfg.TestNet3Params,
				PrivatePass: []byte("password"),
			},
			wantErr: ErrChainBridgeRequired,
		},
		{
			name: "missing private pass",
			cfg: &Config{
				NetParams:   &chaincfg.TestNet3Params,
				ChainBridge: &mempool.ChainBridge{},
			},
			wantErr: ErrPrivatePassRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()

	w := &Wallet{cfg: &Config{NetParams: &chaincfg.RegressionNetParams}}

	_, err := w.ValidateAddress("not-an-address")
	require.Error(t, err)

	_, err = w.ValidateAddress("bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq")
	require.Error(t, err, "mainnet address should be rejected on regtest")
}
