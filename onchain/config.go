package onchain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/lightninglabs/loopout/mempool"
)

// Config holds the configuration for the btcwallet-based Wallet.
type Config struct {
	// NetParams is the network parameters (mainnet, testnet, etc.)
	NetParams *chaincfg.Params

	// DBPath is the path to the wallet database.
	DBPath string

	// PrivatePass is the private passphrase for the wallet.
	PrivatePass []byte

	// PublicPass is the public passphrase for the wallet.
	PublicPass []byte

	// Seed is the wallet seed for key derivation.
	// If provided, will be used to initialize a new wallet.
	Seed []byte

	// Birthday is the wallet birthday (earliest time to scan for transactions).
	Birthday time.Time

	// ChainBridge is the chain backend for broadcast, height and fee
	// estimation.
	ChainBridge *mempool.ChainBridge

	// RecoveryWindow is the number of addresses to generate during recovery.
	RecoveryWindow uint32

	// MinConfs is the minimum confirmations required of UTXOs the wallet
	// selects as swap-funding inputs.
	MinConfs uint32
}

// DefaultConfig returns a default configuration.
func DefaultConfig(chainBridge *mempool.ChainBridge) *Config {
	return &Config{
		NetParams:      &chaincfg.TestNet3Params,
		PrivatePass:    []byte("password"),
		PublicPass:     []byte(wallet.InsecurePubPassphrase),
		RecoveryWindow: 250,
		MinConfs:       1,
		ChainBridge:    chainBridge,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NetParams == nil {
		return ErrInvalidNetParams
	}

	if c.ChainBridge == nil {
		return ErrChainBridgeRequired
	}

	if len(c.PrivatePass) == 0 {
		return ErrPrivatePassRequired
	}

	return nil
}
