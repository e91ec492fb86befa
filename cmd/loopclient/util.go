package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func btcecSchnorrPubkey(priv *btcec.PrivateKey) []byte {
	return schnorr.SerializePubKey(priv.PubKey())
}

func parseDestAddr(addr string, netParams *chaincfg.Params) (btcutil.Address, error) {
	if addr == "" {
		return nil, fmt.Errorf("--dest is required")
	}
	return btcutil.DecodeAddress(addr, netParams)
}

// readMacaroonHex loads a macaroon file and returns its hex encoding, ready
// to go straight into an Authorization: Macaroon <hex> header. The file may
// hold either the hex string loopd prints at startup or the macaroon's raw
// binary serialization.
func readMacaroonHex(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read macaroon: %w", err)
	}

	trimmed := strings.TrimSpace(string(contents))
	if _, err := hex.DecodeString(trimmed); err == nil {
		return trimmed, nil
	}

	return hex.EncodeToString(contents), nil
}
