package main

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli"
)

// netParamsFromName maps the --network flag to its chaincfg.Params, the same
// lookup cmd/loopd's config does for bitcoin.network.
func netParamsFromName(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

var (
	serverFlag = cli.StringFlag{
		Name:  "server",
		Usage: "loopd HTTP JSON address, host:port",
		Value: "localhost:8081",
	}
	macaroonFlag = cli.StringFlag{
		Name:  "macaroonpath",
		Usage: "path to the macaroon minted by loopd, if it requires one",
	}
	networkFlag = cli.StringFlag{
		Name:  "network",
		Usage: "bitcoin network: mainnet, testnet, signet or regtest",
		Value: "regtest",
	}
	keyFlag = cli.StringFlag{
		Name:  "privkey",
		Usage: "hex-encoded secp256k1 private key identifying this client",
	}
	lndAddressFlag = cli.StringFlag{
		Name:  "lnd_address",
		Usage: "host:port of lnd's gRPC interface",
	}
	lndCertFlag = cli.StringFlag{
		Name:  "lnd_cert",
		Usage: "path to lnd's TLS certificate",
	}
	lndMacaroonFlag = cli.StringFlag{
		Name:  "lnd_macaroon",
		Usage: "path to the macaroon used to authenticate against lnd",
	}
)
