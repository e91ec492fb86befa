package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "loopd.conf"
	defaultDBBackend      = "sqlite"
	envMasterXprv         = "LOOPER_XPRV"
)

// loopoutConfig is the loopout.{min,max,cltv,fee} config group.
type loopoutConfig struct {
	MinAmount int64 `long:"min" description:"minimum loop-out amount accepted, in satoshis"`
	MaxAmount int64 `long:"max" description:"maximum loop-out amount accepted, in satoshis"`
	CltvDelta uint32 `long:"cltv" description:"blocks added to the current tip to compute each swap's cltv_expiry"`
	FeePct    int64 `long:"fee" description:"integer percentage fee charged on top of the requested amount"`
}

// bitcoinConfig is the bitcoin.{network,url,user,pass} config group, also
// doubling as the mempool.space-compatible REST backend's base URL via Url.
type bitcoinConfig struct {
	Network string `long:"network" description:"bitcoin network: mainnet, testnet, signet or regtest"`
	Url     string `long:"url" description:"mempool.space-compatible REST API base URL"`
	User    string `long:"user" description:"bitcoind RPC username, unused by the mempool.space backend but kept for config compatibility"`
	Pass    string `long:"pass" description:"bitcoind RPC password"`
}

// lndConfig is the lnd.* config group.
type lndConfig struct {
	Address         string `long:"address" description:"host:port of lnd's gRPC interface"`
	CertPath        string `long:"cert_path" description:"path to lnd's TLS certificate"`
	MacaroonPath    string `long:"macaroon_path" description:"path to the macaroon used to authenticate against lnd"`
	InvoiceLifetime int64  `long:"invoice_lifetime" description:"seconds an invoice remains payable" default:"86400"`
}

// dbConfig is the db.{host,port,user,pass,name} config group.
type dbConfig struct {
	Backend string `long:"backend" description:"sqlite or postgres" default:"sqlite"`
	Host    string `long:"host" description:"postgres host"`
	Port    int    `long:"port" description:"postgres port" default:"5432"`
	User    string `long:"user" description:"postgres user"`
	Pass    string `long:"pass" description:"postgres password"`
	Name    string `long:"name" description:"postgres database name"`
	Path    string `long:"path" description:"sqlite database file path" default:"loopd.db"`
}

// rpcConfig configures the HTTP JSON surface loopoutrpc exposes.
type rpcConfig struct {
	ListenAddr   string `long:"listen" description:"address the JSON API listens on" default:"localhost:8081"`
	MacaroonPath string `long:"macaroonpath" description:"if set, path of the macaroon root key file; every request must present a macaroon baked from it"`
}

// config is the top-level loopd configuration, parsed from an ini file and
// overridden by command-line flags, the same jessevdk/go-flags layering lnd
// itself uses.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"path to a config ini file"`

	Loopout loopoutConfig `group:"loopout" namespace:"loopout"`
	Bitcoin bitcoinConfig `group:"bitcoin" namespace:"bitcoin"`
	Lnd     lndConfig     `group:"lnd" namespace:"lnd"`
	Db      dbConfig      `group:"db" namespace:"db"`
	Rpc     rpcConfig     `group:"rpc" namespace:"rpc"`

	DebugLevel string `long:"debuglevel" description:"logging level for all subsystems" default:"info"`

	// masterXprv is never a flag and never logged: it is read directly
	// from the LOOPER_XPRV environment variable in loadConfig.
	masterXprv string
}

func defaultConfig() *config {
	return &config{
		Loopout: loopoutConfig{
			MinAmount: 10_000,
			MaxAmount: 10_000_000,
			CltvDelta: 500,
			FeePct:    1,
		},
		Bitcoin: bitcoinConfig{
			Network: "regtest",
			Url:     "https://mempool.space/api",
		},
		Lnd: lndConfig{
			InvoiceLifetime: 86400,
		},
		Db: dbConfig{
			Backend: defaultDBBackend,
			Path:    "loopd.db",
			Port:    5432,
		},
		Rpc: rpcConfig{
			ListenAddr: "localhost:8081",
		},
		DebugLevel: "info",
	}
}

// loadConfig parses the ini config file (if present) then command-line
// flags over it, and reads the master extended private key from the
// environment, never from a flag or the ini file, so it never ends up
// logged or checked into a sample config.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	preCfg := *cfg
	if _, err := flags.NewParser(&preCfg, flags.Default).Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	parser := flags.NewParser(cfg, flags.Default)

	if preCfg.ConfigFile != "" {
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(preCfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	cfg.masterXprv = os.Getenv(envMasterXprv)
	if cfg.masterXprv == "" {
		return nil, fmt.Errorf("%s environment variable is required", envMasterXprv)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *config) validate() error {
	if c.Loopout.MinAmount <= 0 || c.Loopout.MaxAmount < c.Loopout.MinAmount {
		return fmt.Errorf("invalid loopout.min/loopout.max bounds")
	}
	if c.Loopout.FeePct < 0 || c.Loopout.FeePct > 100 {
		return fmt.Errorf("loopout.fee must be a percentage between 0 and 100")
	}
	if c.Lnd.Address == "" || c.Lnd.MacaroonPath == "" {
		return fmt.Errorf("lnd.address and lnd.macaroon_path are required")
	}
	if _, err := netParamsFromName(c.Bitcoin.Network); err != nil {
		return err
	}

	return nil
}

// netParamsFromName maps the bitcoin.network config value to its
// chaincfg.Params, the same lookup lnd's own config does for its --bitcoin
// .{mainnet,testnet,...} flags.
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
		return nil, fmt.Errorf("unknown bitcoin.network %q", network)
	}
}
