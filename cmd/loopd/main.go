// Command loopd runs the loop-out server: it wires KeyStore, HTLCBuilder,
// OnchainWallet, LNGateway, FeeOracle and Store into a SwapCoordinator and
// serves an HTTP JSON surface in front of it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/keyring"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/loopoutrpc"
	"github.com/lightninglabs/loopout/mempool"
	"github.com/lightninglabs/loopout/onchain"
	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swapdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loopd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logBackend := btclog.NewBackend(os.Stdout)
	setupLoggers(logBackend, cfg.DebugLevel)

	netParams, err := netParamsFromName(cfg.Bitcoin.Network)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Task 01: chain backend. Both the FeeOracle and the OnchainWallet
	// are fronted by the same mempool.space-compatible bridge, wired
	// before the wallet and before any keyring-dependent operation.
	mempoolClient := mempool.NewClient(&mempool.Config{BaseURL: cfg.Bitcoin.Url})
	chainBridge := mempool.NewChainBridge(mempool.DefaultChainBridgeConfig(mempoolClient))
	if err := chainBridge.Start(); err != nil {
		return fmt.Errorf("failed to start chain bridge: %w", err)
	}
	defer chainBridge.Stop()

	// Task 02: storage, opened before the key store so the key store can
	// seed its index allocator from the highest committed
	// local_pubkey_index.
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	// Task 03: key store, seeded from the master xprv read out of
	// LOOPER_XPRV and the database's high-water mark: read the max
	// local_pubkey_index from Store at startup and seed the counter.
	// CommitIndex is called here to seed the in-memory allocator, and the
	// KeyStore commits each later allocation to the same in-memory store;
	// nothing survives a restart except the Script rows this is re-seeded
	// from.
	maxIndex, err := store.MaxLocalPubkeyIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to read key index high-water mark: %w", err)
	}
	indexStore := keyring.NewMemoryIndexStateStore()
	if err := indexStore.CommitIndex(ctx, uint32(maxIndex+1)); err != nil {
		return fmt.Errorf("failed to seed key index allocator: %w", err)
	}
	keyStore, err := keyring.New(ctx, &keyring.Config{
		NetParams:  netParams,
		MasterXprv: cfg.masterXprv,
		IndexStore: indexStore,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize key store: %w", err)
	}

	// Task 04: on-chain wallet.
	walletDefaults := onchain.DefaultConfig(chainBridge)
	wallet, err := onchain.New(&onchain.Config{
		NetParams:      netParams,
		DBPath:         cfg.Db.Path + ".wallet",
		PrivatePass:    walletDefaults.PrivatePass,
		PublicPass:     walletDefaults.PublicPass,
		ChainBridge:    chainBridge,
		RecoveryWindow: 250,
		MinConfs:       1,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize wallet: %w", err)
	}
	if err := wallet.Start(); err != nil {
		return fmt.Errorf("failed to start wallet: %w", err)
	}
	defer wallet.Stop()

	// Task 05: LN gateway.
	lnGateway, err := lngateway.New(ctx, &lngateway.Config{
		LndAddress:      cfg.Lnd.Address,
		TLSCertPath:     cfg.Lnd.CertPath,
		MacaroonPath:    cfg.Lnd.MacaroonPath,
		Network:         cfg.Bitcoin.Network,
		InvoiceLifetime: time.Duration(cfg.Lnd.InvoiceLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to dial lnd: %w", err)
	}
	defer lnGateway.Close()

	// Task 06: fee oracle, sharing the same chain bridge as the wallet
	// but requested ahead of any wallet lock acquisition, so the fee
	// rate is computed before the wallet lock is held.
	feeOracle := feeoracle.New(chainBridge)

	// Task 07: coordinator, the orchestration core.
	coordinator, err := swapd.New(&swapd.Config{
		NetParams: netParams,
		MinAmount: btcutilAmount(cfg.Loopout.MinAmount),
		MaxAmount: btcutilAmount(cfg.Loopout.MaxAmount),
		CltvDelta: cfg.Loopout.CltvDelta,
		FeePct:    cfg.Loopout.FeePct,
		KeyStore:  keyStore,
		Wallet:    wallet,
		LN:        lnGateway,
		FeeOracle: feeOracle,
		Store:     store,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	// Task 08: reconciler, a best-effort background poller explicitly
	// kept outside NewLoopOut's transactional core.
	reconciler := swapd.NewReconciler(coordinator, 0)
	reconciler.Start()
	defer reconciler.Stop()

	// Task 09: HTTP JSON surface.
	rpcServer, err := loopoutrpc.New(coordinator, &loopoutrpc.Config{
		ListenAddr:   cfg.Rpc.ListenAddr,
		MacaroonPath: cfg.Rpc.MacaroonPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize rpc server: %w", err)
	}

	if adminMac, ok, err := rpcServer.BakeAdminMacaroon(); err != nil {
		return fmt.Errorf("failed to bake admin macaroon: %w", err)
	} else if ok {
		fmt.Printf("admin macaroon (valid 30 days): %s\n", adminMac)
	}

	httpServer := &http.Server{
		Addr:    cfg.Rpc.ListenAddr,
		Handler: rpcServer,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("rpc server failed: %w", err)
		}
	case <-sigCh:
		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	return nil
}

// openStore opens the configured backend: postgres when db.backend is
// "postgres", sqlite otherwise (the default).
func openStore(cfg *config) (*swapdb.Store, error) {
	backend := swapdbBackendType(cfg.Db.Backend)

	base, err := swapdb.Open(&swapdb.Config{
		Backend:    backend,
		SqlitePath: cfg.Db.Path,
		Host:       cfg.Db.Host,
		Port:       cfg.Db.Port,
		User:       cfg.Db.User,
		Pass:       cfg.Db.Pass,
		DBName:     cfg.Db.Name,
	})
	if err != nil {
		return nil, err
	}

	return swapdb.NewStore(base), nil
}
