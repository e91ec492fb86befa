package swapd_test

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swapdb/sqlc"
	"github.com/lightninglabs/loopout/swaperrors"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

// buyerPubkeyHex is BIP-340 test vector 0's public key: any valid 32-byte
// x-only point works, since the coordinator never inspects the buyer's key
// beyond parsing it.
const buyerPubkeyHex = "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f"

// fakeKeyDeriver hands out a fresh, strictly increasing index on every
// call, backed by a single keypair generated once so tests don't need a
// real keychain.
type fakeKeyDeriver struct {
	priv    *btcec.PrivateKey
	counter uint32
}

func newFakeKeyDeriver(t *testing.T) *fakeKeyDeriver {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return &fakeKeyDeriver{priv: priv}
}

func (f *fakeKeyDeriver) Derive(ctx context.Context) (uint32, *btcec.PublicKey, *btcec.PrivateKey, error) {
	idx := atomic.AddUint32(&f.counter, 1) - 1
	return idx, f.priv.PubKey(), f.priv, nil
}

// fakeWallet stands in for the on-chain wallet: it reports a fixed tip
// height and "signs" a transaction by wiring up the caller's outputs behind
// one dummy input, recording every output slice it was asked to fund so
// tests can assert on vout-0 pinning.
type fakeWallet struct {
	mu             sync.Mutex
	height         uint32
	fundedOutputs  [][]*wire.TxOut
	broadcastCount int
}

func (f *fakeWallet) Height(ctx context.Context) (uint32, error) {
	return f.height, nil
}

func (f *fakeWallet) BuildAndSignSend(ctx context.Context, outputs []*wire.TxOut,
	feeRate chainfee.SatPerKWeight, nLockTime uint32) (*wire.MsgTx, error) {

	f.mu.Lock()
	f.fundedOutputs = append(f.fundedOutputs, outputs)
	f.mu.Unlock()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{}, Index: 0}, nil, nil))
	for _, out := range outputs {
		tx.AddTxOut(out)
	}

	return tx, nil
}

func (f *fakeWallet) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	f.mu.Lock()
	f.broadcastCount++
	f.mu.Unlock()

	return nil
}

// fakeLNGateway issues invoices with a unique payment hash per call, so
// concurrent swaps never collide on the store's payment_hash uniqueness.
type fakeLNGateway struct {
	counter uint64
}

func (f *fakeLNGateway) AddInvoice(ctx context.Context, amountSat btcutil.Amount) (*lngateway.InvoiceResult, error) {
	n := atomic.AddUint64(&f.counter, 1)

	var hash lntypes.Hash
	binary.BigEndian.PutUint64(hash[:8], n)

	var preimage lntypes.Preimage
	_, _ = rand.Read(preimage[:])

	return &lngateway.InvoiceResult{
		Preimage:    preimage,
		PaymentHash: hash,
		Bolt11:      "lnbc1testinvoice",
		AddIndex:    n,
	}, nil
}

// fakeFeeOracle always returns the same fee rate.
type fakeFeeOracle struct {
	rate chainfee.SatPerKWeight
}

func (f *fakeFeeOracle) Rate(ctx context.Context, priority feeoracle.FeePriority) (chainfee.SatPerKWeight, error) {
	return f.rate, nil
}

func newTestCoordinator(t *testing.T, wallet *fakeWallet, ln *fakeLNGateway) *swapd.Coordinator {
	t.Helper()

	db, err := swapdb.Open(&swapdb.Config{
		Backend:    sqlc.BackendTypeSqlite,
		SqlitePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	coord, err := swapd.New(&swapd.Config{
		NetParams: &chaincfg.RegressionNetParams,
		MinAmount: 10_000,
		MaxAmount: 10_000_000,
		FeePct:    1,
		KeyStore:  newFakeKeyDeriver(t),
		Wallet:    wallet,
		LN:        ln,
		FeeOracle: &fakeFeeOracle{rate: chainfee.SatPerKWeight(253)},
		Store:     swapdb.NewStore(db),
	})
	require.NoError(t, err)

	return coord
}

func TestNewLoopOutFeeCalculation(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 100}, &fakeLNGateway{})

	full, err := coord.NewLoopOut(context.Background(), buyerPubkeyHex, 100_000)
	require.NoError(t, err)

	// FeePct is 1%, so the invoice (amount + fee) is 101_000 while the
	// funding UTXO carries only the bare amount.
	require.EqualValues(t, 101_000, full.Invoice.AmountSat)
	require.EqualValues(t, 100_000, full.Utxo.AmountSat)

	resp := swapd.ToResponse(full)
	require.EqualValues(t, 1_000, resp.LoopInfo.Fee)
}

func TestNewLoopOutVoutZeroPinning(t *testing.T) {
	wallet := &fakeWallet{height: 200}
	coord := newTestCoordinator(t, wallet, &fakeLNGateway{})

	full, err := coord.NewLoopOut(context.Background(), buyerPubkeyHex, 50_000)
	require.NoError(t, err)

	require.EqualValues(t, 0, full.Utxo.Vout)
	require.Len(t, wallet.fundedOutputs, 1)
	require.Len(t, wallet.fundedOutputs[0], 1)
	require.EqualValues(t, 50_000, wallet.fundedOutputs[0][0].Value)
	require.Equal(t, 1, wallet.broadcastCount)
}

func TestNewLoopOutConcurrentKeyIndicesAreUnique(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 300}, &fakeLNGateway{})

	const n = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indices = make(map[uint32]bool)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			full, err := coord.NewLoopOut(context.Background(), buyerPubkeyHex, 20_000)
			require.NoError(t, err)

			mu.Lock()
			indices[full.Script.LocalPubkeyIndex] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, indices, n)
}

func TestNewLoopOutInvalidAmount(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 100}, &fakeLNGateway{})

	_, err := coord.NewLoopOut(context.Background(), buyerPubkeyHex, 1)

	swapErr, ok := swaperrors.As(err)
	require.True(t, ok)
	require.Equal(t, swaperrors.KindInvalidAmount, swapErr.Kind)
	require.Equal(t, "amount", swapErr.Param)
	require.Equal(t, "invalid parameter", swapErr.Message())
}

func TestNewLoopOutInvalidPubkey(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 100}, &fakeLNGateway{})

	_, err := coord.NewLoopOut(context.Background(), "not-hex", 100_000)

	swapErr, ok := swaperrors.As(err)
	require.True(t, ok)
	require.Equal(t, swaperrors.KindInvalidPubkey, swapErr.Kind)
	require.Equal(t, "pubkey", swapErr.Param)
	require.Equal(t, "invalid parameter", swapErr.Message())
}

func TestGetLoopOutNotFound(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 100}, &fakeLNGateway{})

	_, err := coord.GetLoopOut(context.Background(), [32]byte{0xaa})

	swapErr, ok := swaperrors.As(err)
	require.True(t, ok)
	require.Equal(t, swaperrors.KindNotFound, swapErr.Kind)
}

func TestGetLoopOutRoundTrip(t *testing.T) {
	coord := newTestCoordinator(t, &fakeWallet{height: 100}, &fakeLNGateway{})

	created, err := coord.NewLoopOut(context.Background(), buyerPubkeyHex, 75_000)
	require.NoError(t, err)

	fetched, err := coord.GetLoopOut(context.Background(), created.Invoice.PaymentHash)
	require.NoError(t, err)

	require.Equal(t, created.Utxo.Txid, fetched.Utxo.Txid)
	require.Equal(t, created.Script.Address, fetched.Script.Address)
}
