package loopoutrpc_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/loopout/feeoracle"
	"github.com/lightninglabs/loopout/lngateway"
	"github.com/lightninglabs/loopout/loopoutrpc"
	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightninglabs/loopout/swapdb/sqlc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

const buyerPubkeyHex = "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f"

type fakeKeyDeriver struct {
	priv    *btcec.PrivateKey
	counter uint32
}

func (f *fakeKeyDeriver) Derive(ctx context.Context) (uint32, *btcec.PublicKey, *btcec.PrivateKey, error) {
	idx := atomic.AddUint32(&f.counter, 1) - 1
	return idx, f.priv.PubKey(), f.priv, nil
}

type fakeWallet struct {
	height uint32
}

func (f *fakeWallet) Height(ctx context.Context) (uint32, error) { return f.height, nil }

func (f *fakeWallet) BuildAndSignSend(ctx context.Context, outputs []*wire.TxOut,
	feeRate chainfee.SatPerKWeight, nLockTime uint32) (*wire.MsgTx, error) {

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{}, Index: 0}, nil, nil))
	for _, out := range outputs {
		tx.AddTxOut(out)
	}
	return tx, nil
}

func (f *fakeWallet) Broadcast(ctx context.Context, tx *wire.MsgTx) error { return nil }

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

type fakeFeeOracle struct{}

func (f *fakeFeeOracle) Rate(ctx context.Context, priority feeoracle.FeePriority) (chainfee.SatPerKWeight, error) {
	return chainfee.SatPerKWeight(253), nil
}

// errorBody mirrors the unexported shape loopoutrpc's writeError encodes, so
// tests can decode a response body without reaching into the package.
type errorBody struct {
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func newTestServer(t *testing.T) *loopoutrpc.Server {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

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
		KeyStore:  &fakeKeyDeriver{priv: priv},
		Wallet:    &fakeWallet{height: 100},
		LN:        &fakeLNGateway{},
		FeeOracle: &fakeFeeOracle{},
		Store:     swapdb.NewStore(db),
	})
	require.NoError(t, err)

	server, err := loopoutrpc.New(coord, &loopoutrpc.Config{ListenAddr: "localhost:0"})
	require.NoError(t, err)

	return server
}

func TestHandleNewLoopOutInvalidAmount(t *testing.T) {
	server := newTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"amount_sats":  0,
		"buyer_pubkey": buyerPubkeyHex,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/loop/out", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)

	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, errorBody{Message: "invalid parameter", Param: "amount"}, got)
}

func TestHandleNewLoopOutMalformedBody(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("POST", "/loop/out", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)

	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, errorBody{Message: "invalid parameter", Param: "amount"}, got)
}

func TestHandleNewLoopOutInvalidPubkey(t *testing.T) {
	server := newTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"amount_sats":  100_000,
		"buyer_pubkey": "not-hex",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/loop/out", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)

	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, errorBody{Message: "invalid parameter", Param: "pubkey"}, got)
}

func TestHandleNewLoopOutSuccess(t *testing.T) {
	server := newTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"amount_sats":  100_000,
		"buyer_pubkey": buyerPubkeyHex,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/loop/out", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var got swapd.LoopOutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.Address)
	require.EqualValues(t, 0, got.Vout)
	require.EqualValues(t, 1_000, got.LoopInfo.Fee)
}

func TestHandleGetLoopOutInvalidPaymentHash(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("GET", "/loop/out/not-hex", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 400, rec.Code)

	var got errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, errorBody{Message: "invalid parameter", Param: "payment_hash"}, got)
}

func TestHandleGetLoopOutNotFound(t *testing.T) {
	server := newTestServer(t)

	hash := make([]byte, 32)
	req := httptest.NewRequest("GET", "/loop/out/"+hex.EncodeToString(hash), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, 404, rec.Code)
}

func TestHandleGetLoopOutRoundTrip(t *testing.T) {
	server := newTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"amount_sats":  50_000,
		"buyer_pubkey": buyerPubkeyHex,
	})
	require.NoError(t, err)

	postReq := httptest.NewRequest("POST", "/loop/out", bytes.NewReader(body))
	postRec := httptest.NewRecorder()
	server.ServeHTTP(postRec, postReq)
	require.Equal(t, 200, postRec.Code)

	var created swapd.LoopOutResponse
	require.NoError(t, json.Unmarshal(postRec.Body.Bytes(), &created))

	getReq := httptest.NewRequest("GET", "/loop/out/"+created.LoopInfo.LoopHash, nil)
	getRec := httptest.NewRecorder()
	server.ServeHTTP(getRec, getReq)

	require.Equal(t, 200, getRec.Code)

	var fetched swapd.LoopOutResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	require.Equal(t, created.Address, fetched.Address)
}
