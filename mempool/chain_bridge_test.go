package mempool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestClient_GetCurrentHeight tests fetching the current blockchain height.
func TestClient_GetCurrentHeight(t *testing.T) {
	t.Parallel()

	// Create mock server
	mockHeight := uint32(850000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blocks/tip/height" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("850000"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	// Test getting height
	ctx := context.Background()
	height, err := client.GetCurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, mockHeight, height)
}

// TestClient_GetBlockHash tests fetching a block hash by height.
func TestClient_GetBlockHash(t *testing.T) {
	t.Parallel()

	mockBlockHash := "000000000000000000021f87f9c4829e3e4eb7c0a5c145f82a7c3c2c0e6f5f5f"

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/block-height/850000" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(mockBlockHash))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	// Test getting block hash
	ctx := context.Background()
	hashStr, err := client.GetBlockHash(ctx, 850000)
	require.NoError(t, err)
	require.Equal(t, mockBlockHash, hashStr)
}

// TestClient_GetBlock tests fetching a block by hash.
func TestClient_GetBlock(t *testing.T) {
	t.Parallel()

	mockBlock := &BlockResponse{
		ID:                "000000000000000000021f87f9c4829e3e4eb7c0a5c145f82a7c3c2c0e6f5f5f",
		Height:            850000,
		Version:           0x20000000,
		Timestamp:         1609459200,
		TxCount:           2500,
		Size:              1500000,
		Weight:            4000000,
		MerkleRoot:        "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
		PreviousBlockHash: "000000000000000000021f87f9c4829e3e4eb7c0a5c145f82a7c3c2c0e6f5f5e",
		Nonce:             123456789,
		Bits:              0x17034a7d,
		Difficulty:        20000000000000.0,
	}

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/block/000000000000000000021f87f9c4829e3e4eb7c0a5c145f82a7c3c2c0e6f5f5f" {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(mockBlock)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	// Test getting block
	ctx := context.Background()
	block, err := client.GetBlock(ctx, mockBlock.ID)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Equal(t, mockBlock.Height, block.Height)
	require.Equal(t, mockBlock.Timestamp, block.Timestamp)
}

// TestClient_BroadcastTransaction tests broadcasting a transaction.
func TestClient_BroadcastTransaction(t *testing.T) {
	t.Parallel()

	broadcastCalled := false

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tx" && r.Method == http.MethodPost {
			broadcastCalled = true
			w.WriteHeader(http.StatusOK)
			// mempool.space returns the txid on success
			w.Write([]byte("\"abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890\""))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	// Create a simple test transaction
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	tx.AddTxOut(&wire.TxOut{Value: 1000})

	// Test broadcasting
	ctx := context.Background()
	err := client.BroadcastTransaction(ctx, tx)
	require.NoError(t, err)
	require.True(t, broadcastCalled)
}

// TestClient_GetFeeEstimates tests fetching fee estimates.
func TestClient_GetFeeEstimates(t *testing.T) {
	t.Parallel()

	mockFees := &FeeEstimates{
		FastestFee:  50,
		HalfHourFee: 30,
		HourFee:     20,
		EconomyFee:  10,
		MinimumFee:  1,
	}

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/fees/recommended" {
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(mockFees)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	// Test getting fee estimates
	ctx := context.Background()
	fees, err := client.GetFeeEstimates(ctx)
	require.NoError(t, err)
	require.NotNil(t, fees)
	require.Equal(t, mockFees.FastestFee, fees.FastestFee)
	require.Equal(t, mockFees.HourFee, fees.HourFee)
}

// TestChainBridge_CurrentHeight tests ChainBridge height fetching with caching.
func TestChainBridge_CurrentHeight(t *testing.T) {
	t.Parallel()

	callCount := 0
	mockHeight := uint32(850000)

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blocks/tip/height" {
			callCount++
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("850000"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client and bridge
	clientCfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(clientCfg)

	bridgeCfg := &ChainBridgeConfig{
		Client:    client,
		CacheSize: 100,
		CacheTTL:  500 * time.Millisecond,
	}
	bridge := NewChainBridge(bridgeCfg)

	ctx := context.Background()

	// First call should hit the API
	height1, err := bridge.CurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, mockHeight, height1)
	require.Equal(t, 1, callCount)

	// Second call should use cache
	height2, err := bridge.CurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, mockHeight, height2)
	require.Equal(t, 1, callCount, "should have used cache")

	// Wait for cache to expire
	time.Sleep(600 * time.Millisecond)

	// Third call should hit API again
	height3, err := bridge.CurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, mockHeight, height3)
	require.Equal(t, 2, callCount, "cache should have expired")
}

// TestChainBridge_VerifyBlock tests block verification.
func TestChainBridge_VerifyBlock(t *testing.T) {
	t.Parallel()

	mockBlockHash := "000000000000000000021f87f9c4829e3e4eb7c0a5c145f82a7c3c2c0e6f5f5f"

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/block-height/850000" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(mockBlockHash))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	// Create client and bridge
	clientCfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     10,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(clientCfg)

	bridgeCfg := DefaultChainBridgeConfig(client)
	bridge := NewChainBridge(bridgeCfg)

	ctx := context.Background()

	// Create a block header with matching hash
	_, err := chainhash.NewHashFromStr(mockBlockHash)
	require.NoError(t, err)

	// Create header that will produce this hash
	// Note: In a real scenario, we'd need to create a valid header
	// For this test, we're testing the verification logic
	header := wire.BlockHeader{}

	// The empty header does not hash to mockBlockHash, so verification
	// must fail.
	err = bridge.VerifyBlock(ctx, header, 850000)
	require.Error(t, err)
}

// TestClient_RateLimiting tests that rate limiting works.
func TestClient_RateLimiting(t *testing.T) {
	t.Parallel()

	callTimes := []time.Time{}
	mu := &sync.Mutex{}

	// Create mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		callTimes = append(callTimes, time.Now())
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("850000"))
	}))
	defer server.Close()

	// Create client with strict rate limit
	cfg := &Config{
		BaseURL:       server.URL,
		RateLimit:     2, // 2 requests per second
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}
	client := NewClient(cfg)

	ctx := context.Background()

	// Make 4 rapid requests
	for i := 0; i < 4; i++ {
		_, err := client.GetCurrentHeight(ctx)
		require.NoError(t, err)
	}

	// Check that requests were rate-limited
	mu.Lock()
	defer mu.Unlock()

	require.Len(t, callTimes, 4)

	// Calculate time between first and last request
	duration := callTimes[3].Sub(callTimes[0])

	// With rate limit of 2 req/sec and a burst of 2, 4 requests should take
	// at least ~1 second (0s, 0s, 0.5s, 1.0s)
	// Allow some tolerance for timing precision
	require.GreaterOrEqual(t, duration, 950*time.Millisecond, "requests should be rate-limited")
}
