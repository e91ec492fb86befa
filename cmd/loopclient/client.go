package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/lightninglabs/loopout/swapd"
)

// serverClient is a thin HTTP client for loopd's JSON surface, mirroring the
// request/response shapes loopoutrpc.Server speaks.
type serverClient struct {
	baseURL     string
	macaroonHex string
	httpClient  *http.Client
}

func newServerClient(addr, macaroonPath string) (*serverClient, error) {
	c := &serverClient{
		baseURL:    "http://" + addr,
		httpClient: http.DefaultClient,
	}

	if macaroonPath != "" {
		raw, err := readMacaroonHex(macaroonPath)
		if err != nil {
			return nil, err
		}
		c.macaroonHex = raw
	}

	return c, nil
}

func (c *serverClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = *bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.macaroonHex != "" {
		req.Header.Set("Authorization", "Macaroon "+c.macaroonHex)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to loopd failed: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Message string `json:"message"`
			Param   string `json:"param"`
		}
		_ = dec.Decode(&errBody)
		return fmt.Errorf("loopd returned %d: %s", resp.StatusCode, errBody.Message)
	}

	if out != nil {
		return dec.Decode(out)
	}
	return nil
}

// NewLoopOut requests a new swap for amountSat sats, identifying the caller
// by buyerKey's public key.
func (c *serverClient) NewLoopOut(ctx context.Context, buyerKey *btcec.PrivateKey,
	amountSat int64) (*swapd.LoopOutResponse, error) {

	req := struct {
		AmountSats     int64  `json:"amount_sats"`
		BuyerPubkeyHex string `json:"buyer_pubkey"`
	}{
		AmountSats:     amountSat,
		BuyerPubkeyHex: hex.EncodeToString(schnorr.SerializePubKey(buyerKey.PubKey())),
	}

	var resp swapd.LoopOutResponse
	if err := c.do(ctx, http.MethodPost, "/loop/out", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetLoopOut polls the swap identified by paymentHash.
func (c *serverClient) GetLoopOut(ctx context.Context, paymentHash [32]byte) (*swapd.LoopOutResponse, error) {
	path := "/loop/out/" + hex.EncodeToString(paymentHash[:])

	var resp swapd.LoopOutResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
