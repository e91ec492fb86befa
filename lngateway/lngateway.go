// Package lngateway is the single serialized client the loop-out server
// uses to talk to its LN node. The underlying lndclient handle is not safe
// to use from multiple goroutines issuing overlapping invoice/payment
// requests with ordering expectations (add_invoice must complete before the
// coordinator relies on its payment_hash), so every call is funneled
// through one mutex-guarded Gateway rather than a command/reply actor.
package lngateway

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

// InvoiceResult is the artifact AddInvoice hands back to the coordinator:
// everything it needs to populate an Invoice row.
type InvoiceResult struct {
	// Preimage is retained by the server for bookkeeping; it must never
	// be exposed on the read API.
	Preimage lntypes.Preimage

	PaymentHash  lntypes.Hash
	PaymentAddr  [32]byte
	Bolt11       string
	AddIndex     uint64
}

// HoldInvoiceResult is returned by AddHoldInvoice. Reserved for a future
// loop-in flow; not called by the base loop-out happy path.
type HoldInvoiceResult struct {
	PaymentHash lntypes.Hash
	Bolt11      string
	AddIndex    uint64
}

// Gateway serializes every call into the LN node behind a single mutex,
// replacing the command-reply actor/channel indirection a prior source
// version used: the mutex alone is enough to preserve the "add invoice
// before settlement subscription" ordering the node's RPC client demands
// without a dedicated dispatch goroutine.
type Gateway struct {
	cfg *Config

	services *lndclient.LndServices

	mu sync.Mutex
}

// New dials lnd and returns a Gateway ready to serve requests.
func New(ctx context.Context, cfg *Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lngateway config: %w", err)
	}

	services, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:         cfg.LndAddress,
		Network:            lndclient.Network(cfg.Network),
		CustomMacaroonPath: cfg.MacaroonPath,
		TLSPath:            cfg.TLSCertPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial lnd: %w", err)
	}

	return &Gateway{cfg: cfg, services: services}, nil
}

// Close releases the underlying lndclient connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.services != nil {
		g.services.Close()
	}
}

// AddInvoice generates a uniformly random 32-byte preimage, derives its
// payment hash, and asks lnd to add a BOLT11 invoice for amountSat that
// settles instantly once the preimage is revealed. No payment_addr is
// generated or passed to lnd; InvoiceResult.PaymentAddr is left zero.
func (g *Gateway) AddInvoice(ctx context.Context, amountSat btcutil.Amount) (*InvoiceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var preimage lntypes.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, fmt.Errorf("failed to sample preimage: %w", err)
	}
	paymentHash := sha256.Sum256(preimage[:])

	hash := lntypes.Hash(paymentHash)
	invoiceData := &invoicesrpc.AddInvoiceData{
		Value:    lnwire.NewMSatFromSatoshis(amountSat),
		Preimage: &preimage,
		Hash:     &hash,
		Expiry:   int64(g.cfg.InvoiceLifetime.Seconds()),
		Private:  false,
	}

	addIndex, bolt11, err := g.services.Client.AddInvoice(ctx, invoiceData)
	if err != nil {
		return nil, fmt.Errorf("failed to add invoice: %w", err)
	}

	return &InvoiceResult{
		Preimage:    preimage,
		PaymentHash: hash,
		Bolt11:      bolt11,
		AddIndex:    uint64(addIndex),
	}, nil
}

// AddHoldInvoice creates a hold invoice whose preimage the server does not
// reveal until an explicit, separate settle call. Reserved for a future
// loop-in flow (§4.4); the base loop-out path never calls this.
func (g *Gateway) AddHoldInvoice(ctx context.Context, amountSat btcutil.Amount,
	cltvExpiry uint32, paymentHash lntypes.Hash) (*HoldInvoiceResult, error) {

	g.mu.Lock()
	defer g.mu.Unlock()

	req := &invoicesrpc.AddInvoiceData{
		Value:      lnwire.NewMSatFromSatoshis(amountSat),
		Hash:       &paymentHash,
		CltvExpiry: uint64(cltvExpiry),
		Expiry:     int64(g.cfg.InvoiceLifetime.Seconds()),
	}

	addIndex, bolt11, err := g.services.Invoices.AddHoldInvoice(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to add hold invoice: %w", err)
	}

	return &HoldInvoiceResult{
		PaymentHash: paymentHash,
		Bolt11:      bolt11,
		AddIndex:    uint64(addIndex),
	}, nil
}

// PayInvoiceSync pays bolt11, blocking the caller (but not the gateway's
// other callers once this request has been dispatched to lnd) until the
// payment terminates. On success it returns the preimage the LN payment
// revealed; on failure it surfaces ErrPaymentFailed.
func (g *Gateway) PayInvoiceSync(ctx context.Context, bolt11 string,
	feeLimitSat btcutil.Amount) (lntypes.Preimage, error) {

	g.mu.Lock()
	request := lndclient.SendPaymentRequest{
		Invoice:    bolt11,
		FeeLimitMsat: lnwire.NewMSatFromSatoshis(feeLimitSat),
	}
	statusChan, errChan, err := g.services.Router.SendPayment(ctx, request)
	g.mu.Unlock()

	if err != nil {
		return lntypes.Preimage{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	for {
		select {
		case status := <-statusChan:
			switch status.State {
			case lnrpc.Payment_SUCCEEDED:
				return status.Preimage, nil
			case lnrpc.Payment_FAILED:
				return lntypes.Preimage{}, fmt.Errorf(
					"%w: %s", ErrPaymentFailed, status.FailureReason,
				)
			}

		case err := <-errChan:
			return lntypes.Preimage{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)

		case <-ctx.Done():
			return lntypes.Preimage{}, ctx.Err()
		}
	}
}

// PayInvoiceAsync dispatches bolt11 and returns once lnd has accepted the
// attempt, without waiting for a terminal state. Cancellation of an
// in-flight async payment is not supported (§4.4).
func (g *Gateway) PayInvoiceAsync(ctx context.Context, bolt11 string,
	feeLimitSat btcutil.Amount) error {

	g.mu.Lock()
	defer g.mu.Unlock()

	request := lndclient.SendPaymentRequest{
		Invoice:      bolt11,
		FeeLimitMsat: lnwire.NewMSatFromSatoshis(feeLimitSat),
	}

	_, _, err := g.services.Router.SendPayment(ctx, request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	return nil
}
