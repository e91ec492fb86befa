package swapdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/lightninglabs/loopout/swapdb/sqlc"
)

// LoopOutState mirrors sqlc.LoopOutState at the Store's public boundary so
// callers never need to import the sqlc package directly.
type LoopOutState = sqlc.LoopOutState

// InvoiceState mirrors sqlc.InvoiceState at the Store's public boundary.
type InvoiceState = sqlc.InvoiceState

const (
	LoopOutStateInitiated = sqlc.LoopOutStateInitiated
	LoopOutStateConfirmed = sqlc.LoopOutStateConfirmed
	LoopOutStateClaimed   = sqlc.LoopOutStateClaimed
	LoopOutStateTimeout   = sqlc.LoopOutStateTimeout

	InvoiceStateOpen      = sqlc.InvoiceStateOpen
	InvoiceStateSettled   = sqlc.InvoiceStateSettled
	InvoiceStateCancelled = sqlc.InvoiceStateCancelled
)

// LoopOut is the root entity of a swap.
type LoopOut struct {
	ID    int64
	State LoopOutState
}

// Invoice is the LN invoice bound to a LoopOut.
type Invoice struct {
	ID               int64
	LoopOutID        int64
	PaymentRequest   string
	PaymentHash      [32]byte
	PaymentPreimage  *[32]byte
	AmountSat        int64
	State            InvoiceState
}

// Script is the persisted Taproot HTLC output definition.
type Script struct {
	ID                  int64
	LoopOutID           int64
	Address             string
	ExternalTapkey      string
	InternalTapkey      string
	InternalTapkeyTweak string
	Tree                [][]byte
	CltvExpiry          uint32
	RemotePubkey        string
	LocalPubkey         string
	LocalPubkeyIndex    uint32
}

// Utxo is the on-chain funding output of a Script.
type Utxo struct {
	ID        int64
	ScriptID  int64
	Txid      string
	Vout      uint32
	AmountSat int64
}

// FullLoopOut is the join of LoopOut, Invoice, Script and Utxo returned by
// reads.
type FullLoopOut struct {
	LoopOut LoopOut
	Invoice Invoice
	Script  Script
	Utxo    Utxo
}

// FullLoopOutInsert bundles everything InsertFullLoopOut needs to insert a
// complete swap record in one all-or-nothing transaction.
type FullLoopOutInsert struct {
	Invoice Invoice
	Script  Script
	Utxo    Utxo
}

// Store is the loopout server's persistence facade: CRUD on the four
// entities plus the read-only join, each acquiring a fresh pooled
// connection and never holding one across a suspension point, per §4.5.
type Store struct {
	db       *BaseDB
	queries  *sqlc.Queries
	executor *TransactionExecutor[*sqlc.Queries]
}

// NewStore wraps db with the query layer and transaction executor.
func NewStore(db *BaseDB) *Store {
	queries := sqlc.New(db, db.Backend())

	executor := NewTransactionExecutor(db, func(tx *sql.Tx) *sqlc.Queries {
		return queries.WithTx(tx)
	})

	return &Store{db: db, queries: queries, executor: executor}
}

// InsertLoopOut inserts a new LoopOut in state INITIATED.
func (s *Store) InsertLoopOut(ctx context.Context) (LoopOut, error) {
	row, err := s.queries.InsertLoopOut(ctx, sqlc.InsertLoopOutParams{
		State: sqlc.LoopOutStateInitiated,
	})
	if err != nil {
		return LoopOut{}, fmt.Errorf("failed to insert loop_out: %w", err)
	}

	return LoopOut{ID: row.ID, State: row.State}, nil
}

// InsertInvoice inserts invoice, referencing loopOutID.
func (s *Store) InsertInvoice(ctx context.Context, loopOutID int64, invoice Invoice) (Invoice, error) {
	row, err := s.queries.InsertInvoice(ctx, sqlc.InsertInvoiceParams{
		LoopOutID:       loopOutID,
		PaymentRequest:  invoice.PaymentRequest,
		PaymentHash:     hex.EncodeToString(invoice.PaymentHash[:]),
		PaymentPreimage: preimageToNullString(invoice.PaymentPreimage),
		AmountSat:       invoice.AmountSat,
		State:           sqlc.InvoiceStateOpen,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to insert invoice: %w", err)
	}

	return invoiceFromRow(row)
}

// InsertScript inserts script, referencing loopOutID.
func (s *Store) InsertScript(ctx context.Context, loopOutID int64, script Script) (Script, error) {
	row, err := s.queries.InsertScript(ctx, sqlc.InsertScriptParams{
		LoopOutID:           loopOutID,
		Address:             script.Address,
		ExternalTapkey:      script.ExternalTapkey,
		InternalTapkey:      script.InternalTapkey,
		InternalTapkeyTweak: script.InternalTapkeyTweak,
		Tree:                encodeTree(script.Tree),
		CltvExpiry:          int64(script.CltvExpiry),
		RemotePubkey:        script.RemotePubkey,
		LocalPubkey:         script.LocalPubkey,
		LocalPubkeyIndex:    int64(script.LocalPubkeyIndex),
	})
	if err != nil {
		return Script{}, fmt.Errorf("failed to insert script: %w", err)
	}

	return scriptFromRow(row)
}

// InsertUtxo inserts utxo, referencing scriptID.
func (s *Store) InsertUtxo(ctx context.Context, scriptID int64, utxo Utxo) (Utxo, error) {
	row, err := s.queries.InsertUtxo(ctx, sqlc.InsertUtxoParams{
		ScriptID:  scriptID,
		Txid:      utxo.Txid,
		Vout:      int64(utxo.Vout),
		AmountSat: utxo.AmountSat,
	})
	if err != nil {
		return Utxo{}, fmt.Errorf("failed to insert utxo: %w", err)
	}

	return Utxo{
		ID: row.ID, ScriptID: row.ScriptID, Txid: row.Txid,
		Vout: uint32(row.Vout), AmountSat: row.AmountSat,
	}, nil
}

// InsertFullLoopOut inserts a LoopOut plus its Invoice, Script and Utxo in a
// single transaction: all rows commit together, or none do. This is the
// storage half of §4.6's happy path (steps 3, 5, 9, 12), used directly by
// tests; the coordinator itself interleaves other work between inserts and
// so calls InsertLoopOut, InsertInvoice, InsertScript and InsertUtxo one at
// a time.
func (s *Store) InsertFullLoopOut(ctx context.Context, in FullLoopOutInsert) (FullLoopOut, error) {
	var result FullLoopOut

	err := s.executor.ExecTx(ctx, func(q *sqlc.Queries) error {
		loRow, err := q.InsertLoopOut(ctx, sqlc.InsertLoopOutParams{
			State: sqlc.LoopOutStateInitiated,
		})
		if err != nil {
			return fmt.Errorf("failed to insert loop_out: %w", err)
		}

		invRow, err := q.InsertInvoice(ctx, sqlc.InsertInvoiceParams{
			LoopOutID:       loRow.ID,
			PaymentRequest:  in.Invoice.PaymentRequest,
			PaymentHash:     hex.EncodeToString(in.Invoice.PaymentHash[:]),
			PaymentPreimage: preimageToNullString(in.Invoice.PaymentPreimage),
			AmountSat:       in.Invoice.AmountSat,
			State:           sqlc.InvoiceStateOpen,
		})
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		scriptRow, err := q.InsertScript(ctx, sqlc.InsertScriptParams{
			LoopOutID:           loRow.ID,
			Address:             in.Script.Address,
			ExternalTapkey:      in.Script.ExternalTapkey,
			InternalTapkey:      in.Script.InternalTapkey,
			InternalTapkeyTweak: in.Script.InternalTapkeyTweak,
			Tree:                encodeTree(in.Script.Tree),
			CltvExpiry:          int64(in.Script.CltvExpiry),
			RemotePubkey:        in.Script.RemotePubkey,
			LocalPubkey:         in.Script.LocalPubkey,
			LocalPubkeyIndex:    int64(in.Script.LocalPubkeyIndex),
		})
		if err != nil {
			return fmt.Errorf("failed to insert script: %w", err)
		}

		utxoRow, err := q.InsertUtxo(ctx, sqlc.InsertUtxoParams{
			ScriptID:  scriptRow.ID,
			Txid:      in.Utxo.Txid,
			Vout:      int64(in.Utxo.Vout),
			AmountSat: in.Utxo.AmountSat,
		})
		if err != nil {
			return fmt.Errorf("failed to insert utxo: %w", err)
		}

		invoice, err := invoiceFromRow(invRow)
		if err != nil {
			return err
		}
		script, err := scriptFromRow(scriptRow)
		if err != nil {
			return err
		}

		result = FullLoopOut{
			LoopOut: LoopOut{ID: loRow.ID, State: loRow.State},
			Invoice: invoice,
			Script:  script,
			Utxo: Utxo{
				ID: utxoRow.ID, ScriptID: utxoRow.ScriptID,
				Txid: utxoRow.Txid, Vout: uint32(utxoRow.Vout),
				AmountSat: utxoRow.AmountSat,
			},
		}

		return nil
	})
	if err != nil {
		return FullLoopOut{}, err
	}

	return result, nil
}

// ErrNotFound is returned when GetFullLoopOut finds no matching row.
var ErrNotFound = fmt.Errorf("swapdb: not found")

// GetFullLoopOut inner-joins loop_out -> invoice -> script -> utxo filtered
// by invoice.payment_hash.
func (s *Store) GetFullLoopOut(ctx context.Context, paymentHash [32]byte) (FullLoopOut, error) {
	row, err := s.queries.GetFullLoopOutByPaymentHash(
		ctx, hex.EncodeToString(paymentHash[:]),
	)
	if err == sql.ErrNoRows {
		return FullLoopOut{}, ErrNotFound
	}
	if err != nil {
		return FullLoopOut{}, fmt.Errorf("failed to get full loop_out: %w", err)
	}

	invoice, err := invoiceFromRow(row.Invoice)
	if err != nil {
		return FullLoopOut{}, err
	}
	script, err := scriptFromRow(row.Script)
	if err != nil {
		return FullLoopOut{}, err
	}

	return FullLoopOut{
		LoopOut: LoopOut{ID: row.LoopOut.ID, State: row.LoopOut.State},
		Invoice: invoice,
		Script:  script,
		Utxo: Utxo{
			ID: row.Utxo.ID, ScriptID: row.Utxo.ScriptID, Txid: row.Utxo.Txid,
			Vout: uint32(row.Utxo.Vout), AmountSat: row.Utxo.AmountSat,
		},
	}, nil
}

// MaxLocalPubkeyIndex returns the highest local_pubkey_index committed to
// any Script, or -1 if none exist. KeyStore seeds its allocator from this
// at process startup (§4.1).
func (s *Store) MaxLocalPubkeyIndex(ctx context.Context) (int64, error) {
	return s.queries.MaxLocalPubkeyIndex(ctx)
}

// UpdateLoopOutState advances loopOutID to state. Callers (the reconciler)
// are responsible for only ever calling this with a forward transition.
func (s *Store) UpdateLoopOutState(ctx context.Context, loopOutID int64, state LoopOutState) error {
	return s.queries.UpdateLoopOutState(ctx, loopOutID, state)
}

// ListExpirable returns the ids of every non-terminal swap whose cltv_expiry
// has been reached at tipHeight, for the reconciler to move to TIMEOUT.
func (s *Store) ListExpirable(ctx context.Context, tipHeight uint32) ([]int64, error) {
	rows, err := s.queries.ListExpirable(ctx, int64(tipHeight))
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable loop_outs: %w", err)
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.LoopOutID
	}

	return ids, nil
}

// CancelInvoice marks invoiceID CANCELLED on a best-effort basis after an
// aborted swap (§7 LNFailure handling).
func (s *Store) CancelInvoice(ctx context.Context, invoiceID int64) error {
	return s.queries.UpdateInvoiceState(ctx, invoiceID, sqlc.InvoiceStateCancelled)
}

// SettleInvoice marks invoiceID SETTLED once the LN payment completes.
func (s *Store) SettleInvoice(ctx context.Context, invoiceID int64) error {
	return s.queries.UpdateInvoiceState(ctx, invoiceID, sqlc.InvoiceStateSettled)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func preimageToNullString(preimage *[32]byte) sql.NullString {
	if preimage == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: hex.EncodeToString(preimage[:]), Valid: true}
}

func invoiceFromRow(row sqlc.Invoice) (Invoice, error) {
	var paymentHash [32]byte
	hashBytes, err := hex.DecodeString(row.PaymentHash)
	if err != nil || len(hashBytes) != 32 {
		return Invoice{}, fmt.Errorf("corrupt payment_hash in row %d", row.ID)
	}
	copy(paymentHash[:], hashBytes)

	var preimage *[32]byte
	if row.PaymentPreimage.Valid {
		preimageBytes, err := hex.DecodeString(row.PaymentPreimage.String)
		if err != nil || len(preimageBytes) != 32 {
			return Invoice{}, fmt.Errorf("corrupt payment_preimage in row %d", row.ID)
		}
		var p [32]byte
		copy(p[:], preimageBytes)
		preimage = &p
	}

	return Invoice{
		ID: row.ID, LoopOutID: row.LoopOutID, PaymentRequest: row.PaymentRequest,
		PaymentHash: paymentHash, PaymentPreimage: preimage,
		AmountSat: row.AmountSat, State: row.State,
	}, nil
}

func scriptFromRow(row sqlc.Script) (Script, error) {
	return Script{
		ID: row.ID, LoopOutID: row.LoopOutID, Address: row.Address,
		ExternalTapkey: row.ExternalTapkey, InternalTapkey: row.InternalTapkey,
		InternalTapkeyTweak: row.InternalTapkeyTweak, Tree: decodeTree(row.Tree),
		CltvExpiry: uint32(row.CltvExpiry), RemotePubkey: row.RemotePubkey,
		LocalPubkey: row.LocalPubkey, LocalPubkeyIndex: uint32(row.LocalPubkeyIndex),
	}, nil
}
