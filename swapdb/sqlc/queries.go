package sqlc

import (
	"context"
	"database/sql"
	"fmt"
)

// ph renders the n-th bind placeholder for the backend this Queries talks
// to: sqlite's driver accepts positional "?", lib/pq requires "$n".
func (q *Queries) ph(n int) string {
	if q.backend == BackendTypePostgres {
		return fmt.Sprintf("$%d", n)
	}

	return "?"
}

// InsertLoopOutParams holds the bind parameters for InsertLoopOut.
type InsertLoopOutParams struct {
	State LoopOutState
}

// InsertLoopOut inserts a new loop_outs row and returns it with its
// server-assigned id and timestamps.
func (q *Queries) InsertLoopOut(ctx context.Context, arg InsertLoopOutParams) (LoopOut, error) {
	query := fmt.Sprintf(`
		INSERT INTO loop_outs (state, created_at, updated_at)
		VALUES (%s, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, q.ph(1))

	row, err := q.insertReturning(ctx, query, []interface{}{arg.State},
		"SELECT id, state, created_at, updated_at FROM loop_outs WHERE id = ")
	if err != nil {
		return LoopOut{}, err
	}

	var lo LoopOut
	if err := row.Scan(&lo.ID, &lo.State, &lo.CreatedAt, &lo.UpdatedAt); err != nil {
		return LoopOut{}, fmt.Errorf("failed to scan inserted loop_out: %w", err)
	}

	return lo, nil
}

// UpdateLoopOutState advances a loop_out's state. Callers are responsible
// for enforcing the forward-only, terminal-exclusive state machine;
// swapdb.Store never writes a regressing transition.
func (q *Queries) UpdateLoopOutState(ctx context.Context, id int64, state LoopOutState) error {
	query := fmt.Sprintf(`
		UPDATE loop_outs SET state = %s, updated_at = CURRENT_TIMESTAMP
		WHERE id = %s
	`, q.ph(1), q.ph(2))

	_, err := q.db.ExecContext(ctx, query, state, id)
	return err
}

// InsertInvoiceParams holds the bind parameters for InsertInvoice.
type InsertInvoiceParams struct {
	LoopOutID       int64
	PaymentRequest  string
	PaymentHash     string
	PaymentPreimage sql.NullString
	AmountSat       int64
	State           InvoiceState
}

// InsertInvoice inserts a new invoices row referencing loop_out_id.
func (q *Queries) InsertInvoice(ctx context.Context, arg InsertInvoiceParams) (Invoice, error) {
	query := fmt.Sprintf(`
		INSERT INTO invoices (
			loop_out_id, payment_request, payment_hash, payment_preimage,
			amount_sat, state, created_at, updated_at
		) VALUES (%s, %s, %s, %s, %s, %s, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, q.ph(1), q.ph(2), q.ph(3), q.ph(4), q.ph(5), q.ph(6))

	args := []interface{}{
		arg.LoopOutID, arg.PaymentRequest, arg.PaymentHash,
		arg.PaymentPreimage, arg.AmountSat, arg.State,
	}

	row, err := q.insertReturning(ctx, query, args,
		`SELECT id, loop_out_id, payment_request, payment_hash,
			payment_preimage, amount_sat, state, created_at, updated_at
		FROM invoices WHERE id = `)
	if err != nil {
		return Invoice{}, err
	}

	var inv Invoice
	if err := row.Scan(
		&inv.ID, &inv.LoopOutID, &inv.PaymentRequest, &inv.PaymentHash,
		&inv.PaymentPreimage, &inv.AmountSat, &inv.State, &inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return Invoice{}, fmt.Errorf("failed to scan inserted invoice: %w", err)
	}

	return inv, nil
}

// UpdateInvoiceState updates an invoice's lifecycle state (OPEN -> SETTLED
// or OPEN -> CANCELLED).
func (q *Queries) UpdateInvoiceState(ctx context.Context, id int64, state InvoiceState) error {
	query := fmt.Sprintf(`
		UPDATE invoices SET state = %s, updated_at = CURRENT_TIMESTAMP
		WHERE id = %s
	`, q.ph(1), q.ph(2))

	_, err := q.db.ExecContext(ctx, query, state, id)
	return err
}

// InsertScriptParams holds the bind parameters for InsertScript.
type InsertScriptParams struct {
	LoopOutID           int64
	Address             string
	ExternalTapkey      string
	InternalTapkey      string
	InternalTapkeyTweak string
	Tree                []byte
	CltvExpiry          int64
	RemotePubkey        string
	LocalPubkey         string
	LocalPubkeyIndex    int64
}

// InsertScript inserts the HTLC's persisted definition.
func (q *Queries) InsertScript(ctx context.Context, arg InsertScriptParams) (Script, error) {
	query := fmt.Sprintf(`
		INSERT INTO scripts (
			loop_out_id, address, external_tapkey, internal_tapkey,
			internal_tapkey_tweak, tree, cltv_expiry, remote_pubkey,
			local_pubkey, local_pubkey_index, created_at, updated_at
		) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, q.ph(1), q.ph(2), q.ph(3), q.ph(4), q.ph(5), q.ph(6), q.ph(7),
		q.ph(8), q.ph(9), q.ph(10))

	args := []interface{}{
		arg.LoopOutID, arg.Address, arg.ExternalTapkey, arg.InternalTapkey,
		arg.InternalTapkeyTweak, arg.Tree, arg.CltvExpiry, arg.RemotePubkey,
		arg.LocalPubkey, arg.LocalPubkeyIndex,
	}

	row, err := q.insertReturning(ctx, query, args,
		`SELECT id, loop_out_id, address, external_tapkey, internal_tapkey,
			internal_tapkey_tweak, tree, cltv_expiry, remote_pubkey,
			local_pubkey, local_pubkey_index, created_at, updated_at
		FROM scripts WHERE id = `)
	if err != nil {
		return Script{}, err
	}

	var s Script
	if err := row.Scan(
		&s.ID, &s.LoopOutID, &s.Address, &s.ExternalTapkey, &s.InternalTapkey,
		&s.InternalTapkeyTweak, &s.Tree, &s.CltvExpiry, &s.RemotePubkey,
		&s.LocalPubkey, &s.LocalPubkeyIndex, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return Script{}, fmt.Errorf("failed to scan inserted script: %w", err)
	}

	return s, nil
}

// MaxLocalPubkeyIndex returns the highest local_pubkey_index committed to
// any Script row, or -1 if no scripts exist yet. KeyStore seeds its
// monotonic counter from this at startup.
func (q *Queries) MaxLocalPubkeyIndex(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := q.db.QueryRowContext(
		ctx, `SELECT MAX(local_pubkey_index) FROM scripts`,
	).Scan(&max)
	if err != nil {
		return -1, fmt.Errorf("failed to query max pubkey index: %w", err)
	}

	if !max.Valid {
		return -1, nil
	}

	return max.Int64, nil
}

// InsertUtxoParams holds the bind parameters for InsertUtxo.
type InsertUtxoParams struct {
	ScriptID  int64
	Txid      string
	Vout      int64
	AmountSat int64
}

// InsertUtxo inserts the funding UTXO of a Script.
func (q *Queries) InsertUtxo(ctx context.Context, arg InsertUtxoParams) (Utxo, error) {
	query := fmt.Sprintf(`
		INSERT INTO utxos (script_id, txid, vout, amount_sat, created_at, updated_at)
		VALUES (%s, %s, %s, %s, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, q.ph(1), q.ph(2), q.ph(3), q.ph(4))

	args := []interface{}{arg.ScriptID, arg.Txid, arg.Vout, arg.AmountSat}

	row, err := q.insertReturning(ctx, query, args,
		`SELECT id, script_id, txid, vout, amount_sat, created_at, updated_at
		FROM utxos WHERE id = `)
	if err != nil {
		return Utxo{}, err
	}

	var u Utxo
	if err := row.Scan(
		&u.ID, &u.ScriptID, &u.Txid, &u.Vout, &u.AmountSat, &u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return Utxo{}, fmt.Errorf("failed to scan inserted utxo: %w", err)
	}

	return u, nil
}

// FullLoopOutRow is the flattened result of the loop_out/invoice/script/utxo
// inner join GetFullLoopOut performs.
type FullLoopOutRow struct {
	LoopOut LoopOut
	Invoice Invoice
	Script  Script
	Utxo    Utxo
}

// GetFullLoopOutByPaymentHash inner-joins loop_out -> invoice -> script ->
// utxo filtered by invoice.payment_hash.
func (q *Queries) GetFullLoopOutByPaymentHash(ctx context.Context, paymentHash string) (FullLoopOutRow, error) {
	query := fmt.Sprintf(`
		SELECT
			lo.id, lo.state, lo.created_at, lo.updated_at,
			i.id, i.loop_out_id, i.payment_request, i.payment_hash,
			i.payment_preimage, i.amount_sat, i.state, i.created_at, i.updated_at,
			s.id, s.loop_out_id, s.address, s.external_tapkey, s.internal_tapkey,
			s.internal_tapkey_tweak, s.tree, s.cltv_expiry, s.remote_pubkey,
			s.local_pubkey, s.local_pubkey_index, s.created_at, s.updated_at,
			u.id, u.script_id, u.txid, u.vout, u.amount_sat, u.created_at, u.updated_at
		FROM loop_outs lo
		INNER JOIN invoices i ON i.loop_out_id = lo.id
		INNER JOIN scripts s ON s.loop_out_id = lo.id
		INNER JOIN utxos u ON u.script_id = s.id
		WHERE i.payment_hash = %s
	`, q.ph(1))

	var row FullLoopOutRow
	err := q.db.QueryRowContext(ctx, query, paymentHash).Scan(
		&row.LoopOut.ID, &row.LoopOut.State, &row.LoopOut.CreatedAt, &row.LoopOut.UpdatedAt,
		&row.Invoice.ID, &row.Invoice.LoopOutID, &row.Invoice.PaymentRequest,
		&row.Invoice.PaymentHash, &row.Invoice.PaymentPreimage, &row.Invoice.AmountSat,
		&row.Invoice.State, &row.Invoice.CreatedAt, &row.Invoice.UpdatedAt,
		&row.Script.ID, &row.Script.LoopOutID, &row.Script.Address,
		&row.Script.ExternalTapkey, &row.Script.InternalTapkey,
		&row.Script.InternalTapkeyTweak, &row.Script.Tree, &row.Script.CltvExpiry,
		&row.Script.RemotePubkey, &row.Script.LocalPubkey, &row.Script.LocalPubkeyIndex,
		&row.Script.CreatedAt, &row.Script.UpdatedAt,
		&row.Utxo.ID, &row.Utxo.ScriptID, &row.Utxo.Txid, &row.Utxo.Vout,
		&row.Utxo.AmountSat, &row.Utxo.CreatedAt, &row.Utxo.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return FullLoopOutRow{}, sql.ErrNoRows
	}
	if err != nil {
		return FullLoopOutRow{}, fmt.Errorf("failed to query full loop_out: %w", err)
	}

	return row, nil
}

// ListExpirableRow is one row of ListExpirable: just enough to advance a
// loop_out's state without paying for the full four-table join.
type ListExpirableRow struct {
	LoopOutID  int64
	CltvExpiry int64
}

// ListExpirable returns the loop_out/cltv_expiry pairs for every non-terminal
// swap (INITIATED or CONFIRMED) whose script has reached tipHeight. The
// reconciler uses this to find swaps to move to TIMEOUT.
func (q *Queries) ListExpirable(ctx context.Context, tipHeight int64) ([]ListExpirableRow, error) {
	query := fmt.Sprintf(`
		SELECT lo.id, s.cltv_expiry
		FROM loop_outs lo
		INNER JOIN scripts s ON s.loop_out_id = lo.id
		WHERE lo.state IN (%s, %s) AND s.cltv_expiry <= %s
	`, q.ph(1), q.ph(2), q.ph(3))

	rows, err := q.db.QueryContext(
		ctx, query, LoopOutStateInitiated, LoopOutStateConfirmed, tipHeight,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expirable loop_outs: %w", err)
	}
	defer rows.Close()

	var out []ListExpirableRow
	for rows.Next() {
		var row ListExpirableRow
		if err := rows.Scan(&row.LoopOutID, &row.CltvExpiry); err != nil {
			return nil, fmt.Errorf("failed to scan expirable loop_out: %w", err)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// insertReturning executes an INSERT and then re-selects the row by its new
// id. modernc.org/sqlite implements LastInsertId directly; lib/pq does not,
// so for Postgres this method appends a RETURNING id clause to insertQuery
// and scans the id from that instead.
func (q *Queries) insertReturning(ctx context.Context, insertQuery string,
	args []interface{}, selectPrefix string) (*sql.Row, error) {

	if q.backend == BackendTypePostgres {
		insertQuery += " RETURNING id"
		var id int64
		if err := q.db.QueryRowContext(ctx, insertQuery, args...).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert: %w", err)
		}

		return q.db.QueryRowContext(ctx, selectPrefix+q.ph(1), id), nil
	}

	res, err := q.db.ExecContext(ctx, insertQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	selectQuery := selectPrefix + q.ph(1)
	return q.db.QueryRowContext(ctx, selectQuery, id), nil
}
