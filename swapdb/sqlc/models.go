// Package sqlc holds the generated-shape query layer swapdb is built on: a
// typed Queries struct with one exported method per SQL statement, and a
// row struct per table. It is hand-written in the idiom the sqlc generator
// emits (the same shape taproot-assets' own tapdb package uses), since
// sqlc itself is a build-time code generator this repo cannot invoke; only
// the shape is reused, not the tool.
package sqlc

import (
	"database/sql"
	"time"
)

// LoopOutState is the literal state token stored in loop_outs.state.
type LoopOutState string

const (
	LoopOutStateInitiated LoopOutState = "INITIATED"
	LoopOutStateConfirmed LoopOutState = "CONFIRMED"
	LoopOutStateClaimed   LoopOutState = "CLAIMED"
	LoopOutStateTimeout   LoopOutState = "TIMEOUT"
)

// InvoiceState is the literal state token stored in invoices.state.
type InvoiceState string

const (
	InvoiceStateOpen      InvoiceState = "OPEN"
	InvoiceStateSettled   InvoiceState = "SETTLED"
	InvoiceStateCancelled InvoiceState = "CANCELLED"
)

// LoopOut is the row shape of the loop_outs table.
type LoopOut struct {
	ID        int64
	State     LoopOutState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invoice is the row shape of the invoices table.
type Invoice struct {
	ID               int64
	LoopOutID        int64
	PaymentRequest   string
	PaymentHash      string
	PaymentPreimage  sql.NullString
	AmountSat        int64
	State            InvoiceState
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Script is the row shape of the scripts table.
type Script struct {
	ID                  int64
	LoopOutID           int64
	Address             string
	ExternalTapkey      string
	InternalTapkey      string
	InternalTapkeyTweak string
	Tree                []byte // TLV-encoded ordered leaf script list.
	CltvExpiry          int64
	RemotePubkey        string
	LocalPubkey         string
	LocalPubkeyIndex    int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Utxo is the row shape of the utxos table.
type Utxo struct {
	ID        int64
	ScriptID  int64
	Txid      string
	Vout      int64
	AmountSat int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
