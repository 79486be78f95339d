// Package payment models payments received from customers.
package payment

import (
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

type Mode string

const (
	ModeCash         Mode = "cash"
	ModeUPI          Mode = "upi"
	ModeBankTransfer Mode = "bank_transfer"
	ModeCheque       Mode = "cheque"
	ModeCard         Mode = "card"
	ModeOther        Mode = "other"
)

// Valid reports whether m is a known payment mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeBankTransfer, ModeCheque, ModeCard, ModeOther:
		return true
	}
	return false
}

// Payment is immutable once recorded. Amount is always credited in full
// to the ledger; AppliedAmount is the part settled against InvoiceID and
// ExcessAmount the part left as general credit.
type Payment struct {
	types.Entity
	ID            id.PaymentID     `json:"id"`
	CustomerID    id.CustomerID    `json:"customer_id"`
	InvoiceID     id.InvoiceID     `json:"invoice_id,omitzero"`
	Amount        types.Money      `json:"amount"`
	AppliedAmount types.Money      `json:"applied_amount"`
	ExcessAmount  types.Money      `json:"excess_amount"`
	Mode          Mode             `json:"mode"`
	Date          time.Time        `json:"date"`
	Notes         string           `json:"notes,omitempty"`
	LedgerEntryID id.LedgerEntryID `json:"ledger_entry_id"`
}

// HasInvoice reports whether the payment targets an invoice.
func (p *Payment) HasInvoice() bool { return !p.InvoiceID.IsNil() }
