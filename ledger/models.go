// Package ledger models the append-only per-customer account.
//
// Each entry carries the running balance after it was applied:
//
//	RunningBalance[n] = RunningBalance[n-1] + Debit[n] - Credit[n]
//
// A positive balance is money the customer owes; a negative balance is
// credit held in advance.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

// ErrInvalidEntry is returned by Validate.
var ErrInvalidEntry = errors.New("billing: invalid ledger entry")

type EntryType string

const (
	EntryOpening    EntryType = "opening"
	EntryDelivery   EntryType = "delivery"
	EntryInvoice    EntryType = "invoice"
	EntryPayment    EntryType = "payment"
	EntryAdjustment EntryType = "adjustment"
	EntryRefund     EntryType = "refund"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryOpening, EntryDelivery, EntryInvoice, EntryPayment, EntryAdjustment, EntryRefund:
		return true
	}
	return false
}

type Entry struct {
	ID             id.LedgerEntryID `json:"id"`
	CustomerID     id.CustomerID    `json:"customer_id"`
	Seq            int64            `json:"seq"`
	Date           time.Time        `json:"date"`
	Type           EntryType        `json:"type"`
	Description    string           `json:"description"`
	Debit          types.Money      `json:"debit_amount"`
	Credit         types.Money      `json:"credit_amount"`
	RunningBalance types.Money      `json:"running_balance"`
	ReferenceID    string           `json:"reference_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Delta returns Debit - Credit.
func (e *Entry) Delta() types.Money {
	return e.Debit.Subtract(e.Credit)
}

// Validate checks the caller-supplied fields of an entry before append.
func (e *Entry) Validate() error {
	switch {
	case e.CustomerID.IsNil():
		return fmt.Errorf("%w: customer_id is required", ErrInvalidEntry)
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	case e.Debit.IsNegative() || e.Credit.IsNegative():
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidEntry)
	case e.Debit.IsZero() && e.Credit.IsZero():
		return fmt.Errorf("%w: debit or credit is required", ErrInvalidEntry)
	case e.Debit.Currency != e.Credit.Currency:
		return fmt.Errorf("%w: currency mismatch", ErrInvalidEntry)
	}
	return nil
}

// Chain fills Seq and RunningBalance of e as the successor of prev.
// prev is nil for a customer's first entry. Stores call Chain while they
// hold the customer's ledger lock.
func Chain(prev, e *Entry) {
	balance := types.Zero(e.Debit.Currency)
	var seq int64
	if prev != nil {
		balance = prev.RunningBalance
		seq = prev.Seq
	}
	e.Seq = seq + 1
	e.RunningBalance = balance.Add(e.Delta())
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}
