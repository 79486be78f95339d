// Package store defines the unified persistence interface of the billing
// engine.
//
// Besides plain reads and writes per entity, every backend implements
// three composite primitives which must each run as one indivisible unit:
//
//   - AppendEntry: lock the customer's ledger tail, read the latest
//     running balance, insert the entry with the next balance and sequence
//     number, then refresh the customer's cached balances.
//   - PostInvoice: insert an invoice with its line items and append its
//     ledger debit. If the debit cannot be appended no invoice remains.
//   - ApplyPayment: cap the payment against the invoice (if any), update
//     the invoice, insert the payment and append the ledger credit for
//     the full amount. Either everything is written or nothing is.
//
// Two concurrent appends for the same customer serialize. Appends for
// different customers do not block each other.
package store

import (
	"context"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/vacation"
)

// Store is the unified storage interface for all billing entities.
type Store interface {
	customer.Store
	product.Store
	subscription.Store
	vacation.Store
	delivery.Store
	invoice.Store
	ledger.Store
	payment.Store

	// AppendEntry fills e.Seq and e.RunningBalance and persists e.
	AppendEntry(ctx context.Context, e *ledger.Entry) error

	// PostInvoice persists inv and appends debit. It returns an
	// already-exists error when the customer has an invoice for the
	// same period.
	PostInvoice(ctx context.Context, inv *invoice.Invoice, debit *ledger.Entry) error

	// ApplyPayment fills p.AppliedAmount, p.ExcessAmount and
	// p.LedgerEntryID, persists p and appends credit. When p targets an
	// invoice the updated invoice is returned, otherwise nil.
	ApplyPayment(ctx context.Context, p *payment.Payment, credit *ledger.Entry) (*invoice.Invoice, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
