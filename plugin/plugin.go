// Package plugin provides an extensible plugin system for the billing engine.
// Plugins hook into lifecycle events. Notification hooks fire only after
// the corresponding write has been committed.
package plugin

import (
	"context"
	"io"
	"time"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/document"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// BatchKind names a batch operation.
type BatchKind string

const (
	BatchSchedule BatchKind = "schedule"
	BatchInvoice  BatchKind = "invoice"
)

// BatchSummary describes a finished batch run.
type BatchSummary struct {
	Kind      BatchKind
	Period    types.Period
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Amount    types.Money
	Elapsed   time.Duration
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryScheduled is called for each delivery record created.
type OnDeliveryScheduled interface {
	Plugin
	OnDeliveryScheduled(ctx context.Context, r *delivery.Record) error
}

// OnDeliveryStatusChanged is called after delivery staff update a record.
type OnDeliveryStatusChanged interface {
	Plugin
	OnDeliveryStatusChanged(ctx context.Context, r *delivery.Record, from delivery.Status) error
}

// OnScheduleCompleted is called once per scheduled date.
type OnScheduleCompleted interface {
	Plugin
	OnScheduleCompleted(ctx context.Context, summary BatchSummary) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated is called when an invoice and its ledger debit are committed.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicesCompleted is called once per monthly invoice run.
type OnInvoicesCompleted interface {
	Plugin
	OnInvoicesCompleted(ctx context.Context, summary BatchSummary) error
}

// OnInvoicePaid is called when a payment settles an invoice in full.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Payment and ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called after a payment commits. Customer
// notifications belong here.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, p *payment.Payment) error
}

// OnLedgerEntryAppended is called for every committed ledger entry.
type OnLedgerEntryAppended interface {
	Plugin
	OnLedgerEntryAppended(ctx context.Context, e *ledger.Entry) error
}

// OnConsistencyFailure is called when a ledger append fails after a
// dependent write.
type OnConsistencyFailure interface {
	Plugin
	OnConsistencyFailure(ctx context.Context, op string, customerID id.CustomerID, err error) error
}

// ──────────────────────────────────────────────────
// Tax calculators
// ──────────────────────────────────────────────────

// TaxCalculator computes tax and discount for customers without a
// customer-specific rule when the engine has no default rule.
type TaxCalculator interface {
	Plugin
	CalculateTax(ctx context.Context, c *customer.Customer, total types.Money) (pricing.Breakdown, error)
}

// ──────────────────────────────────────────────────
// Invoice formatters
// ──────────────────────────────────────────────────

// InvoiceFormatter renders invoice documents for download.
type InvoiceFormatter interface {
	Plugin
	Format() string // "pdf", "html", "txt", etc.
	Render(ctx context.Context, doc *document.Invoice, w io.Writer) error
}
