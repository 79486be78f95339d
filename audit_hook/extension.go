// Package audithook bridges billing lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit backend directly. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnDeliveryScheduled     = (*Extension)(nil)
	_ plugin.OnDeliveryStatusChanged = (*Extension)(nil)
	_ plugin.OnScheduleCompleted     = (*Extension)(nil)
	_ plugin.OnInvoiceGenerated      = (*Extension)(nil)
	_ plugin.OnInvoicesCompleted     = (*Extension)(nil)
	_ plugin.OnInvoicePaid           = (*Extension)(nil)
	_ plugin.OnPaymentRecorded       = (*Extension)(nil)
	_ plugin.OnLedgerEntryAppended   = (*Extension)(nil)
	_ plugin.OnConsistencyFailure    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges billing lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryScheduled implements plugin.OnDeliveryScheduled.
func (e *Extension) OnDeliveryScheduled(ctx context.Context, r *delivery.Record) error {
	return e.record(ctx, ActionDeliveryScheduled, SeverityInfo, OutcomeSuccess,
		ResourceDelivery, r.ID.String(), CategoryDelivery, nil,
		"customer_id", r.CustomerID.String(),
		"date", r.Date.Format("2006-01-02"),
		"items", len(r.Items),
	)
}

// OnDeliveryStatusChanged implements plugin.OnDeliveryStatusChanged.
func (e *Extension) OnDeliveryStatusChanged(ctx context.Context, r *delivery.Record, from delivery.Status) error {
	outcome := OutcomeSuccess
	switch r.Status {
	case delivery.StatusMissed:
		outcome = OutcomeFailure
	case delivery.StatusPartial:
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionDeliveryStatusChanged, SeverityInfo, outcome,
		ResourceDelivery, r.ID.String(), CategoryDelivery, nil,
		"customer_id", r.CustomerID.String(),
		"from", string(from),
		"to", string(r.Status),
	)
}

// OnScheduleCompleted implements plugin.OnScheduleCompleted.
func (e *Extension) OnScheduleCompleted(ctx context.Context, s plugin.BatchSummary) error {
	return e.recordBatch(ctx, ActionScheduleCompleted, ResourceSchedule, CategoryDelivery, s)
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (e *Extension) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"customer_id", inv.CustomerID.String(),
		"number", inv.Number,
		"final_amount", inv.FinalAmount.Amount,
		"currency", inv.FinalAmount.Currency,
	)
}

// OnInvoicesCompleted implements plugin.OnInvoicesCompleted.
func (e *Extension) OnInvoicesCompleted(ctx context.Context, s plugin.BatchSummary) error {
	return e.recordBatch(ctx, ActionInvoicesCompleted, ResourceInvoice, CategoryBilling, s)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"customer_id", inv.CustomerID.String(),
		"paid_amount", inv.PaidAmount.Amount,
	)
}

// ──────────────────────────────────────────────────
// Payment and ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, p *payment.Payment) error {
	kv := []any{
		"customer_id", p.CustomerID.String(),
		"amount", p.Amount.Amount,
		"applied", p.AppliedAmount.Amount,
		"excess", p.ExcessAmount.Amount,
		"mode", string(p.Mode),
	}
	if p.HasInvoice() {
		kv = append(kv, "invoice_id", p.InvoiceID.String())
	}
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil, kv...)
}

// OnLedgerEntryAppended implements plugin.OnLedgerEntryAppended.
func (e *Extension) OnLedgerEntryAppended(ctx context.Context, entry *ledger.Entry) error {
	return e.record(ctx, ActionLedgerEntry, SeverityInfo, OutcomeSuccess,
		ResourceLedger, entry.ID.String(), CategoryLedger, nil,
		"customer_id", entry.CustomerID.String(),
		"seq", entry.Seq,
		"type", string(entry.Type),
		"debit", entry.Debit.Amount,
		"credit", entry.Credit.Amount,
		"running_balance", entry.RunningBalance.Amount,
	)
}

// OnConsistencyFailure implements plugin.OnConsistencyFailure.
func (e *Extension) OnConsistencyFailure(ctx context.Context, op string, customerID id.CustomerID, err error) error {
	return e.record(ctx, ActionConsistencyFailure, SeverityCritical, OutcomeFailure,
		ResourceCustomer, customerID.String(), CategoryLedger, err,
		"op", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordBatch(ctx context.Context, action, resource, category string, s plugin.BatchSummary) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if s.Failed > 0 {
		outcome, severity = OutcomePartial, SeverityWarning
	}
	return e.record(ctx, action, severity, outcome,
		resource, s.Period.String(), category, nil,
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"amount", s.Amount.Amount,
		"elapsed_ms", s.Elapsed.Milliseconds(),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
