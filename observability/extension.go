// Package observability provides a metrics extension for the billing engine
// that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryScheduled     = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnScheduleCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated      = (*MetricsExtension)(nil)
	_ plugin.OnInvoicesCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid           = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded       = (*MetricsExtension)(nil)
	_ plugin.OnLedgerEntryAppended   = (*MetricsExtension)(nil)
	_ plugin.OnConsistencyFailure    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a billing plugin to automatically track billing metrics.
// Amounts are observed in the currency's smallest unit.
type MetricsExtension struct {
	factory MetricFactory

	// Delivery metrics
	DeliveriesScheduled Counter
	DeliveriesDelivered Counter
	DeliveriesMissed    Counter
	DeliveriesPartial   Counter
	ScheduleSkipped     Counter
	ScheduleFailed      Counter
	ScheduleLatency     Histogram

	// Invoice metrics
	InvoiceGenerated Counter
	InvoicePaid      Counter
	InvoiceSkipped   Counter
	InvoiceFailed    Counter
	InvoiceTotal     Histogram
	InvoiceLatency   Histogram

	// Payment metrics
	PaymentRecorded Counter
	PaymentAmount   Histogram
	PaymentExcess   Counter

	// Ledger metrics
	LedgerEntries       Counter
	ConsistencyFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		DeliveriesScheduled: factory.Counter("billing.delivery.scheduled"),
		DeliveriesDelivered: factory.Counter("billing.delivery.delivered"),
		DeliveriesMissed:    factory.Counter("billing.delivery.missed"),
		DeliveriesPartial:   factory.Counter("billing.delivery.partial"),
		ScheduleSkipped:     factory.Counter("billing.schedule.skipped"),
		ScheduleFailed:      factory.Counter("billing.schedule.failed"),
		ScheduleLatency:     factory.Histogram("billing.schedule.latency_ms"),

		InvoiceGenerated: factory.Counter("billing.invoice.generated"),
		InvoicePaid:      factory.Counter("billing.invoice.paid"),
		InvoiceSkipped:   factory.Counter("billing.invoice.skipped"),
		InvoiceFailed:    factory.Counter("billing.invoice.failed"),
		InvoiceTotal:     factory.Histogram("billing.invoice.final_amount"),
		InvoiceLatency:   factory.Histogram("billing.invoice.run.latency_ms"),

		PaymentRecorded: factory.Counter("billing.payment.recorded"),
		PaymentAmount:   factory.Histogram("billing.payment.amount"),
		PaymentExcess:   factory.Counter("billing.payment.excess"),

		LedgerEntries:       factory.Counter("billing.ledger.entries"),
		ConsistencyFailures: factory.Counter("billing.ledger.consistency_failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryScheduled implements plugin.OnDeliveryScheduled.
func (m *MetricsExtension) OnDeliveryScheduled(_ context.Context, _ *delivery.Record) error {
	m.DeliveriesScheduled.Inc()
	return nil
}

// OnDeliveryStatusChanged implements plugin.OnDeliveryStatusChanged.
func (m *MetricsExtension) OnDeliveryStatusChanged(_ context.Context, r *delivery.Record, _ delivery.Status) error {
	switch r.Status {
	case delivery.StatusDelivered:
		m.DeliveriesDelivered.Inc()
	case delivery.StatusMissed:
		m.DeliveriesMissed.Inc()
	case delivery.StatusPartial:
		m.DeliveriesPartial.Inc()
	}
	return nil
}

// OnScheduleCompleted implements plugin.OnScheduleCompleted.
func (m *MetricsExtension) OnScheduleCompleted(_ context.Context, s plugin.BatchSummary) error {
	m.ScheduleSkipped.Add(float64(s.Skipped))
	m.ScheduleFailed.Add(float64(s.Failed))
	m.ScheduleLatency.Observe(float64(s.Elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceTotal.Observe(float64(inv.FinalAmount.Amount))
	return nil
}

// OnInvoicesCompleted implements plugin.OnInvoicesCompleted.
func (m *MetricsExtension) OnInvoicesCompleted(_ context.Context, s plugin.BatchSummary) error {
	m.InvoiceSkipped.Add(float64(s.Skipped))
	m.InvoiceFailed.Add(float64(s.Failed))
	m.InvoiceLatency.Observe(float64(s.Elapsed.Milliseconds()))
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment and ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, p *payment.Payment) error {
	m.PaymentRecorded.Inc()
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	if p.ExcessAmount.IsPositive() {
		m.PaymentExcess.Inc()
	}
	return nil
}

// OnLedgerEntryAppended implements plugin.OnLedgerEntryAppended.
func (m *MetricsExtension) OnLedgerEntryAppended(_ context.Context, _ *ledger.Entry) error {
	m.LedgerEntries.Inc()
	return nil
}

// OnConsistencyFailure implements plugin.OnConsistencyFailure.
func (m *MetricsExtension) OnConsistencyFailure(_ context.Context, _ string, _ id.CustomerID, _ error) error {
	m.ConsistencyFailures.Inc()
	return nil
}
