package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
)

// DefaultTimeout bounds each plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onDeliveryScheduled     []OnDeliveryScheduled
	onDeliveryStatusChanged []OnDeliveryStatusChanged
	onScheduleCompleted     []OnScheduleCompleted
	onInvoiceGenerated      []OnInvoiceGenerated
	onInvoicesCompleted     []OnInvoicesCompleted
	onInvoicePaid           []OnInvoicePaid
	onPaymentRecorded       []OnPaymentRecorded
	onLedgerEntryAppended   []OnLedgerEntryAppended
	onConsistencyFailure    []OnConsistencyFailure
	taxCalculators          []TaxCalculator
	invoiceFormatters       map[string]InvoiceFormatter
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:            slog.Default(),
		timeout:           DefaultTimeout,
		invoiceFormatters: make(map[string]InvoiceFormatter),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnDeliveryScheduled); ok {
		r.onDeliveryScheduled = append(r.onDeliveryScheduled, v)
	}
	if v, ok := p.(OnDeliveryStatusChanged); ok {
		r.onDeliveryStatusChanged = append(r.onDeliveryStatusChanged, v)
	}
	if v, ok := p.(OnScheduleCompleted); ok {
		r.onScheduleCompleted = append(r.onScheduleCompleted, v)
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
	}
	if v, ok := p.(OnInvoicesCompleted); ok {
		r.onInvoicesCompleted = append(r.onInvoicesCompleted, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}
	if v, ok := p.(OnLedgerEntryAppended); ok {
		r.onLedgerEntryAppended = append(r.onLedgerEntryAppended, v)
	}
	if v, ok := p.(OnConsistencyFailure); ok {
		r.onConsistencyFailure = append(r.onConsistencyFailure, v)
	}
	if v, ok := p.(TaxCalculator); ok {
		r.taxCalculators = append(r.taxCalculators, v)
	}
	if v, ok := p.(InvoiceFormatter); ok {
		r.invoiceFormatters[v.Format()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnDeliveryScheduled", reflect.TypeFor[OnDeliveryScheduled]()},
	{"OnDeliveryStatusChanged", reflect.TypeFor[OnDeliveryStatusChanged]()},
	{"OnScheduleCompleted", reflect.TypeFor[OnScheduleCompleted]()},
	{"OnInvoiceGenerated", reflect.TypeFor[OnInvoiceGenerated]()},
	{"OnInvoicesCompleted", reflect.TypeFor[OnInvoicesCompleted]()},
	{"OnInvoicePaid", reflect.TypeFor[OnInvoicePaid]()},
	{"OnPaymentRecorded", reflect.TypeFor[OnPaymentRecorded]()},
	{"OnLedgerEntryAppended", reflect.TypeFor[OnLedgerEntryAppended]()},
	{"OnConsistencyFailure", reflect.TypeFor[OnConsistencyFailure]()},
	{"TaxCalculator", reflect.TypeFor[TaxCalculator]()},
	{"InvoiceFormatter", reflect.TypeFor[InvoiceFormatter]()},
}

// implementedInterfaces returns the hook names implemented by p.
func implementedInterfaces(p Plugin) []string {
	var out []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in hooks, logging failures. A failing or
// slow plugin never fails the operation that emitted the event.
func emit[T Plugin](ctx context.Context, r *Registry, event string, hooks func() []T, call func(T) error) {
	r.mu.RLock()
	plugins := hooks()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin "+event+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitDeliveryScheduled emits a delivery scheduled event.
func (r *Registry) EmitDeliveryScheduled(ctx context.Context, rec *delivery.Record) {
	emit(ctx, r, "OnDeliveryScheduled", func() []OnDeliveryScheduled { return r.onDeliveryScheduled },
		func(p OnDeliveryScheduled) error { return p.OnDeliveryScheduled(ctx, rec) })
}

// EmitDeliveryStatusChanged emits a delivery status change event.
func (r *Registry) EmitDeliveryStatusChanged(ctx context.Context, rec *delivery.Record, from delivery.Status) {
	emit(ctx, r, "OnDeliveryStatusChanged", func() []OnDeliveryStatusChanged { return r.onDeliveryStatusChanged },
		func(p OnDeliveryStatusChanged) error { return p.OnDeliveryStatusChanged(ctx, rec, from) })
}

// EmitScheduleCompleted emits a schedule completed event.
func (r *Registry) EmitScheduleCompleted(ctx context.Context, s BatchSummary) {
	emit(ctx, r, "OnScheduleCompleted", func() []OnScheduleCompleted { return r.onScheduleCompleted },
		func(p OnScheduleCompleted) error { return p.OnScheduleCompleted(ctx, s) })
}

// EmitInvoiceGenerated emits an invoice generated event.
func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceGenerated", func() []OnInvoiceGenerated { return r.onInvoiceGenerated },
		func(p OnInvoiceGenerated) error { return p.OnInvoiceGenerated(ctx, inv) })
}

// EmitInvoicesCompleted emits an invoice run completed event.
func (r *Registry) EmitInvoicesCompleted(ctx context.Context, s BatchSummary) {
	emit(ctx, r, "OnInvoicesCompleted", func() []OnInvoicesCompleted { return r.onInvoicesCompleted },
		func(p OnInvoicesCompleted) error { return p.OnInvoicesCompleted(ctx, s) })
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoicePaid", func() []OnInvoicePaid { return r.onInvoicePaid },
		func(p OnInvoicePaid) error { return p.OnInvoicePaid(ctx, inv) })
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentRecorded", func() []OnPaymentRecorded { return r.onPaymentRecorded },
		func(p OnPaymentRecorded) error { return p.OnPaymentRecorded(ctx, pay) })
}

// EmitLedgerEntryAppended emits a ledger entry appended event.
func (r *Registry) EmitLedgerEntryAppended(ctx context.Context, e *ledger.Entry) {
	emit(ctx, r, "OnLedgerEntryAppended", func() []OnLedgerEntryAppended { return r.onLedgerEntryAppended },
		func(p OnLedgerEntryAppended) error { return p.OnLedgerEntryAppended(ctx, e) })
}

// EmitConsistencyFailure emits a consistency failure event.
func (r *Registry) EmitConsistencyFailure(ctx context.Context, op string, customerID id.CustomerID, err error) {
	emit(ctx, r, "OnConsistencyFailure", func() []OnConsistencyFailure { return r.onConsistencyFailure },
		func(p OnConsistencyFailure) error { return p.OnConsistencyFailure(ctx, op, customerID, err) })
}

// TaxCalculators returns all registered tax calculators.
func (r *Registry) TaxCalculators() []TaxCalculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TaxCalculator, len(r.taxCalculators))
	copy(result, r.taxCalculators)
	return result
}

// InvoiceFormatter returns the formatter for format, or nil.
func (r *Registry) InvoiceFormatter(format string) InvoiceFormatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invoiceFormatters[format]
}

// Formats lists the registered invoice formats.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.invoiceFormatters))
	for f := range r.invoiceFormatters {
		out = append(out, f)
	}
	return out
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
