package observability

import (
	"context"
	"testing"
	"time"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/types"
)

type fakeCounter struct{ value float64 }

func (c *fakeCounter) Inc()          { c.value++ }
func (c *fakeCounter) Add(v float64) { c.value += v }

type fakeHistogram struct{ observed []float64 }

func (h *fakeHistogram) Observe(v float64) { h.observed = append(h.observed, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestDeliveryStatusCounters(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	for _, s := range []delivery.Status{delivery.StatusDelivered, delivery.StatusDelivered, delivery.StatusMissed, delivery.StatusPartial} {
		_ = m.OnDeliveryStatusChanged(ctx, &delivery.Record{Status: s}, delivery.StatusPending)
	}

	tests := []struct {
		name string
		want float64
	}{
		{"billing.delivery.delivered", 2},
		{"billing.delivery.missed", 1},
		{"billing.delivery.partial", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.counters[tt.name].value; got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvoiceAndBatchMetrics(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	_ = m.OnInvoiceGenerated(ctx, &invoice.Invoice{FinalAmount: types.Rupees(1150)})
	_ = m.OnInvoicesCompleted(ctx, plugin.BatchSummary{Skipped: 3, Failed: 1, Elapsed: 250 * time.Millisecond})

	if got := f.counters["billing.invoice.generated"].value; got != 1 {
		t.Errorf("generated: got %v, want 1", got)
	}
	if got := f.histograms["billing.invoice.final_amount"].observed; len(got) != 1 || got[0] != 115000 {
		t.Errorf("final amount: got %v, want [115000]", got)
	}
	if got := f.counters["billing.invoice.skipped"].value; got != 3 {
		t.Errorf("skipped: got %v, want 3", got)
	}
	if got := f.histograms["billing.invoice.run.latency_ms"].observed; len(got) != 1 || got[0] != 250 {
		t.Errorf("latency: got %v, want [250]", got)
	}
}

func TestPaymentExcessCounter(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	_ = m.OnPaymentRecorded(ctx, &payment.Payment{Amount: types.Rupees(100), ExcessAmount: types.INR(0)})
	_ = m.OnPaymentRecorded(ctx, &payment.Payment{Amount: types.Rupees(300), ExcessAmount: types.Rupees(50)})

	if got := f.counters["billing.payment.recorded"].value; got != 2 {
		t.Errorf("recorded: got %v, want 2", got)
	}
	if got := f.counters["billing.payment.excess"].value; got != 1 {
		t.Errorf("excess: got %v, want 1", got)
	}
}
