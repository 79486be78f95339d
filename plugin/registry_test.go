package plugin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/payment"
)

type recorder struct {
	name     string
	payments atomic.Int32
	paid     atomic.Int32
	fail     bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnPaymentRecorded(context.Context, *payment.Payment) error {
	r.payments.Add(1)
	if r.fail {
		return errors.New("notify failed")
	}
	return nil
}

func (r *recorder) OnInvoicePaid(context.Context, *invoice.Invoice) error {
	r.paid.Add(1)
	return nil
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnPaymentRecorded(ctx context.Context, _ *payment.Payment) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", fail: true}

	if err := r.Register(a); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 2 {
		t.Errorf("Count: got %d, want 2", r.Count())
	}

	ctx := context.Background()
	r.EmitPaymentRecorded(ctx, &payment.Payment{})
	r.EmitInvoicePaid(ctx, &invoice.Invoice{})

	if a.payments.Load() != 1 || b.payments.Load() != 1 {
		t.Errorf("payments: got %d/%d, want 1/1", a.payments.Load(), b.payments.Load())
	}
	if a.paid.Load() != 1 {
		t.Errorf("paid: got %d, want 1", a.paid.Load())
	}
	if r.Get("b") == nil || r.Get("missing") != nil {
		t.Error("Get returned unexpected result")
	}
}

func TestCallTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := r.Register(slow{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitPaymentRecorded(context.Background(), &payment.Payment{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}

func TestImplementedInterfaces(t *testing.T) {
	got := implementedInterfaces(&recorder{name: "x"})
	want := map[string]bool{"OnInvoicePaid": true, "OnPaymentRecorded": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected interface %s", name)
		}
	}
}
