package audithook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/types"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) recorder() Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func TestDeliveryStatusOutcome(t *testing.T) {
	tests := []struct {
		status delivery.Status
		want   string
	}{
		{delivery.StatusDelivered, OutcomeSuccess},
		{delivery.StatusMissed, OutcomeFailure},
		{delivery.StatusPartial, OutcomePartial},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			var c captured
			ext := New(c.recorder())
			r := &delivery.Record{ID: id.NewDeliveryID(), CustomerID: id.NewCustomerID(), Status: tt.status}
			if err := ext.OnDeliveryStatusChanged(context.Background(), r, delivery.StatusPending); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(c.events) != 1 {
				t.Fatalf("got %d events, want 1", len(c.events))
			}
			evt := c.events[0]
			if evt.Outcome != tt.want {
				t.Errorf("got %q, want %q", evt.Outcome, tt.want)
			}
			if evt.Metadata["from"] != "pending" || evt.Metadata["to"] != string(tt.status) {
				t.Errorf("metadata: got %v", evt.Metadata)
			}
		})
	}
}

func TestPaymentRecordedMetadata(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	p := &payment.Payment{
		ID:            id.NewPaymentID(),
		CustomerID:    id.NewCustomerID(),
		InvoiceID:     id.NewInvoiceID(),
		Amount:        types.Rupees(500),
		AppliedAmount: types.Rupees(300),
		ExcessAmount:  types.Rupees(200),
		Mode:          payment.ModeCash,
		Date:          types.Date(2024, time.July, 2),
	}
	_ = ext.OnPaymentRecorded(context.Background(), p)

	if len(c.events) != 1 {
		t.Fatalf("got %d events, want 1", len(c.events))
	}
	meta := c.events[0].Metadata
	if meta["excess"] != int64(20000) {
		t.Errorf("excess: got %v, want 20000", meta["excess"])
	}
	if meta["invoice_id"] != p.InvoiceID.String() {
		t.Errorf("invoice_id: got %v", meta["invoice_id"])
	}
}

func TestConsistencyFailureIsCritical(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	_ = ext.OnConsistencyFailure(context.Background(), "generate_invoice", id.NewCustomerID(), errors.New("ledger down"))

	evt := c.events[0]
	if evt.Severity != SeverityCritical || evt.Reason != "ledger down" {
		t.Errorf("got severity %q reason %q", evt.Severity, evt.Reason)
	}
}

func TestBatchWithFailuresIsPartial(t *testing.T) {
	var c captured
	ext := New(c.recorder())
	_ = ext.OnInvoicesCompleted(context.Background(), plugin.BatchSummary{
		Kind:      plugin.BatchInvoice,
		Period:    types.MonthPeriod(2024, time.June),
		Processed: 3,
		Succeeded: 2,
		Failed:    1,
		Amount:    types.Rupees(900),
	})
	if c.events[0].Outcome != OutcomePartial {
		t.Errorf("got %q, want %q", c.events[0].Outcome, OutcomePartial)
	}
}

func TestDisabledActions(t *testing.T) {
	var c captured
	ext := New(c.recorder(), WithDisabledActions(ActionLedgerEntry))

	_ = ext.OnConsistencyFailure(context.Background(), "op", id.NewCustomerID(), errors.New("x"))
	if len(c.events) != 1 {
		t.Fatalf("enabled action dropped: got %d events", len(c.events))
	}

	_ = ext.OnDeliveryScheduled(context.Background(), &delivery.Record{ID: id.NewDeliveryID(), CustomerID: id.NewCustomerID()})
	if len(c.events) != 2 {
		t.Fatalf("got %d events, want 2", len(c.events))
	}

	ext = New(c.recorder(), WithEnabledActions(ActionPaymentRecorded))
	_ = ext.OnDeliveryScheduled(context.Background(), &delivery.Record{ID: id.NewDeliveryID(), CustomerID: id.NewCustomerID()})
	if len(c.events) != 2 {
		t.Errorf("action outside the enabled set was recorded")
	}
}
