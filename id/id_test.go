package id_test

import (
	"strings"
	"testing"

	"github.com/doodhwala/billing/id"
)

func TestConstructorsRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"CustomerID", id.NewCustomerID, id.ParseCustomerID, "cust_"},
		{"ProductID", id.NewProductID, id.ParseProductID, "prod_"},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID, "csub_"},
		{"VacationID", id.NewVacationID, id.ParseVacationID, "vac_"},
		{"DeliveryID", id.NewDeliveryID, id.ParseDeliveryID, "dlv_"},
		{"InvoiceID", id.NewInvoiceID, id.ParseInvoiceID, "inv_"},
		{"LedgerEntryID", id.NewLedgerEntryID, id.ParseLedgerEntryID, "led_"},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID, "pay_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Fatalf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"customer rejects invoice", id.NewInvoiceID().String(), id.ParseCustomerID},
		{"invoice rejects payment", id.NewPaymentID().String(), id.ParseInvoiceID},
		{"delivery rejects customer", id.NewCustomerID().String(), id.ParseDeliveryID},
		{"payment rejects ledger", id.NewLedgerEntryID().String(), id.ParsePaymentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestShort(t *testing.T) {
	i := id.NewCustomerID()
	s := i.Short(6)
	if len(s) != 6 {
		t.Fatalf("expected 6 chars, got %q", s)
	}
	if !strings.HasSuffix(strings.ToUpper(i.String()), s) {
		t.Errorf("%q is not a suffix of %q", s, i.String())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewInvoiceID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, _ = nilID.MarshalText()
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewPaymentID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, _ = nilID.Value()
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
	if err := scanned2.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewLedgerEntryID()
	b := id.NewLedgerEntryID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewLedgerEntryID() calls returned the same ID: %q", a.String())
	}
}
