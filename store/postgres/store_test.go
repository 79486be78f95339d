package postgres

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ledger step", errors.New("ERROR: billing_ledger_append: billing_customer_not_found: cus_1 (SQLSTATE P0001)"), billing.ErrLedgerAppend},
		{"invoice missing", errors.New("ERROR: billing_invoice_not_found: inv_1 (SQLSTATE P0001)"), billing.ErrInvoiceNotFound},
		{"invoice owner", errors.New("ERROR: billing_invoice_customer: inv_1 (SQLSTATE P0001)"), billing.ErrInvoiceCustomer},
		{"invoice overlap", errors.New("ERROR: billing_invoice_overlap: INV-202406-abc (SQLSTATE P0001)"), billing.ErrInvoiceExists},
		{"customer missing", errors.New("ERROR: billing_customer_not_found: cus_1 (SQLSTATE P0001)"), billing.ErrCustomerNotFound},
		{"product fk", errors.New(`ERROR: insert or update on table "billing_subscriptions" violates foreign key constraint "billing_subscriptions_product_id_fkey" (SQLSTATE 23503)`), billing.ErrProductNotFound},
		{"unique", errors.New(`ERROR: duplicate key value violates unique constraint "idx_billing_invoices_period" (SQLSTATE 23505)`), billing.ErrInvoiceExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("post invoice", tt.err, billing.ErrInvoiceExists)
			if !errors.Is(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if classify("noop", nil, billing.ErrInvoiceExists) != nil {
		t.Error("nil error should stay nil")
	}
	other := errors.New("connection reset")
	if got := classify("post invoice", other, billing.ErrInvoiceExists); !errors.Is(got, other) || errors.Is(got, billing.ErrInvoiceExists) {
		t.Errorf("unrelated error: got %v", got)
	}
}

func TestEntryDocumentMatchesColumns(t *testing.T) {
	e := &ledger.Entry{
		ID:         id.NewLedgerEntryID(),
		CustomerID: id.NewCustomerID(),
		Date:       time.Date(2024, time.June, 30, 18, 30, 0, 0, time.UTC),
		Type:       ledger.EntryInvoice,
		Debit:      types.INR(12000),
		Credit:     types.INR(0),
	}
	doc, err := entryDocument(e)
	if err != nil {
		t.Fatalf("entryDocument: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, col := range []string{"id", "customer_id", "date", "type", "debit", "credit", "currency", "reference_id", "created_at"} {
		if _, ok := fields[col]; !ok {
			t.Errorf("missing column %q in %s", col, doc)
		}
	}
	if fields["date"] != "2024-06-30T00:00:00Z" {
		t.Errorf("date: got %v, want the day at midnight", fields["date"])
	}
	if fields["debit"] != float64(12000) || fields["currency"] != "inr" {
		t.Errorf("amount: got %v %v", fields["debit"], fields["currency"])
	}
}

func TestInvoiceModelRoundTrip(t *testing.T) {
	p := types.MonthPeriod(2024, time.June)
	customerID := id.NewCustomerID()
	inv := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          id.NewInvoiceID(),
		Number:      invoice.Number(p.Start, customerID),
		CustomerID:  customerID,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		LineItems: []invoice.LineItem{{
			ID:          id.NewLineItemID(),
			ProductID:   id.NewProductID(),
			Description: "Cow milk",
			Quantity:    types.Units(2),
			UnitPrice:   types.Rupees(60),
			Amount:      types.Rupees(120),
		}},
		TotalAmount:    types.Rupees(120),
		TaxAmount:      types.INR(0),
		DiscountAmount: types.INR(0),
		FinalAmount:    types.Rupees(120),
		PaidAmount:     types.INR(0),
		PaymentStatus:  invoice.StatusPending,
		DueDate:        p.End.AddDate(0, 0, 7),
	}

	m, err := toInvoiceModel(inv)
	if err != nil {
		t.Fatalf("toInvoiceModel: %v", err)
	}
	got, err := fromInvoiceModel(m)
	if err != nil {
		t.Fatalf("fromInvoiceModel: %v", err)
	}
	if got.ID != inv.ID || !got.FinalAmount.Equal(inv.FinalAmount) || len(got.LineItems) != 1 {
		t.Errorf("got %+v", got)
	}
	if got.LineItems[0].Quantity != types.Units(2) {
		t.Errorf("quantity: got %v, want 2", got.LineItems[0].Quantity)
	}
}

func TestSubscriptionModelCustomPrice(t *testing.T) {
	price := types.Rupees(55)
	sub := &subscription.Subscription{
		Entity:      types.NewEntity(),
		ID:          id.NewSubscriptionID(),
		CustomerID:  id.NewCustomerID(),
		ProductID:   id.NewProductID(),
		Quantity:    types.Milli(1500),
		CustomPrice: &price,
		Pattern:     subscription.DeliveryPattern{Kind: subscription.PatternDaily},
		StartDate:   types.Date(2024, time.June, 1),
		Active:      true,
	}
	m, err := toSubscriptionModel(sub)
	if err != nil {
		t.Fatalf("toSubscriptionModel: %v", err)
	}
	if m.CustomPrice == nil || *m.CustomPrice != 5500 || m.Currency != "inr" {
		t.Fatalf("custom price: got %v %q", m.CustomPrice, m.Currency)
	}

	got, err := fromSubscriptionModel(m)
	if err != nil {
		t.Fatalf("fromSubscriptionModel: %v", err)
	}
	if got.CustomPrice == nil || !got.CustomPrice.Equal(price) {
		t.Errorf("got %v, want %v", got.CustomPrice, price)
	}
	if got.Quantity != types.Milli(1500) {
		t.Errorf("quantity: got %v, want 1.5", got.Quantity)
	}
}

func TestRuleRoundTrip(t *testing.T) {
	if raw := marshalRule(nil); raw != nil {
		t.Errorf("nil rule: got %s, want nil", raw)
	}
	r := &pricing.Rule{TaxBasisPoints: 500}
	got, err := unmarshalRule(marshalRule(r))
	if err != nil {
		t.Fatalf("unmarshalRule: %v", err)
	}
	if got == nil || got.TaxBasisPoints != 500 {
		t.Errorf("got %+v", got)
	}
}
