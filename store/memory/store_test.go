package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/types"
)

func seedCustomer(t *testing.T, s *Store) *customer.Customer {
	t.Helper()
	c := &customer.Customer{ID: id.NewCustomerID(), Name: "Asha", Active: true, Entity: types.NewEntity()}
	c.SetBalance(types.Zero("inr"))
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return c
}

func debit(customerID id.CustomerID, paise int64) *ledger.Entry {
	return &ledger.Entry{
		ID:         id.NewLedgerEntryID(),
		CustomerID: customerID,
		Date:       types.Date(2024, time.June, 30),
		Type:       ledger.EntryInvoice,
		Debit:      types.INR(paise),
		Credit:     types.INR(0),
	}
}

func credit(customerID id.CustomerID, paise int64) *ledger.Entry {
	return &ledger.Entry{
		ID:         id.NewLedgerEntryID(),
		CustomerID: customerID,
		Date:       types.Date(2024, time.July, 1),
		Type:       ledger.EntryPayment,
		Debit:      types.INR(0),
		Credit:     types.INR(paise),
	}
}

func testInvoice(customerID id.CustomerID, final int64) *invoice.Invoice {
	p := types.MonthPeriod(2024, time.June)
	return &invoice.Invoice{
		Entity:        types.NewEntity(),
		ID:            id.NewInvoiceID(),
		Number:        invoice.Number(p.Start, customerID),
		CustomerID:    customerID,
		PeriodStart:   p.Start,
		PeriodEnd:     p.End,
		TotalAmount:   types.INR(final),
		TaxAmount:     types.INR(0),
		FinalAmount:   types.INR(final),
		PaidAmount:    types.INR(0),
		PaymentStatus: invoice.StatusPending,
	}
}

func TestDeliveryUniquePerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	day := types.Date(2024, time.June, 1)

	first := &delivery.Record{ID: id.NewDeliveryID(), CustomerID: c.ID, Date: day, Status: delivery.StatusPending}
	if err := s.CreateDelivery(ctx, first); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}
	second := &delivery.Record{ID: id.NewDeliveryID(), CustomerID: c.ID, Date: day.Add(3 * time.Hour), Status: delivery.StatusPending}
	if err := s.CreateDelivery(ctx, second); !errors.Is(err, billing.ErrDeliveryExists) {
		t.Errorf("second delivery: got %v, want ErrDeliveryExists", err)
	}
}

func TestUpdateDeliveryGuardsStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	r := &delivery.Record{ID: id.NewDeliveryID(), CustomerID: c.ID, Date: types.Date(2024, time.June, 1), Status: delivery.StatusPending}
	if err := s.CreateDelivery(ctx, r); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	r.Status = delivery.StatusDelivered
	if err := s.UpdateDelivery(ctx, r, delivery.StatusPending); err != nil {
		t.Fatalf("UpdateDelivery: %v", err)
	}
	r.Status = delivery.StatusMissed
	if err := s.UpdateDelivery(ctx, r, delivery.StatusPending); !errors.Is(err, billing.ErrInvalidTransition) {
		t.Errorf("stale update: got %v, want ErrInvalidTransition", err)
	}

	got, _ := s.GetDelivery(ctx, r.ID)
	if got.Status != delivery.StatusDelivered {
		t.Errorf("status: got %s, want delivered", got.Status)
	}
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	r := &delivery.Record{
		ID:         id.NewDeliveryID(),
		CustomerID: c.ID,
		Date:       types.Date(2024, time.June, 1),
		Status:     delivery.StatusPending,
	}
	r.Items = []delivery.Item{delivery.NewItem(r.ID, id.NewProductID(), types.Units(1), types.Rupees(60))}
	if err := s.CreateDelivery(ctx, r); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	got, _ := s.GetDelivery(ctx, r.ID)
	got.Status = delivery.StatusMissed
	got.Items[0].Quantity = types.Units(9)

	again, _ := s.GetDelivery(ctx, r.ID)
	if again.Status != delivery.StatusPending || again.Items[0].Quantity != types.Units(1) {
		t.Errorf("stored record changed through a read: %+v", again)
	}
}

func TestAppendEntryChainsAndCaches(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	for _, e := range []*ledger.Entry{debit(c.ID, 12000), credit(c.ID, 5000), credit(c.ID, 9000)} {
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	latest, err := s.LatestEntry(ctx, c.ID)
	if err != nil {
		t.Fatalf("LatestEntry: %v", err)
	}
	if latest.Seq != 3 || !latest.RunningBalance.Equal(types.INR(-2000)) {
		t.Errorf("latest: got seq %d balance %v, want 3 and -₹20.00", latest.Seq, latest.RunningBalance)
	}

	got, _ := s.GetCustomer(ctx, c.ID)
	if !got.CreditBalance.Equal(types.INR(-2000)) || !got.AdvanceBalance.Equal(types.INR(2000)) {
		t.Errorf("cache: got credit %v advance %v", got.CreditBalance, got.AdvanceBalance)
	}

	// UpdateCustomer must not touch the cached balances.
	got.Name = "Asha K"
	got.SetBalance(types.INR(0))
	if err := s.UpdateCustomer(ctx, got); err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	after, _ := s.GetCustomer(ctx, c.ID)
	if after.Name != "Asha K" || !after.CreditBalance.Equal(types.INR(-2000)) {
		t.Errorf("after update: got name %q balance %v", after.Name, after.CreditBalance)
	}
}

func TestLatestEntryEmpty(t *testing.T) {
	s := New()
	c := seedCustomer(t, s)
	if _, err := s.LatestEntry(context.Background(), c.ID); !errors.Is(err, billing.ErrLedgerEmpty) {
		t.Errorf("got %v, want ErrLedgerEmpty", err)
	}
}

func TestPostInvoice(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	inv := testInvoice(c.ID, 12000)
	if err := s.PostInvoice(ctx, inv, debit(c.ID, 12000)); err != nil {
		t.Fatalf("PostInvoice: %v", err)
	}
	dup := testInvoice(c.ID, 12000)
	if err := s.PostInvoice(ctx, dup, debit(c.ID, 12000)); !errors.Is(err, billing.ErrInvoiceExists) {
		t.Errorf("duplicate: got %v, want ErrInvoiceExists", err)
	}

	entries, _ := s.ListEntries(ctx, c.ID, ledger.ListOpts{})
	if len(entries) != 1 {
		t.Errorf("entries: got %d, want 1", len(entries))
	}
}

func TestPostInvoiceRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	half := testInvoice(c.ID, 12000)
	half.PeriodEnd = types.Date(2024, time.June, 15)
	if err := s.PostInvoice(ctx, half, debit(c.ID, 12000)); err != nil {
		t.Fatalf("PostInvoice: %v", err)
	}

	tests := []struct {
		name       string
		start, end time.Time
		wantErr    bool
	}{
		{"whole month", types.Date(2024, time.June, 1), types.Date(2024, time.June, 30), true},
		{"shares last day", types.Date(2024, time.June, 15), types.Date(2024, time.June, 30), true},
		{"rest of month", types.Date(2024, time.June, 16), types.Date(2024, time.June, 30), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testInvoice(c.ID, 6000)
			inv.PeriodStart, inv.PeriodEnd = tt.start, tt.end
			err := s.PostInvoice(ctx, inv, debit(c.ID, 6000))
			if tt.wantErr {
				if !errors.Is(err, billing.ErrInvoiceExists) {
					t.Errorf("got %v, want ErrInvoiceExists", err)
				}
				return
			}
			if err != nil {
				t.Errorf("PostInvoice: %v", err)
			}
		})
	}

	entries, _ := s.ListEntries(ctx, c.ID, ledger.ListOpts{})
	if len(entries) != 2 {
		t.Errorf("entries: got %d, want 2", len(entries))
	}
}

func TestPostInvoiceRollsBackOnLedgerFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	s.InjectLedgerFault(func(*ledger.Entry) error { return errors.New("boom") })

	inv := testInvoice(c.ID, 12000)
	err := s.PostInvoice(ctx, inv, debit(c.ID, 12000))
	if !errors.Is(err, billing.ErrLedgerAppend) {
		t.Fatalf("got %v, want ErrLedgerAppend", err)
	}
	if _, err := s.GetInvoice(ctx, inv.ID); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Errorf("invoice after rollback: got %v, want ErrInvoiceNotFound", err)
	}
}

func TestApplyPayment(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		wantApplied int64
		wantExcess  int64
		wantStatus  invoice.PaymentStatus
	}{
		{"partial", 5000, 5000, 0, invoice.StatusPartial},
		{"exact", 12000, 12000, 0, invoice.StatusPaid},
		{"overpay", 15000, 12000, 3000, invoice.StatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := New()
			c := seedCustomer(t, s)
			inv := testInvoice(c.ID, 12000)
			if err := s.PostInvoice(ctx, inv, debit(c.ID, 12000)); err != nil {
				t.Fatalf("PostInvoice: %v", err)
			}

			p := &payment.Payment{
				ID:         id.NewPaymentID(),
				CustomerID: c.ID,
				InvoiceID:  inv.ID,
				Amount:     types.INR(tt.amount),
				Mode:       payment.ModeCash,
				Date:       types.Date(2024, time.July, 1),
			}
			cr := credit(c.ID, tt.amount)
			updated, err := s.ApplyPayment(ctx, p, cr)
			if err != nil {
				t.Fatalf("ApplyPayment: %v", err)
			}
			if p.AppliedAmount.Amount != tt.wantApplied || p.ExcessAmount.Amount != tt.wantExcess {
				t.Errorf("got applied %v excess %v, want %d and %d", p.AppliedAmount, p.ExcessAmount, tt.wantApplied, tt.wantExcess)
			}
			if updated.PaymentStatus != tt.wantStatus {
				t.Errorf("status: got %s, want %s", updated.PaymentStatus, tt.wantStatus)
			}
			if p.LedgerEntryID != cr.ID {
				t.Errorf("ledger entry: got %s, want %s", p.LedgerEntryID, cr.ID)
			}

			wantBalance := types.INR(12000 - tt.amount)
			if got, _ := s.GetCustomer(ctx, c.ID); !got.CreditBalance.Equal(wantBalance) {
				t.Errorf("balance: got %v, want %v", got.CreditBalance, wantBalance)
			}
		})
	}
}

func TestApplyPaymentAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)
	inv := testInvoice(c.ID, 12000)
	if err := s.PostInvoice(ctx, inv, debit(c.ID, 12000)); err != nil {
		t.Fatalf("PostInvoice: %v", err)
	}

	s.InjectLedgerFault(func(e *ledger.Entry) error {
		if e.Type == ledger.EntryPayment {
			return errors.New("boom")
		}
		return nil
	})
	p := &payment.Payment{ID: id.NewPaymentID(), CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.INR(5000), Mode: payment.ModeUPI}
	if _, err := s.ApplyPayment(ctx, p, credit(c.ID, 5000)); !errors.Is(err, billing.ErrLedgerAppend) {
		t.Fatalf("got %v, want ErrLedgerAppend", err)
	}

	got, _ := s.GetInvoice(ctx, inv.ID)
	if !got.PaidAmount.IsZero() || got.PaymentStatus != invoice.StatusPending {
		t.Errorf("invoice changed: paid %v status %s", got.PaidAmount, got.PaymentStatus)
	}
	if _, err := s.GetPayment(ctx, p.ID); !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("payment: got %v, want ErrPaymentNotFound", err)
	}
	if !p.AppliedAmount.IsZero() || !p.ExcessAmount.IsZero() || !p.LedgerEntryID.IsNil() {
		t.Errorf("payment fields set after rollback: applied %v excess %v entry %s", p.AppliedAmount, p.ExcessAmount, p.LedgerEntryID)
	}
}
