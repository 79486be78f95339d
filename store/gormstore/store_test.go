package gormstore

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/types"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"translated", gorm.ErrDuplicatedKey, billing.ErrDeliveryExists},
		{"postgres text", errors.New(`ERROR: duplicate key value violates unique constraint "idx_billing_deliveries_customer_date" (SQLSTATE 23505)`), billing.ErrDeliveryExists},
		{"mysql text", errors.New("Error 1062 (23000): Duplicate entry 'cus_1-2024-06-01' for key 'idx_billing_deliveries_customer_date'"), billing.ErrDeliveryExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapWriteError("create delivery", tt.err, billing.ErrDeliveryExists); !errors.Is(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if mapWriteError("create delivery", nil, billing.ErrDeliveryExists) != nil {
		t.Error("nil error should stay nil")
	}
	other := errors.New("connection refused")
	if got := mapWriteError("create delivery", other, billing.ErrDeliveryExists); errors.Is(got, billing.ErrDeliveryExists) {
		t.Errorf("unrelated error mapped to conflict: %v", got)
	}
}

func TestNotFound(t *testing.T) {
	if got := notFound(gorm.ErrRecordNotFound, billing.ErrLedgerEmpty); !errors.Is(got, billing.ErrLedgerEmpty) {
		t.Errorf("got %v, want ErrLedgerEmpty", got)
	}
	other := errors.New("timeout")
	if got := notFound(other, billing.ErrLedgerEmpty); got != other {
		t.Errorf("got %v, want the original error", got)
	}
}

func TestDeliveryRowNormalizesDate(t *testing.T) {
	r := &delivery.Record{
		Entity:     types.NewEntity(),
		ID:         id.NewDeliveryID(),
		CustomerID: id.NewCustomerID(),
		Date:       time.Date(2024, time.June, 1, 6, 45, 0, 0, time.UTC),
		Status:     delivery.StatusPending,
	}
	r.Items = []delivery.Item{delivery.NewItem(r.ID, id.NewProductID(), types.Units(2), types.Rupees(60))}

	row, err := toDeliveryRow(r)
	if err != nil {
		t.Fatalf("toDeliveryRow: %v", err)
	}
	if !row.DeliveryDate.Equal(types.Date(2024, time.June, 1)) {
		t.Errorf("date: got %s, want 2024-06-01 00:00", row.DeliveryDate)
	}

	got, err := row.toRecord()
	if err != nil {
		t.Fatalf("toRecord: %v", err)
	}
	if len(got.Items) != 1 || !got.Items[0].Total.Equal(types.Rupees(120)) {
		t.Errorf("items: got %+v", got.Items)
	}
}

func TestPaymentRowGeneralCredit(t *testing.T) {
	p := &payment.Payment{
		Entity:        types.NewEntity(),
		ID:            id.NewPaymentID(),
		CustomerID:    id.NewCustomerID(),
		Amount:        types.Rupees(200),
		AppliedAmount: types.INR(0),
		ExcessAmount:  types.Rupees(200),
		Mode:          payment.ModeUPI,
		Date:          types.Date(2024, time.July, 1),
	}
	row := toPaymentRow(p)
	if row.InvoiceID != "" || row.LedgerEntryID != "" {
		t.Errorf("general credit row: got invoice %q entry %q", row.InvoiceID, row.LedgerEntryID)
	}
	got, err := row.toPayment()
	if err != nil {
		t.Fatalf("toPayment: %v", err)
	}
	if got.HasInvoice() || !got.ExcessAmount.Equal(types.Rupees(200)) {
		t.Errorf("got %+v", got)
	}
}
