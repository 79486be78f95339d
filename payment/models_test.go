package payment

import (
	"testing"

	"github.com/doodhwala/billing/id"
)

func TestModeValid(t *testing.T) {
	tests := []struct {
		mode Mode
		want bool
	}{
		{ModeCash, true},
		{ModeUPI, true},
		{ModeBankTransfer, true},
		{ModeCheque, true},
		{ModeCard, true},
		{ModeOther, true},
		{"", false},
		{"CASH", false},
		{"crypto", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.Valid(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasInvoice(t *testing.T) {
	p := &Payment{ID: id.NewPaymentID(), CustomerID: id.NewCustomerID()}
	if p.HasInvoice() {
		t.Error("general credit payment reports an invoice")
	}
	p.InvoiceID = id.NewInvoiceID()
	if !p.HasInvoice() {
		t.Error("invoice payment reports no invoice")
	}
}
