package payment

import (
	"context"

	"github.com/doodhwala/billing/id"
)

// Store reads payments. Payments are written by the ApplyPayment
// primitive on store.Store.
type Store interface {
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Payment, error)
}

type ListOpts struct {
	InvoiceID id.InvoiceID
	Limit     int
	Offset    int
}
