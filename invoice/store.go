package invoice

import (
	"context"
	"time"

	"github.com/doodhwala/billing/id"
)

// Store reads invoices. Invoices are created and paid only through the
// atomic primitives on store.Store.
type Store interface {
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetInvoiceByPeriod(ctx context.Context, customerID id.CustomerID, periodStart, periodEnd time.Time) (*Invoice, error)
	ListInvoices(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Invoice, error)
}

type ListOpts struct {
	Status PaymentStatus
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// Matches reports whether inv passes the filters in opts. Status
// overdue is not stored, so it never matches here.
func (o ListOpts) Matches(inv *Invoice) bool {
	if o.Status != "" && inv.PaymentStatus != o.Status {
		return false
	}
	if !o.Start.IsZero() && inv.PeriodStart.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && inv.PeriodEnd.After(o.End) {
		return false
	}
	return true
}
