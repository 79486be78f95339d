package delivery

import (
	"context"
	"time"

	"github.com/doodhwala/billing/id"
)

// Store persists delivery records. CreateDelivery inserts the record and
// its items as one unit and fails with an already-exists error when the
// customer has a record for that date. UpdateDelivery writes status and
// items only while the stored status still equals from.
type Store interface {
	CreateDelivery(ctx context.Context, r *Record) error
	GetDelivery(ctx context.Context, deliveryID id.DeliveryID) (*Record, error)
	GetDeliveryByDate(ctx context.Context, customerID id.CustomerID, date time.Time) (*Record, error)
	ListDeliveries(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Record, error)
	UpdateDelivery(ctx context.Context, r *Record, from Status) error
}

// ListOpts filters deliveries. Start and End are inclusive days.
type ListOpts struct {
	Status Status
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// Matches reports whether r passes the filters in opts.
func (o ListOpts) Matches(r *Record) bool {
	if o.Status != "" && r.Status != o.Status {
		return false
	}
	if !o.Start.IsZero() && r.Date.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && r.Date.After(o.End) {
		return false
	}
	return true
}
