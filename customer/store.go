package customer

import (
	"context"

	"github.com/doodhwala/billing/id"
)

// Store persists customers. UpdateCustomer never writes the cached
// balances; those move only with ledger appends.
type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*Customer, error)
	ListCustomers(ctx context.Context, opts ListOpts) ([]*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
}

type ListOpts struct {
	ActiveOnly      bool
	AutoDeliverOnly bool
	Limit           int
	Offset          int
}

// Matches reports whether c passes the filters in opts.
func (o ListOpts) Matches(c *Customer) bool {
	if o.ActiveOnly && !c.Active {
		return false
	}
	if o.AutoDeliverOnly && !c.AutoDeliver {
		return false
	}
	return true
}
