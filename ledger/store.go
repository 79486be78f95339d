package ledger

import (
	"context"

	"github.com/doodhwala/billing/id"
)

// Store reads ledger entries. Entries are written only by the AppendEntry
// primitive on store.Store.
type Store interface {
	ListEntries(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Entry, error)
	LatestEntry(ctx context.Context, customerID id.CustomerID) (*Entry, error)
}

// ListOpts pages through entries in Seq order.
type ListOpts struct {
	Limit  int
	Offset int
}
