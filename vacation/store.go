package vacation

import (
	"context"
	"time"

	"github.com/doodhwala/billing/id"
)

// Store is read-mostly: the engine only asks whether a pause applies.
type Store interface {
	CreateVacation(ctx context.Context, v *Vacation) error
	ListVacations(ctx context.Context, customerID id.CustomerID) ([]*Vacation, error)
	IsOnVacation(ctx context.Context, customerID id.CustomerID, date time.Time) (bool, error)
}
