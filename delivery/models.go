// Package delivery models the daily delivery records created by the
// scheduler and later confirmed by delivery staff.
package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("billing: invalid delivery status transition")

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusMissed    Status = "missed"
	StatusPartial   Status = "partial"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusMissed, StatusPartial:
		return true
	}
	return false
}

// Billable reports whether items with this status are invoiced.
func (s Status) Billable() bool { return s == StatusDelivered }

// CanTransition reports whether a record may move from s to next.
// Delivered and missed are final.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDelivered || next == StatusMissed || next == StatusPartial
	case StatusPartial:
		return next == StatusDelivered || next == StatusMissed
	default:
		return false
	}
}

type Record struct {
	types.Entity
	ID          id.DeliveryID `json:"id"`
	CustomerID  id.CustomerID `json:"customer_id"`
	Date        time.Time     `json:"delivery_date"`
	Status      Status        `json:"status"`
	Items       []Item        `json:"items"`
	Notes       string        `json:"notes,omitempty"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
}

type Item struct {
	ID         id.ID          `json:"id"`
	DeliveryID id.DeliveryID  `json:"delivery_id"`
	ProductID  id.ProductID   `json:"product_id"`
	Quantity   types.Quantity `json:"quantity"`
	UnitPrice  types.Money    `json:"unit_price"`
	Total      types.Money    `json:"total_amount"`
}

// NewItem builds an item with Total = Quantity x UnitPrice.
func NewItem(deliveryID id.DeliveryID, productID id.ProductID, qty types.Quantity, unitPrice types.Money) Item {
	return Item{
		ID:         id.NewDeliveryItemID(),
		DeliveryID: deliveryID,
		ProductID:  productID,
		Quantity:   qty,
		UnitPrice:  unitPrice,
		Total:      unitPrice.Times(qty),
	}
}

// Total sums the item totals.
func (r *Record) Total(currency string) types.Money {
	total := types.Zero(currency)
	for _, it := range r.Items {
		total = total.Add(it.Total)
	}
	return total
}

// Transition moves the record to next, applying per-product quantity
// adjustments. Adjusted items get their totals recomputed; items
// adjusted to zero are dropped.
func (r *Record) Transition(next Status, adjustments map[id.ProductID]types.Quantity, at time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	if len(adjustments) > 0 && next == StatusMissed {
		return fmt.Errorf("%w: missed delivery takes no quantities", ErrInvalidTransition)
	}

	for pid := range adjustments {
		if !r.hasProduct(pid) {
			return fmt.Errorf("%w: product %s not in delivery", ErrInvalidTransition, pid)
		}
	}

	items := make([]Item, 0, len(r.Items))
	for _, it := range r.Items {
		if q, ok := adjustments[it.ProductID]; ok {
			if q < 0 {
				return fmt.Errorf("%w: negative quantity for %s", ErrInvalidTransition, it.ProductID)
			}
			it.Quantity = q
			it.Total = it.UnitPrice.Times(q)
		}
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}

	r.Items = items
	r.Status = next
	if next == StatusDelivered || next == StatusPartial {
		t := at.UTC()
		r.DeliveredAt = &t
	}
	r.Touch()
	return nil
}

func (r *Record) hasProduct(pid id.ProductID) bool {
	for _, it := range r.Items {
		if it.ProductID == pid {
			return true
		}
	}
	return false
}
