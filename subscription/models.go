package subscription

import (
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

type Subscription struct {
	types.Entity
	ID          id.SubscriptionID `json:"id"`
	CustomerID  id.CustomerID     `json:"customer_id"`
	ProductID   id.ProductID      `json:"product_id"`
	Quantity    types.Quantity    `json:"quantity"`
	CustomPrice *types.Money      `json:"custom_price,omitempty"`
	Pattern     DeliveryPattern   `json:"delivery_pattern"`
	StartDate   time.Time         `json:"start_date"`
	Active      bool              `json:"active"`
}

// DueOn reports whether the subscription should be delivered on date.
func (s *Subscription) DueOn(date time.Time) bool {
	return s.Active && s.Quantity.IsPositive() && s.Pattern.Includes(date, s.StartDate)
}

// UnitPrice returns the custom price when set, else base.
func (s *Subscription) UnitPrice(base types.Money) types.Money {
	if s.CustomPrice != nil {
		return *s.CustomPrice
	}
	return base
}
