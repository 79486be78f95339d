// Package vacation models delivery pauses requested by customers.
package vacation

import (
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

type Vacation struct {
	types.Entity
	ID         id.VacationID `json:"id"`
	CustomerID id.CustomerID `json:"customer_id"`
	StartDate  time.Time     `json:"start_date"`
	EndDate    time.Time     `json:"end_date"` // inclusive
	Active     bool          `json:"active"`
	Reason     string        `json:"reason,omitempty"`
}

// Period returns the covered days.
func (v *Vacation) Period() types.Period {
	return types.NewPeriod(v.StartDate, v.EndDate)
}

// Covers reports whether the vacation is active on date.
func (v *Vacation) Covers(date time.Time) bool {
	return v.Active && v.Period().Contains(date)
}

// AnyCovers reports whether any of vs covers date.
func AnyCovers(vs []*Vacation, date time.Time) bool {
	for _, v := range vs {
		if v.Covers(date) {
			return true
		}
	}
	return false
}
