package billing

import "github.com/doodhwala/billing/types"

// Re-export common types so callers don't have to import the types package.

type (
	Money    = types.Money
	Quantity = types.Quantity
	Period   = types.Period
	Entity   = types.Entity
)

var (
	INR         = types.INR
	Rupees      = types.Rupees
	Zero        = types.Zero
	Sum         = types.Sum
	Units       = types.Units
	Milli       = types.Milli
	Day         = types.Day
	Date        = types.Date
	MonthPeriod = types.MonthPeriod
	NewEntity   = types.NewEntity
)
