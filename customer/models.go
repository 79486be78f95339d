package customer

import (
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/types"
)

type Customer struct {
	types.Entity
	ID          id.CustomerID `json:"id"`
	Name        string        `json:"name"`
	Phone       string        `json:"phone,omitempty"`
	Address     string        `json:"address,omitempty"`
	Active      bool          `json:"active"`
	AutoDeliver bool          `json:"auto_deliver"`

	// CreditBalance and AdvanceBalance mirror the latest ledger running
	// balance. Only the ledger append path writes them.
	CreditBalance  types.Money `json:"credit_balance"`
	AdvanceBalance types.Money `json:"advance_balance"`

	// Billing overrides the engine's default tax/discount rule.
	Billing *pricing.Rule `json:"billing,omitempty"`
}

// SetBalance updates both cached balances from a ledger running balance.
func (c *Customer) SetBalance(balance types.Money) {
	c.CreditBalance = balance
	c.AdvanceBalance = types.Zero(balance.Currency)
	if balance.IsNegative() {
		c.AdvanceBalance = balance.Negate()
	}
}

// Schedulable reports whether the customer takes part in automatic
// delivery scheduling.
func (c *Customer) Schedulable() bool {
	return c.Active && c.AutoDeliver
}
