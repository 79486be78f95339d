// Package pricing applies the flat tax and discount rule used when an
// invoice is generated.
package pricing

import (
	"errors"
	"fmt"

	"github.com/doodhwala/billing/types"
)

// ErrInvalidRule is returned by Validate for out-of-range rates.
var ErrInvalidRule = errors.New("billing: invalid tax/discount rule")

// Rule is a flat tax and discount expressed in basis points of the
// invoice total, plus an optional fixed discount in the smallest unit.
type Rule struct {
	TaxBasisPoints      int64 `json:"tax_bp"`
	DiscountBasisPoints int64 `json:"discount_bp"`
	FlatDiscount        int64 `json:"flat_discount"`
}

// Breakdown is the result of applying a Rule to a total.
// Final == Total + Tax - Discount always holds.
type Breakdown struct {
	Total    types.Money `json:"total"`
	Tax      types.Money `json:"tax"`
	Discount types.Money `json:"discount"`
	Final    types.Money `json:"final"`
}

// IsZero reports whether the rule neither taxes nor discounts.
func (r Rule) IsZero() bool {
	return r.TaxBasisPoints == 0 && r.DiscountBasisPoints == 0 && r.FlatDiscount == 0
}

// Validate checks the rule's rates.
func (r Rule) Validate() error {
	switch {
	case r.TaxBasisPoints < 0 || r.TaxBasisPoints > 10000:
		return fmt.Errorf("%w: tax_bp %d not in [0, 10000]", ErrInvalidRule, r.TaxBasisPoints)
	case r.DiscountBasisPoints < 0 || r.DiscountBasisPoints > 10000:
		return fmt.Errorf("%w: discount_bp %d not in [0, 10000]", ErrInvalidRule, r.DiscountBasisPoints)
	case r.FlatDiscount < 0:
		return fmt.Errorf("%w: flat_discount %d is negative", ErrInvalidRule, r.FlatDiscount)
	}
	return nil
}

// Apply computes tax and discount for total. Tax is charged on the total;
// the discount is capped so the final amount never goes below zero.
func (r Rule) Apply(total types.Money) Breakdown {
	tax := total.BasisPoints(r.TaxBasisPoints)
	discount := total.BasisPoints(r.DiscountBasisPoints).
		Add(types.New(r.FlatDiscount, total.Currency))

	if limit := total.Add(tax); discount.GreaterThan(limit) {
		discount = limit
	}

	return Breakdown{
		Total:    total,
		Tax:      tax,
		Discount: discount,
		Final:    total.Add(tax).Subtract(discount),
	}
}
