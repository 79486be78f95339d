package pricing

import (
	"errors"
	"testing"

	"github.com/doodhwala/billing/types"
)

func TestRuleApply(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		total    types.Money
		tax      int64
		discount int64
		final    int64
	}{
		{"zero rule", Rule{}, types.Rupees(120), 0, 0, 12000},
		{"5% tax", Rule{TaxBasisPoints: 500}, types.Rupees(120), 600, 0, 12600},
		{"10% discount", Rule{DiscountBasisPoints: 1000}, types.Rupees(120), 0, 1200, 10800},
		{"tax and flat discount", Rule{TaxBasisPoints: 500, FlatDiscount: 1000}, types.Rupees(120), 600, 1000, 11600},
		{"discount capped", Rule{FlatDiscount: 50000}, types.Rupees(120), 0, 12000, 0},
		{"rounding", Rule{TaxBasisPoints: 1800}, types.INR(333), 60, 0, 393},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.rule.Apply(tt.total)
			if b.Tax.Amount != tt.tax {
				t.Errorf("Tax: got %d, want %d", b.Tax.Amount, tt.tax)
			}
			if b.Discount.Amount != tt.discount {
				t.Errorf("Discount: got %d, want %d", b.Discount.Amount, tt.discount)
			}
			if b.Final.Amount != tt.final {
				t.Errorf("Final: got %d, want %d", b.Final.Amount, tt.final)
			}
			if want := b.Total.Add(b.Tax).Subtract(b.Discount); !b.Final.Equal(want) {
				t.Errorf("Final %v != Total + Tax - Discount %v", b.Final, want)
			}
		})
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"zero", Rule{}, false},
		{"max", Rule{TaxBasisPoints: 10000, DiscountBasisPoints: 10000}, false},
		{"negative tax", Rule{TaxBasisPoints: -1}, true},
		{"discount over 100%", Rule{DiscountBasisPoints: 10001}, true},
		{"negative flat", Rule{FlatDiscount: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("got %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRule) {
				t.Errorf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}
