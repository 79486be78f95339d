package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const quantityScale = 1000

// Quantity is an amount of product in thousandths of a unit, so half a
// litre is Milli(500) and two packets is Units(2).
type Quantity int64

// Units returns a whole-unit quantity.
func Units(n int64) Quantity { return Quantity(n * quantityScale) }

// Milli returns a quantity in thousandths of a unit.
func Milli(n int64) Quantity { return Quantity(n) }

// IsPositive reports q > 0.
func (q Quantity) IsPositive() bool { return q > 0 }

// Add returns q + other.
func (q Quantity) Add(other Quantity) Quantity { return q + other }

// String formats the quantity with up to three decimals, trimming zeros.
func (q Quantity) String() string {
	n := int64(q)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	whole, frac := n/quantityScale, n%quantityScale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%03d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, s)
}

// ParseQuantity parses a decimal such as "2", "0.5" or "1.250".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("quantity: empty value")
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 3 {
		return 0, fmt.Errorf("quantity: %q has more than three decimals", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quantity: parse %q: %w", s, err)
	}
	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac+strings.Repeat("0", 3-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("quantity: parse %q: %w", s, err)
		}
	}
	v := w*quantityScale + f
	if neg {
		v = -v
	}
	return Quantity(v), nil
}

// MarshalJSON encodes the quantity as a decimal string, e.g. "0.5".
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = v
	return nil
}
