package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doodhwala/billing/types"
)

// parseAmount reads a major-unit decimal such as "200" or "199.50" into
// the smallest currency unit.
func parseAmount(s, currency string) (types.Money, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return types.Money{}, fmt.Errorf("amount %q: want a number with at most two decimals", s)
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return types.Money{}, fmt.Errorf("amount %q: want a non-negative number", s)
	}
	var f int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		if f, err = strconv.ParseInt(frac, 10, 64); err != nil || f < 0 {
			return types.Money{}, fmt.Errorf("amount %q: bad fraction", s)
		}
	}
	return types.New(w*100+f, currency), nil
}

// dateFlag parses an optional YYYY-MM-DD flag value; empty means fallback.
func dateFlag(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", raw)
	}
	return d, nil
}
