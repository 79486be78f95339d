package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/doodhwala/billing/types"
)

// ErrInvalidPattern is returned for a malformed delivery pattern.
var ErrInvalidPattern = errors.New("billing: invalid delivery pattern")

// PatternKind names the variant of a DeliveryPattern.
type PatternKind string

const (
	PatternDaily     PatternKind = "daily"
	PatternAlternate PatternKind = "alternate"
	PatternWeekly    PatternKind = "weekly"
	PatternCustom    PatternKind = "custom"
)

// DeliveryPattern says on which days a subscription is due.
//
//   - Daily: every day.
//   - Alternate: every second day counted from the subscription start.
//   - Weekly, Custom: the listed weekdays.
//
// Days is empty for Daily and Alternate.
type DeliveryPattern struct {
	Kind PatternKind
	Days []time.Weekday
}

func Daily() DeliveryPattern     { return DeliveryPattern{Kind: PatternDaily} }
func Alternate() DeliveryPattern { return DeliveryPattern{Kind: PatternAlternate} }

// Weekly returns a pattern due on the given weekdays.
func Weekly(days ...time.Weekday) DeliveryPattern {
	return DeliveryPattern{Kind: PatternWeekly, Days: normalizeDays(days)}
}

// Custom returns a pattern due on an arbitrary weekday set.
func Custom(days ...time.Weekday) DeliveryPattern {
	return DeliveryPattern{Kind: PatternCustom, Days: normalizeDays(days)}
}

// Validate rejects unknown kinds, weekday sets on Daily/Alternate and
// empty, duplicate or out-of-range weekday sets on Weekly/Custom.
func (p DeliveryPattern) Validate() error {
	switch p.Kind {
	case PatternDaily, PatternAlternate:
		if len(p.Days) > 0 {
			return fmt.Errorf("%w: %s takes no days", ErrInvalidPattern, p.Kind)
		}
		return nil
	case PatternWeekly, PatternCustom:
		if len(p.Days) == 0 {
			return fmt.Errorf("%w: %s needs at least one day", ErrInvalidPattern, p.Kind)
		}
		seen := make(map[time.Weekday]bool, len(p.Days))
		for _, d := range p.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidPattern, int(d))
			}
			if seen[d] {
				return fmt.Errorf("%w: duplicate day %s", ErrInvalidPattern, dayName(d))
			}
			seen[d] = true
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing kind", ErrInvalidPattern)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, p.Kind)
	}
}

// Includes reports whether the pattern is due on date. anchor is the
// subscription start; Alternate counts parity from it and nothing is due
// before it.
func (p DeliveryPattern) Includes(date, anchor time.Time) bool {
	date = types.Day(date)
	if !anchor.IsZero() && date.Before(types.Day(anchor)) {
		return false
	}
	switch p.Kind {
	case PatternDaily:
		return true
	case PatternAlternate:
		return types.DaysBetween(anchor, date)%2 == 0
	case PatternWeekly, PatternCustom:
		return slices.Contains(p.Days, date.Weekday())
	default:
		return false
	}
}

func (p DeliveryPattern) String() string {
	if len(p.Days) == 0 {
		return string(p.Kind)
	}
	names := make([]string, len(p.Days))
	for i, d := range p.Days {
		names[i] = dayName(d)
	}
	return string(p.Kind) + "(" + strings.Join(names, ",") + ")"
}

type patternJSON struct {
	Kind PatternKind `json:"kind"`
	Days []string    `json:"days,omitempty"`
}

// MarshalJSON encodes the pattern as {"kind":"weekly","days":["mon","thu"]}.
func (p DeliveryPattern) MarshalJSON() ([]byte, error) {
	out := patternJSON{Kind: p.Kind}
	for _, d := range p.Days {
		out.Days = append(out.Days, dayName(d))
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a pattern.
func (p *DeliveryPattern) UnmarshalJSON(data []byte) error {
	var in patternJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	out := DeliveryPattern{Kind: PatternKind(strings.ToLower(string(in.Kind)))}
	for _, name := range in.Days {
		d, ok := ParseWeekday(name)
		if !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidPattern, name)
		}
		out.Days = append(out.Days, d)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	if len(out.Days) > 0 {
		out.Days = normalizeDays(out.Days)
	}
	*p = out
	return nil
}

// ParsePattern decodes the JSON form of a pattern.
func ParsePattern(s string) (DeliveryPattern, error) {
	var p DeliveryPattern
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return DeliveryPattern{}, err
	}
	return p, nil
}

var dayNames = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func dayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return fmt.Sprintf("day(%d)", int(d))
	}
	return dayNames[d]
}

// ParseWeekday accepts short ("mon") or full ("monday") English names.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range dayNames {
		full := strings.ToLower(time.Weekday(i).String())
		if s == name || s == full {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// normalizeDays sorts days. Duplicates are kept so Validate can report them.
func normalizeDays(days []time.Weekday) []time.Weekday {
	out := slices.Clone(days)
	slices.Sort(out)
	return out
}
