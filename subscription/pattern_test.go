package subscription

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/doodhwala/billing/types"
)

func TestPatternIncludes(t *testing.T) {
	anchor := types.Date(2024, time.June, 1) // Saturday

	tests := []struct {
		name    string
		pattern DeliveryPattern
		date    time.Time
		want    bool
	}{
		{"daily", Daily(), types.Date(2024, time.June, 5), true},
		{"daily before start", Daily(), types.Date(2024, time.May, 31), false},
		{"alternate anchor day", Alternate(), anchor, true},
		{"alternate next day", Alternate(), types.Date(2024, time.June, 2), false},
		{"alternate two days", Alternate(), types.Date(2024, time.June, 3), true},
		{"alternate across month", Alternate(), types.Date(2024, time.July, 1), true},
		{"weekly match", Weekly(time.Monday, time.Thursday), types.Date(2024, time.June, 6), true},
		{"weekly miss", Weekly(time.Monday, time.Thursday), types.Date(2024, time.June, 7), false},
		{"custom sunday", Custom(time.Sunday), types.Date(2024, time.June, 2), true},
		{"local time keeps day", Daily(), time.Date(2024, time.June, 1, 6, 0, 0, 0, time.FixedZone("IST", 19800)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Includes(tt.date, anchor); got != tt.want {
				t.Errorf("Includes(%s): got %v, want %v", tt.date.Format(types.DateLayout), got, tt.want)
			}
		})
	}
}

func TestPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern DeliveryPattern
		wantErr bool
	}{
		{"daily", Daily(), false},
		{"alternate", Alternate(), false},
		{"weekly", Weekly(time.Monday), false},
		{"empty kind", DeliveryPattern{}, true},
		{"unknown kind", DeliveryPattern{Kind: "fortnightly"}, true},
		{"daily with days", DeliveryPattern{Kind: PatternDaily, Days: []time.Weekday{time.Monday}}, true},
		{"weekly without days", Weekly(), true},
		{"custom duplicate", Custom(time.Monday, time.Monday), true},
		{"weekday out of range", DeliveryPattern{Kind: PatternCustom, Days: []time.Weekday{9}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("got %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPattern) {
				t.Errorf("expected ErrInvalidPattern, got %v", err)
			}
		})
	}
}

func TestPatternJSON(t *testing.T) {
	data, err := json.Marshal(Weekly(time.Thursday, time.Monday))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"kind":"weekly","days":["mon","thu"]}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	data, _ = json.Marshal(Daily())
	if want := `{"kind":"daily"}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	p, err := ParsePattern(`{"kind":"custom","days":["Saturday","sun"]}`)
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}
	if p.Kind != PatternCustom || len(p.Days) != 2 || p.Days[0] != time.Sunday || p.Days[1] != time.Saturday {
		t.Errorf("unexpected pattern %v", p)
	}

	bad := []string{
		`{"kind":"weekly","days":["funday"]}`,
		`{"kind":"weekly","days":[]}`,
		`{"kind":"daily","days":["mon"]}`,
		`{"kind":"monthly"}`,
		`"daily"`,
	}
	for _, s := range bad {
		if _, err := ParsePattern(s); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("ParsePattern(%s): expected ErrInvalidPattern, got %v", s, err)
		}
	}
}

func TestSubscriptionDueOn(t *testing.T) {
	price := types.Rupees(55)
	sub := &Subscription{
		Quantity:    types.Units(2),
		CustomPrice: &price,
		Pattern:     Daily(),
		StartDate:   types.Date(2024, time.June, 1),
		Active:      true,
	}
	if !sub.DueOn(types.Date(2024, time.June, 10)) {
		t.Error("active daily subscription should be due")
	}
	if got := sub.UnitPrice(types.Rupees(60)); !got.Equal(price) {
		t.Errorf("UnitPrice: got %v, want %v", got, price)
	}

	sub.Active = false
	if sub.DueOn(types.Date(2024, time.June, 10)) {
		t.Error("inactive subscription should not be due")
	}
}
