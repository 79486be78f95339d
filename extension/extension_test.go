package extension

import (
	"testing"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{Currency: "usd"})
	if got.Currency != "usd" {
		t.Errorf("currency: got %q, want usd", got.Currency)
	}
	if got.BasePath != "/billing" || got.DueDays != 10 || got.Concurrency != 8 {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{BasePath: "/dairy", DueDays: 15}
	prog := Config{BasePath: "/ignored", DisableMigrate: true, Concurrency: 2, TaxBasisPoints: 500}

	got := mergeConfigurations(yaml, prog)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"base path from yaml", got.BasePath, "/dairy"},
		{"due days from yaml", got.DueDays, 15},
		{"concurrency fills gap", got.Concurrency, 2},
		{"tax fills gap", got.TaxBasisPoints, int64(500)},
		{"disable migrate flag", got.DisableMigrate, true},
		{"currency default", got.Currency, "inr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestBuildBillingOpts(t *testing.T) {
	e := New(
		WithCurrency("usd"),
		WithDefaultRule(500, 0),
		WithBillingOption(billing.WithCurrency("eur")),
	)
	e.config = mergeWithDefaults(e.config)

	eng := billing.New(memory.New(), e.buildBillingOpts()...)
	if eng.Currency() != "eur" {
		t.Errorf("currency: got %q, want pass-through eur", eng.Currency())
	}
}
