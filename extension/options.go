package extension

import (
	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/store"
)

// Option configures the billing Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBillingOption passes a billing.Option through to the underlying engine.
func WithBillingOption(opt billing.Option) Option {
	return func(e *Extension) {
		e.billingOpts = append(e.billingOpts, opt)
	}
}

// WithPlugin registers a billing plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.billingOpts = append(e.billingOpts, billing.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP server from being provided.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for billing routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCurrency sets the billing currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithDueDays sets how many days after the period end an invoice is due.
func WithDueDays(days int) Option {
	return func(e *Extension) { e.config.DueDays = days }
}

// WithConcurrency bounds how many customers a batch processes at once.
func WithConcurrency(n int) Option {
	return func(e *Extension) { e.config.Concurrency = n }
}

// WithDefaultRule sets the default tax and discount in basis points.
func WithDefaultRule(taxBP, discountBP int64) Option {
	return func(e *Extension) {
		e.config.TaxBasisPoints = taxBP
		e.config.DiscountBasisPoints = discountBP
	}
}
