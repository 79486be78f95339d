package extension

// Config holds the billing extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.billing" or "billing" keys).
type Config struct {
	// DisableRoutes prevents the HTTP server from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for billing routes (default: "/billing").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Currency is the billing currency (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// DueDays is how many days after the period end an invoice is due
	// (default: 10).
	DueDays int `json:"due_days" mapstructure:"due_days" yaml:"due_days"`

	// Concurrency bounds how many customers a batch processes at once
	// (default: 8).
	Concurrency int `json:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`

	// TaxBasisPoints and DiscountBasisPoints form the default billing rule.
	// The rule is only installed when one of them is non-zero.
	TaxBasisPoints      int64 `json:"tax_bp" mapstructure:"tax_bp" yaml:"tax_bp"`
	DiscountBasisPoints int64 `json:"discount_bp" mapstructure:"discount_bp" yaml:"discount_bp"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:    "/billing",
		Currency:    "inr",
		DueDays:     10,
		Concurrency: 8,
	}
}
