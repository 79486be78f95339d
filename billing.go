package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/store"
	"github.com/doodhwala/billing/types"
)

// Defaults applied by New.
const (
	DefaultDueDays     = 10
	DefaultConcurrency = 8
)

// Engine is the recurring billing engine. It holds no per-run state;
// every batch call is independent and safe to repeat.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	validate *validator.Validate

	currency    string
	dueDays     int
	concurrency int
	rule        *pricing.Rule
	now         func() time.Time
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		validate:    newValidator(),
		currency:    types.DefaultCurrency,
		dueDays:     DefaultDueDays,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConcurrency bounds how many customers a batch processes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithCurrency sets the billing currency.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if currency != "" {
			e.currency = types.Zero(currency).Currency
		}
	}
}

// WithDueDays sets how many days after the period end an invoice is due.
func WithDueDays(days int) Option {
	return func(e *Engine) {
		if days >= 0 {
			e.dueDays = days
		}
	}
}

// WithBillingRule sets the default tax/discount rule for customers that
// have none of their own.
func WithBillingRule(r pricing.Rule) Option {
	return func(e *Engine) {
		e.rule = &r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Currency returns the billing currency.
func (e *Engine) Currency() string { return e.currency }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("billing engine started",
		"currency", e.currency,
		"due_days", e.dueDays,
		"concurrency", e.concurrency,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

func (e *Engine) zero() types.Money { return types.Zero(e.currency) }

func (e *Engine) today() time.Time { return types.Day(e.now()) }
