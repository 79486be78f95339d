package billing

import (
	"context"
	"fmt"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
	"github.com/doodhwala/billing/vacation"
)

// ──────────────────────────────────────────────────
// Reference data
// ──────────────────────────────────────────────────

// Staff screens own these records. The helpers below validate them at the
// store boundary so the engine can rely on well-formed input.

// CreateCustomer registers a customer with empty balances.
func (e *Engine) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if c.ID.IsNil() {
		c.ID = id.NewCustomerID()
	}
	if c.Name == "" {
		return invalid("name", "is required", ErrInvalidInput)
	}
	if c.Billing != nil {
		if err := c.Billing.Validate(); err != nil {
			return invalid("billing", err.Error(), err)
		}
	}
	c.Entity = types.NewEntity()
	c.SetBalance(e.zero())
	return e.store.CreateCustomer(ctx, c)
}

// GetCustomer retrieves a customer by ID.
func (e *Engine) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return e.store.GetCustomer(ctx, customerID)
}

// CreateProduct adds a catalog product.
func (e *Engine) CreateProduct(ctx context.Context, p *product.Product) error {
	if p.ID.IsNil() {
		p.ID = id.NewProductID()
	}
	if p.Name == "" {
		return invalid("name", "is required", ErrInvalidInput)
	}
	if err := e.checkMoney("base_price", p.BasePrice, false); err != nil {
		return err
	}
	p.Entity = types.NewEntity()
	return e.store.CreateProduct(ctx, p)
}

// CreateSubscription adds a product subscription for a customer.
func (e *Engine) CreateSubscription(ctx context.Context, s *subscription.Subscription) error {
	if s.ID.IsNil() {
		s.ID = id.NewSubscriptionID()
	}
	if err := s.Pattern.Validate(); err != nil {
		return invalid("delivery_pattern", err.Error(), err)
	}
	if !s.Quantity.IsPositive() {
		return invalid("quantity", "must be positive", ErrInvalidInput)
	}
	if s.StartDate.IsZero() {
		return invalid("start_date", "is required", ErrInvalidInput)
	}
	if s.CustomPrice != nil {
		if err := e.checkMoney("custom_price", *s.CustomPrice, false); err != nil {
			return err
		}
	}
	if _, err := e.store.GetCustomer(ctx, s.CustomerID); err != nil {
		return fmt.Errorf("billing: subscription customer: %w", err)
	}
	if _, err := e.store.GetProduct(ctx, s.ProductID); err != nil {
		return fmt.Errorf("billing: subscription product: %w", err)
	}
	s.StartDate = types.Day(s.StartDate)
	s.Entity = types.NewEntity()
	return e.store.CreateSubscription(ctx, s)
}

// CreateVacation records a delivery pause.
func (e *Engine) CreateVacation(ctx context.Context, v *vacation.Vacation) error {
	if v.ID.IsNil() {
		v.ID = id.NewVacationID()
	}
	v.StartDate, v.EndDate = types.Day(v.StartDate), types.Day(v.EndDate)
	if v.StartDate.IsZero() || v.EndDate.Before(v.StartDate) {
		return invalid("end_date", "must not be before start_date", ErrInvalidPeriod)
	}
	if _, err := e.store.GetCustomer(ctx, v.CustomerID); err != nil {
		return fmt.Errorf("billing: vacation customer: %w", err)
	}
	v.Entity = types.NewEntity()
	return e.store.CreateVacation(ctx, v)
}

// checkMoney rejects amounts in a foreign currency and, unless allowZero,
// non-positive amounts.
func (e *Engine) checkMoney(field string, m types.Money, allowZero bool) error {
	if m.Currency != e.currency {
		return invalid(field, fmt.Sprintf("currency %q, engine bills in %q", m.Currency, e.currency), ErrCurrencyMismatch)
	}
	if m.IsNegative() || (!allowZero && m.IsZero()) {
		return invalid(field, "must be positive", ErrInvalidAmount)
	}
	return nil
}
