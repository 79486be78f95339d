// Package memory provides an in-process store. State lives in maps behind
// one mutex, so every composite primitive is trivially atomic. Records
// are copied on the way in and out; callers never share memory with the
// store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/store"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
	"github.com/doodhwala/billing/vacation"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	customers     map[string]*customer.Customer
	products      map[string]*product.Product
	subscriptions map[string]*subscription.Subscription
	vacations     map[string]*vacation.Vacation

	deliveries     map[string]*delivery.Record
	deliveryByDate map[string]string

	invoices        map[string]*invoice.Invoice
	invoiceByPeriod map[string]string

	// Ledger entries per customer in Seq order.
	entries  map[string][]*ledger.Entry
	payments map[string]*payment.Payment

	// fault, when set, runs before every ledger append and aborts the
	// enclosing primitive if it returns an error.
	fault func(*ledger.Entry) error
}

func New() *Store {
	return &Store{
		customers:       make(map[string]*customer.Customer),
		products:        make(map[string]*product.Product),
		subscriptions:   make(map[string]*subscription.Subscription),
		vacations:       make(map[string]*vacation.Vacation),
		deliveries:      make(map[string]*delivery.Record),
		deliveryByDate:  make(map[string]string),
		invoices:        make(map[string]*invoice.Invoice),
		invoiceByPeriod: make(map[string]string),
		entries:         make(map[string][]*ledger.Entry),
		payments:        make(map[string]*payment.Payment),
	}
}

// InjectLedgerFault installs fn to run before every ledger append. A
// non-nil error from fn fails the append and rolls back the primitive.
// Pass nil to remove it.
func (s *Store) InjectLedgerFault(fn func(*ledger.Entry) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// ──────────────────────────────────────────────────
// Customers
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

func (s *Store) GetCustomer(_ context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[customerID.String()]; ok {
		return cloneCustomer(c), nil
	}
	return nil, billing.ErrCustomerNotFound
}

func (s *Store) ListCustomers(_ context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*customer.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if opts.Matches(c) {
			result = append(result, cloneCustomer(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return page(result, opts.Offset, opts.Limit), nil
}

// UpdateCustomer keeps the stored cached balances.
func (s *Store) UpdateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[c.ID.String()]
	if !ok {
		return billing.ErrCustomerNotFound
	}
	updated := cloneCustomer(c)
	updated.CreditBalance = existing.CreditBalance
	updated.AdvanceBalance = existing.AdvanceBalance
	updated.UpdatedAt = time.Now().UTC()
	s.customers[c.ID.String()] = updated
	return nil
}

// ──────────────────────────────────────────────────
// Products
// ──────────────────────────────────────────────────

func (s *Store) CreateProduct(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	cp := *p
	s.products[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID id.ProductID) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.products[productID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, billing.ErrProductNotFound
}

func (s *Store) ListProducts(_ context.Context, opts product.ListOpts) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*product.Product, 0, len(s.products))
	for _, p := range s.products {
		if opts.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.CustomerID != customerID || (opts.ActiveOnly && !sub.Active) {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return billing.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

// ──────────────────────────────────────────────────
// Vacations
// ──────────────────────────────────────────────────

func (s *Store) CreateVacation(_ context.Context, v *vacation.Vacation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vacations[v.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	cp := *v
	s.vacations[v.ID.String()] = &cp
	return nil
}

func (s *Store) ListVacations(_ context.Context, customerID id.CustomerID) ([]*vacation.Vacation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.vacationsOf(customerID), nil
}

func (s *Store) IsOnVacation(_ context.Context, customerID id.CustomerID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return vacation.AnyCovers(s.vacationsOf(customerID), date), nil
}

func (s *Store) vacationsOf(customerID id.CustomerID) []*vacation.Vacation {
	result := make([]*vacation.Vacation, 0)
	for _, v := range s.vacations {
		if v.CustomerID == customerID {
			cp := *v
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result
}

// ──────────────────────────────────────────────────
// Deliveries
// ──────────────────────────────────────────────────

func (s *Store) CreateDelivery(_ context.Context, r *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(r.CustomerID, r.Date)
	if _, exists := s.deliveryByDate[key]; exists {
		return billing.ErrDeliveryExists
	}
	if _, exists := s.deliveries[r.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.deliveries[r.ID.String()] = cloneDelivery(r)
	s.deliveryByDate[key] = r.ID.String()
	return nil
}

func (s *Store) GetDelivery(_ context.Context, deliveryID id.DeliveryID) (*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.deliveries[deliveryID.String()]; ok {
		return cloneDelivery(r), nil
	}
	return nil, billing.ErrDeliveryNotFound
}

func (s *Store) GetDeliveryByDate(_ context.Context, customerID id.CustomerID, date time.Time) (*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.deliveryByDate[dayKey(customerID, date)]; ok {
		return cloneDelivery(s.deliveries[key]), nil
	}
	return nil, billing.ErrDeliveryNotFound
}

func (s *Store) ListDeliveries(_ context.Context, customerID id.CustomerID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Record, 0)
	for _, r := range s.deliveries {
		if r.CustomerID == customerID && opts.Matches(r) {
			result = append(result, cloneDelivery(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateDelivery(_ context.Context, r *delivery.Record, from delivery.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.deliveries[r.ID.String()]
	if !ok {
		return billing.ErrDeliveryNotFound
	}
	if existing.Status != from {
		return fmt.Errorf("%w: stored status is %s", billing.ErrInvalidTransition, existing.Status)
	}
	s.deliveries[r.ID.String()] = cloneDelivery(r)
	return nil
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, billing.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByPeriod(_ context.Context, customerID id.CustomerID, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.invoiceByPeriod[periodKey(customerID, periodStart, periodEnd)]; ok {
		return cloneInvoice(s.invoices[key]), nil
	}
	return nil, billing.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.CustomerID == customerID && opts.Matches(inv) {
			result = append(result, cloneInvoice(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodStart.Before(result[j].PeriodStart) })
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func (s *Store) ListEntries(_ context.Context, customerID id.CustomerID, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[customerID.String()]
	result := make([]*ledger.Entry, 0, len(list))
	for _, e := range list {
		cp := *e
		result = append(result, &cp)
	}
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) LatestEntry(_ context.Context, customerID id.CustomerID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[customerID.String()]
	if len(list) == 0 {
		return nil, billing.ErrLedgerEmpty
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, billing.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, customerID id.CustomerID, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.CustomerID != customerID {
			continue
		}
		if !opts.InvoiceID.IsNil() && p.InvoiceID != opts.InvoiceID {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Atomic primitives
// ──────────────────────────────────────────────────

func (s *Store) AppendEntry(_ context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(e)
}

func (s *Store) PostInvoice(_ context.Context, inv *invoice.Invoice, debit *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[inv.CustomerID.String()]; !ok {
		return billing.ErrCustomerNotFound
	}
	key := periodKey(inv.CustomerID, inv.PeriodStart, inv.PeriodEnd)
	if _, exists := s.invoiceByPeriod[key]; exists {
		return billing.ErrInvoiceExists
	}
	period := inv.Period()
	for _, other := range s.invoices {
		if other.CustomerID == inv.CustomerID && other.Period().Overlaps(period) {
			return fmt.Errorf("%w: %s overlaps invoice %s (%s)", billing.ErrInvoiceExists, period, other.Number, other.Period())
		}
	}

	// The debit goes first: if it fails nothing has been written.
	if debit != nil {
		if err := s.appendLocked(debit); err != nil {
			return fmt.Errorf("billing/memory: post invoice: %w: %w", billing.ErrLedgerAppend, err)
		}
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	s.invoiceByPeriod[key] = inv.ID.String()
	return nil
}

func (s *Store) ApplyPayment(_ context.Context, p *payment.Payment, credit *ledger.Entry) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[p.CustomerID.String()]; !ok {
		return nil, billing.ErrCustomerNotFound
	}
	if _, exists := s.payments[p.ID.String()]; exists {
		return nil, billing.ErrAlreadyExists
	}

	var updated *invoice.Invoice
	applied, excess := types.Zero(p.Amount.Currency), p.Amount
	if p.HasInvoice() {
		stored, ok := s.invoices[p.InvoiceID.String()]
		if !ok {
			return nil, billing.ErrInvoiceNotFound
		}
		if stored.CustomerID != p.CustomerID {
			return nil, billing.ErrInvoiceCustomer
		}
		updated = cloneInvoice(stored)
		applied, excess = updated.ApplyPayment(p.Amount, p.Date)
	}

	if err := s.appendLocked(credit); err != nil {
		return nil, fmt.Errorf("billing/memory: apply payment: %w: %w", billing.ErrLedgerAppend, err)
	}
	p.AppliedAmount, p.ExcessAmount = applied, excess
	p.LedgerEntryID = credit.ID

	if updated != nil {
		s.invoices[updated.ID.String()] = cloneInvoice(updated)
	}
	cp := *p
	s.payments[p.ID.String()] = &cp
	return updated, nil
}

// appendLocked chains e onto the customer's ledger and refreshes the
// cached balances. s.mu must be held for writing.
func (s *Store) appendLocked(e *ledger.Entry) error {
	c, ok := s.customers[e.CustomerID.String()]
	if !ok {
		return billing.ErrCustomerNotFound
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if s.fault != nil {
		if err := s.fault(e); err != nil {
			return err
		}
	}

	key := e.CustomerID.String()
	list := s.entries[key]
	var prev *ledger.Entry
	if len(list) > 0 {
		prev = list[len(list)-1]
	}
	ledger.Chain(prev, e)

	cp := *e
	s.entries[key] = append(list, &cp)
	c.SetBalance(e.RunningBalance)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return billing.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func page[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func dayKey(customerID id.CustomerID, date time.Time) string {
	return customerID.String() + "|" + types.Day(date).Format(types.DateLayout)
}

func periodKey(customerID id.CustomerID, start, end time.Time) string {
	return dayKey(customerID, start) + "|" + types.Day(end).Format(types.DateLayout)
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	cp := *c
	if c.Billing != nil {
		rule := *c.Billing
		cp.Billing = &rule
	}
	return &cp
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	if sub.CustomPrice != nil {
		price := *sub.CustomPrice
		cp.CustomPrice = &price
	}
	cp.Pattern.Days = append([]time.Weekday(nil), sub.Pattern.Days...)
	return &cp
}

func cloneDelivery(r *delivery.Record) *delivery.Record {
	cp := *r
	cp.Items = append([]delivery.Item(nil), r.Items...)
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.LineItems = append([]invoice.LineItem(nil), inv.LineItems...)
	if inv.PaymentDate != nil {
		t := *inv.PaymentDate
		cp.PaymentDate = &t
	}
	return &cp
}
