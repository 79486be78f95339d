package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/product"
	billingstore "github.com/doodhwala/billing/store"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
	"github.com/doodhwala/billing/vacation"
)

// compile-time interface check
var _ billingstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM. The
// composite primitives run as single calls to the PL/pgSQL functions
// installed by Migrations.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes and functions using the
// grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("billing/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("billing/postgres: %w: %w", billing.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.pg.NewInsert(toCustomerModel(c)).Exec(ctx)
	return classify("create customer", err, billing.ErrAlreadyExists)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", customerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, err
	}
	return fromCustomerModel(m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var models []customerModel
	q := s.pg.NewSelect(&models)
	if opts.ActiveOnly {
		q = q.Where("active = TRUE")
	}
	if opts.AutoDeliverOnly {
		q = q.Where("auto_deliver = TRUE")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*customer.Customer, len(models))
	for i := range models {
		c, err := fromCustomerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// UpdateCustomer writes profile fields only. The cached balances belong
// to billing_append_entry.
func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	res, err := s.pg.NewUpdate((*customerModel)(nil)).
		Set("name = $1", m.Name).
		Set("phone = $2", m.Phone).
		Set("address = $3", m.Address).
		Set("active = $4", m.Active).
		Set("auto_deliver = $5", m.AutoDeliver).
		Set("billing = $6", m.Billing).
		Set("updated_at = $7", now()).
		Where("id = $8", m.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billing.ErrCustomerNotFound
	}
	return nil
}

// ==================== Product Store ====================

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	_, err := s.pg.NewInsert(toProductModel(p)).Exec(ctx)
	return classify("create product", err, billing.ErrAlreadyExists)
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	m := new(productModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", productID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrProductNotFound
		}
		return nil, err
	}
	return fromProductModel(m)
}

func (s *Store) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	var models []productModel
	q := s.pg.NewSelect(&models)
	if opts.ActiveOnly {
		q = q.Where("active = TRUE")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*product.Product, len(models))
	for i := range models {
		p, err := fromProductModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return classify("create subscription", err, billing.ErrAlreadyExists)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())
	if opts.ActiveOnly {
		q = q.Where("active = TRUE")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Vacation Store ====================

func (s *Store) CreateVacation(ctx context.Context, v *vacation.Vacation) error {
	_, err := s.pg.NewInsert(toVacationModel(v)).Exec(ctx)
	return classify("create vacation", err, billing.ErrAlreadyExists)
}

func (s *Store) ListVacations(ctx context.Context, customerID id.CustomerID) ([]*vacation.Vacation, error) {
	var models []vacationModel
	err := s.pg.NewSelect(&models).
		Where("customer_id = $1", customerID.String()).
		OrderExpr("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*vacation.Vacation, len(models))
	for i := range models {
		v, err := fromVacationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (s *Store) IsOnVacation(ctx context.Context, customerID id.CustomerID, date time.Time) (bool, error) {
	var count int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM billing_vacations
		WHERE customer_id = $1 AND active = TRUE AND start_date <= $2 AND end_date >= $2
	`, customerID.String(), types.Day(date)).Scan(ctx, &count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, r *delivery.Record) error {
	m, err := toDeliveryModel(r)
	if err != nil {
		return err
	}
	m.DeliveryDate = types.Day(m.DeliveryDate)
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return classify("create delivery", err, billing.ErrDeliveryExists)
}

func (s *Store) GetDelivery(ctx context.Context, deliveryID id.DeliveryID) (*delivery.Record, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", deliveryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) GetDeliveryByDate(ctx context.Context, customerID id.CustomerID, date time.Time) (*delivery.Record, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("customer_id = $1", customerID.String()).
		Where("delivery_date = $2", types.Day(date)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListDeliveries(ctx context.Context, customerID id.CustomerID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("delivery_date >= $%d", argIdx), types.Day(opts.Start))
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("delivery_date <= $%d", argIdx), types.Day(opts.End))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("delivery_date ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Record, len(models))
	for i := range models {
		r, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// UpdateDelivery is a compare-and-set on status: the row changes only
// while its stored status still equals from.
func (s *Store) UpdateDelivery(ctx context.Context, r *delivery.Record, from delivery.Status) error {
	m, err := toDeliveryModel(r)
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate((*deliveryModel)(nil)).
		Set("status = $1", m.Status).
		Set("items = $2", m.Items).
		Set("notes = $3", m.Notes).
		Set("delivered_at = $4", m.DeliveredAt).
		Set("updated_at = $5", now()).
		Where("id = $6", m.ID).
		Where("status = $7", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	stored, err := s.GetDelivery(ctx, r.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored status is %s", billing.ErrInvalidTransition, stored.Status)
}

// ==================== Invoice Store ====================

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID id.CustomerID, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("customer_id = $1", customerID.String()).
		Where("period_start = $2", types.Day(periodStart)).
		Where("period_end = $3", types.Day(periodEnd)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("payment_status = $%d", argIdx), string(opts.Status))
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("period_start >= $%d", argIdx), types.Day(opts.Start))
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("period_end <= $%d", argIdx), types.Day(opts.End))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("period_start ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// ==================== Ledger Store ====================

func (s *Store) ListEntries(ctx context.Context, customerID id.CustomerID, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*ledger.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) LatestEntry(ctx context.Context, customerID id.CustomerID) (*ledger.Entry, error) {
	m := new(entryModel)
	err := s.pg.NewSelect(m).
		Where("customer_id = $1", customerID.String()).
		OrderExpr("seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrLedgerEmpty
		}
		return nil, err
	}
	return fromEntryModel(m)
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", paymentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, billing.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, customerID id.CustomerID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())
	if !opts.InvoiceID.IsNil() {
		q = q.Where("invoice_id = $2", opts.InvoiceID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Atomic primitives ====================

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	doc, err := entryDocument(e)
	if err != nil {
		return err
	}

	var seq int64
	err = s.pg.NewRaw(`SELECT billing_append_entry($1::jsonb)`, doc).Scan(ctx, &seq)
	if err != nil {
		return classify("append entry", err, billing.ErrAlreadyExists)
	}
	return s.reloadEntry(ctx, e)
}

func (s *Store) PostInvoice(ctx context.Context, inv *invoice.Invoice, debit *ledger.Entry) error {
	im, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	im.PeriodStart = types.Day(im.PeriodStart)
	im.PeriodEnd = types.Day(im.PeriodEnd)
	stamp(&im.CreatedAt, &im.UpdatedAt)
	invDoc, err := json.Marshal(im)
	if err != nil {
		return err
	}

	var debitDoc any
	if debit != nil {
		if err := debit.Validate(); err != nil {
			return fmt.Errorf("billing/postgres: post invoice: %w: %w", billing.ErrLedgerAppend, err)
		}
		doc, err := entryDocument(debit)
		if err != nil {
			return err
		}
		debitDoc = doc
	}

	var seq int64
	err = s.pg.NewRaw(`SELECT billing_post_invoice($1::jsonb, $2::jsonb)`, string(invDoc), debitDoc).Scan(ctx, &seq)
	if err != nil {
		return classify("post invoice", err, billing.ErrInvoiceExists)
	}
	if debit != nil {
		return s.reloadEntry(ctx, debit)
	}
	return nil
}

func (s *Store) ApplyPayment(ctx context.Context, p *payment.Payment, credit *ledger.Entry) (*invoice.Invoice, error) {
	if err := credit.Validate(); err != nil {
		return nil, fmt.Errorf("billing/postgres: apply payment: %w: %w", billing.ErrLedgerAppend, err)
	}
	pm := toPaymentModel(p)
	stamp(&pm.CreatedAt, &pm.UpdatedAt)
	payDoc, err := json.Marshal(pm)
	if err != nil {
		return nil, err
	}
	creditDoc, err := entryDocument(credit)
	if err != nil {
		return nil, err
	}

	var applied int64
	err = s.pg.NewRaw(`SELECT billing_apply_payment($1::jsonb, $2::jsonb)`, string(payDoc), creditDoc).Scan(ctx, &applied)
	if err != nil {
		return nil, classify("apply payment", err, billing.ErrAlreadyExists)
	}

	p.AppliedAmount = types.New(applied, p.Amount.Currency)
	p.ExcessAmount = p.Amount.Subtract(p.AppliedAmount)
	p.LedgerEntryID = credit.ID
	if err := s.reloadEntry(ctx, credit); err != nil {
		return nil, err
	}
	if !p.HasInvoice() {
		return nil, nil
	}
	return s.GetInvoice(ctx, p.InvoiceID)
}

// reloadEntry copies the server-assigned Seq and RunningBalance into e.
func (s *Store) reloadEntry(ctx context.Context, e *ledger.Entry) error {
	m := new(entryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", e.ID.String()).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("billing/postgres: reload entry %s: %w", e.ID, err)
	}
	e.Seq = m.Seq
	e.RunningBalance = types.New(m.RunningBalance, m.Currency)
	return nil
}

// ==================== Helpers ====================

func entryDocument(e *ledger.Entry) (string, error) {
	m := toEntryModel(e)
	m.Date = types.Day(m.Date)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func stamp(created, updated *time.Time) {
	t := now()
	if created.IsZero() {
		*created = t
	}
	if updated.IsZero() {
		*updated = t
	}
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// Exception prefixes raised by the PL/pgSQL primitives.
const (
	raiseLedgerAppend    = "billing_ledger_append"
	raiseInvoiceNotFound = "billing_invoice_not_found"
	raiseInvoiceCustomer = "billing_invoice_customer"
	raiseInvoiceOverlap  = "billing_invoice_overlap"
	raiseCustomerMissing = "billing_customer_not_found"
)

// classify maps driver errors onto billing sentinels. A unique violation
// becomes conflict; anything raised from a ledger step is a ledger append
// failure regardless of its cause.
func classify(op string, err error, conflict error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, raiseLedgerAppend):
		return fmt.Errorf("billing/postgres: %s: %w: %w", op, billing.ErrLedgerAppend, err)
	case strings.Contains(msg, raiseInvoiceNotFound):
		return billing.ErrInvoiceNotFound
	case strings.Contains(msg, raiseInvoiceCustomer):
		return billing.ErrInvoiceCustomer
	case strings.Contains(msg, raiseInvoiceOverlap):
		return fmt.Errorf("billing/postgres: %s: %w: %w", op, billing.ErrInvoiceExists, err)
	case isForeignKeyViolation(msg) && strings.Contains(msg, "product_id"):
		return billing.ErrProductNotFound
	case strings.Contains(msg, raiseCustomerMissing), isForeignKeyViolation(msg):
		return billing.ErrCustomerNotFound
	case isUniqueViolation(msg):
		return fmt.Errorf("billing/postgres: %s: %w", op, conflict)
	}
	return fmt.Errorf("billing/postgres: %s: %w", op, err)
}

func isUniqueViolation(msg string) bool {
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value")
}

func isForeignKeyViolation(msg string) bool {
	return strings.Contains(msg, "23503") || strings.Contains(msg, "violates foreign key constraint")
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
