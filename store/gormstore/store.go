// Package gormstore implements store.Store on GORM for PostgreSQL or
// MySQL. Each composite primitive is one database transaction that takes
// a row lock on the customer before touching the ledger.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

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

// Store implements store.Store on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle. Open it with TranslateError so unique
// violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// NewPostgres opens a PostgreSQL connection. PreferSimpleProtocol keeps
// it usable behind PgBouncer in transaction mode.
func NewPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), config())
	if err != nil {
		return nil, fmt.Errorf("billing/gorm: open postgres: %w", err)
	}
	return New(db), nil
}

// NewMySQL opens a MySQL connection. The DSN must carry parseTime=true.
func NewMySQL(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), config())
	if err != nil {
		return nil, fmt.Errorf("billing/gorm: open mysql: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or extends the billing tables.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&customerRow{},
		&productRow{},
		&subscriptionRow{},
		&vacationRow{},
		&deliveryRow{},
		&invoiceRow{},
		&entryRow{},
		&paymentRow{},
	)
	if err != nil {
		return fmt.Errorf("billing/gorm: %w: %w", billing.ErrMigrationFailed, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ──────────────────────────────────────────────────
// Customers
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	err := s.db.WithContext(ctx).Create(toCustomerRow(c)).Error
	return mapWriteError("create customer", err, billing.ErrAlreadyExists)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var row customerRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", customerID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrCustomerNotFound)
	}
	return row.toCustomer()
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	q := s.db.WithContext(ctx).Model(&customerRow{})
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.AutoDeliverOnly {
		q = q.Where("auto_deliver = ?", true)
	}

	var rows []customerRow
	if err := paged(q, opts.Limit, opts.Offset).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*customer.Customer, len(rows))
	for i := range rows {
		c, err := rows[i].toCustomer()
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// UpdateCustomer writes profile fields only; balances move with ledger
// appends.
func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	row := toCustomerRow(c)
	res := s.db.WithContext(ctx).Model(&customerRow{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"name":         row.Name,
			"phone":        row.Phone,
			"address":      row.Address,
			"active":       row.Active,
			"auto_deliver": row.AutoDeliver,
			"billing":      row.Billing,
			"updated_at":   now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return billing.ErrCustomerNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Products
// ──────────────────────────────────────────────────

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	err := s.db.WithContext(ctx).Create(toProductRow(p)).Error
	return mapWriteError("create product", err, billing.ErrAlreadyExists)
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", productID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrProductNotFound)
	}
	return row.toProduct()
}

func (s *Store) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	q := s.db.WithContext(ctx).Model(&productRow{})
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var rows []productRow
	if err := paged(q, opts.Limit, opts.Offset).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*product.Product, len(rows))
	for i := range rows {
		p, err := rows[i].toProduct()
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	row, err := toSubscriptionRow(sub)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(row).Error
	return mapWriteError("create subscription", err, billing.ErrAlreadyExists)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var row subscriptionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", subID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrSubscriptionNotFound)
	}
	return row.toSubscription()
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	q := s.db.WithContext(ctx).Model(&subscriptionRow{}).Where("customer_id = ?", customerID.String())
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var rows []subscriptionRow
	if err := paged(q, opts.Limit, opts.Offset).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*subscription.Subscription, len(rows))
	for i := range rows {
		sub, err := rows[i].toSubscription()
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	row, err := toSubscriptionRow(sub)
	if err != nil {
		return err
	}
	row.UpdatedAt = now()
	res := s.db.WithContext(ctx).Model(&subscriptionRow{}).
		Where("id = ?", row.ID).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Vacations
// ──────────────────────────────────────────────────

func (s *Store) CreateVacation(ctx context.Context, v *vacation.Vacation) error {
	err := s.db.WithContext(ctx).Create(toVacationRow(v)).Error
	return mapWriteError("create vacation", err, billing.ErrAlreadyExists)
}

func (s *Store) ListVacations(ctx context.Context, customerID id.CustomerID) ([]*vacation.Vacation, error) {
	var rows []vacationRow
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID.String()).
		Order("start_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]*vacation.Vacation, len(rows))
	for i := range rows {
		v, err := rows[i].toVacation()
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (s *Store) IsOnVacation(ctx context.Context, customerID id.CustomerID, date time.Time) (bool, error) {
	day := types.Day(date)
	var count int64
	err := s.db.WithContext(ctx).Model(&vacationRow{}).
		Where("customer_id = ? AND active = ? AND start_date <= ? AND end_date >= ?", customerID.String(), true, day, day).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ──────────────────────────────────────────────────
// Deliveries
// ──────────────────────────────────────────────────

func (s *Store) CreateDelivery(ctx context.Context, r *delivery.Record) error {
	row, err := toDeliveryRow(r)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(row).Error
	return mapWriteError("create delivery", err, billing.ErrDeliveryExists)
}

func (s *Store) GetDelivery(ctx context.Context, deliveryID id.DeliveryID) (*delivery.Record, error) {
	var row deliveryRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", deliveryID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrDeliveryNotFound)
	}
	return row.toRecord()
}

func (s *Store) GetDeliveryByDate(ctx context.Context, customerID id.CustomerID, date time.Time) (*delivery.Record, error) {
	var row deliveryRow
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND delivery_date = ?", customerID.String(), types.Day(date)).
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, billing.ErrDeliveryNotFound)
	}
	return row.toRecord()
}

func (s *Store) ListDeliveries(ctx context.Context, customerID id.CustomerID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	q := s.db.WithContext(ctx).Model(&deliveryRow{}).Where("customer_id = ?", customerID.String())
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("delivery_date >= ?", types.Day(opts.Start))
	}
	if !opts.End.IsZero() {
		q = q.Where("delivery_date <= ?", types.Day(opts.End))
	}

	var rows []deliveryRow
	if err := paged(q, opts.Limit, opts.Offset).Order("delivery_date ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*delivery.Record, len(rows))
	for i := range rows {
		r, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, r *delivery.Record, from delivery.Status) error {
	row, err := toDeliveryRow(r)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&deliveryRow{}).
		Where("id = ? AND status = ?", row.ID, string(from)).
		Updates(map[string]any{
			"status":       row.Status,
			"items":        row.Items,
			"notes":        row.Notes,
			"delivered_at": row.DeliveredAt,
			"updated_at":   now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	stored, err := s.GetDelivery(ctx, r.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored status is %s", billing.ErrInvalidTransition, stored.Status)
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var row invoiceRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", invID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrInvoiceNotFound)
	}
	return row.toInvoice()
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID id.CustomerID, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	var row invoiceRow
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND period_start = ? AND period_end = ?",
			customerID.String(), types.Day(periodStart), types.Day(periodEnd)).
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, billing.ErrInvoiceNotFound)
	}
	return row.toInvoice()
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&invoiceRow{}).Where("customer_id = ?", customerID.String())
	if opts.Status != "" {
		q = q.Where("payment_status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("period_start >= ?", types.Day(opts.Start))
	}
	if !opts.End.IsZero() {
		q = q.Where("period_end <= ?", types.Day(opts.End))
	}

	var rows []invoiceRow
	if err := paged(q, opts.Limit, opts.Offset).Order("period_start ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*invoice.Invoice, len(rows))
	for i := range rows {
		inv, err := rows[i].toInvoice()
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func (s *Store) ListEntries(ctx context.Context, customerID id.CustomerID, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	q := s.db.WithContext(ctx).Model(&entryRow{}).Where("customer_id = ?", customerID.String())

	var rows []entryRow
	if err := paged(q, opts.Limit, opts.Offset).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*ledger.Entry, len(rows))
	for i := range rows {
		e, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) LatestEntry(ctx context.Context, customerID id.CustomerID) (*ledger.Entry, error) {
	return latestEntry(s.db.WithContext(ctx), customerID)
}

func latestEntry(db *gorm.DB, customerID id.CustomerID) (*ledger.Entry, error) {
	var row entryRow
	err := db.Where("customer_id = ?", customerID.String()).
		Order("seq DESC").
		Take(&row).Error
	if err != nil {
		return nil, notFound(err, billing.ErrLedgerEmpty)
	}
	return row.toEntry()
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	var row paymentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", paymentID.String()).Error; err != nil {
		return nil, notFound(err, billing.ErrPaymentNotFound)
	}
	return row.toPayment()
}

func (s *Store) ListPayments(ctx context.Context, customerID id.CustomerID, opts payment.ListOpts) ([]*payment.Payment, error) {
	q := s.db.WithContext(ctx).Model(&paymentRow{}).Where("customer_id = ?", customerID.String())
	if !opts.InvoiceID.IsNil() {
		q = q.Where("invoice_id = ?", opts.InvoiceID.String())
	}

	var rows []paymentRow
	if err := paged(q, opts.Limit, opts.Offset).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*payment.Payment, len(rows))
	for i := range rows {
		p, err := rows[i].toPayment()
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Atomic primitives
// ──────────────────────────────────────────────────

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendTx(tx, e)
	})
}

func (s *Store) PostInvoice(ctx context.Context, inv *invoice.Invoice, debit *ledger.Entry) error {
	row, err := toInvoiceRow(inv)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockCustomer(tx, inv.CustomerID); err != nil {
			return err
		}
		// The customer lock also serializes this check against other
		// invoices for the same customer.
		var overlapping int64
		err := tx.Model(&invoiceRow{}).
			Where("customer_id = ? AND period_start <= ? AND period_end >= ?", row.CustomerID, row.PeriodEnd, row.PeriodStart).
			Count(&overlapping).Error
		if err != nil {
			return fmt.Errorf("billing/gorm: post invoice: %w", err)
		}
		if overlapping > 0 {
			return fmt.Errorf("%w: %s overlaps an existing invoice", billing.ErrInvoiceExists, inv.Period())
		}
		if err := tx.Create(row).Error; err != nil {
			return mapWriteError("post invoice", err, billing.ErrInvoiceExists)
		}
		if debit == nil {
			return nil
		}
		if err := appendTx(tx, debit); err != nil {
			return fmt.Errorf("billing/gorm: post invoice: %w: %w", billing.ErrLedgerAppend, err)
		}
		return nil
	})
}

func (s *Store) ApplyPayment(ctx context.Context, p *payment.Payment, credit *ledger.Entry) (*invoice.Invoice, error) {
	var updated *invoice.Invoice
	rec := *p
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated = nil
		if _, err := lockCustomer(tx, rec.CustomerID); err != nil {
			return err
		}

		if rec.HasInvoice() {
			var row invoiceRow
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&row, "id = ?", rec.InvoiceID.String()).Error
			if err != nil {
				return notFound(err, billing.ErrInvoiceNotFound)
			}
			inv, err := row.toInvoice()
			if err != nil {
				return err
			}
			if inv.CustomerID != rec.CustomerID {
				return billing.ErrInvoiceCustomer
			}
			rec.AppliedAmount, rec.ExcessAmount = inv.ApplyPayment(rec.Amount, rec.Date)
			inv.UpdatedAt = now()
			err = tx.Model(&invoiceRow{}).Where("id = ?", row.ID).
				Updates(map[string]any{
					"paid_amount":    inv.PaidAmount.Amount,
					"payment_status": string(inv.PaymentStatus),
					"payment_date":   inv.PaymentDate,
					"updated_at":     inv.UpdatedAt,
				}).Error
			if err != nil {
				return err
			}
			updated = inv
		} else {
			rec.AppliedAmount = types.Zero(rec.Amount.Currency)
			rec.ExcessAmount = rec.Amount
		}

		if err := appendTx(tx, credit); err != nil {
			return fmt.Errorf("billing/gorm: apply payment: %w: %w", billing.ErrLedgerAppend, err)
		}
		rec.LedgerEntryID = credit.ID

		if err := tx.Create(toPaymentRow(&rec)).Error; err != nil {
			return mapWriteError("apply payment", err, billing.ErrAlreadyExists)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.AppliedAmount, p.ExcessAmount, p.LedgerEntryID = rec.AppliedAmount, rec.ExcessAmount, rec.LedgerEntryID
	return updated, nil
}

// appendTx chains e onto the customer's ledger inside tx. The customer
// row lock serializes appends per customer.
func appendTx(tx *gorm.DB, e *ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, err := lockCustomer(tx, e.CustomerID); err != nil {
		return err
	}

	prev, err := latestEntry(tx, e.CustomerID)
	if err != nil && !errors.Is(err, billing.ErrLedgerEmpty) {
		return err
	}
	ledger.Chain(prev, e)

	if err := tx.Create(toEntryRow(e)).Error; err != nil {
		return err
	}

	balance := e.RunningBalance
	return tx.Model(&customerRow{}).Where("id = ?", e.CustomerID.String()).
		Updates(map[string]any{
			"credit_balance":   balance.Amount,
			"advance_balance":  max(-balance.Amount, 0),
			"balance_currency": balance.Currency,
			"updated_at":       now(),
		}).Error
}

func lockCustomer(tx *gorm.DB, customerID id.CustomerID) (*customerRow, error) {
	var row customerRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", customerID.String()).Error
	if err != nil {
		return nil, notFound(err, billing.ErrCustomerNotFound)
	}
	return &row, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func paged(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func mapWriteError(op string, err, conflict error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return fmt.Errorf("billing/gorm: %s: %w", op, conflict)
	}
	return fmt.Errorf("billing/gorm: %s: %w", op, err)
}

// isDuplicate also matches raw driver text for handles opened without
// TranslateError.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "23505")
}

func now() time.Time {
	return time.Now().UTC()
}
