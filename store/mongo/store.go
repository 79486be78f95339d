package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colCustomers     = "billing_customers"
	colProducts      = "billing_products"
	colSubscriptions = "billing_subscriptions"
	colVacations     = "billing_vacations"
	colDeliveries    = "billing_deliveries"
	colInvoices      = "billing_invoices"
	colEntries       = "billing_ledger_entries"
	colPayments      = "billing_payments"
)

// compile-time interface check
var _ billingstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Composite
// primitives run in a multi-document transaction, so the server must be a
// replica set or sharded cluster. Ledger appends bump ledger_seq and the
// balance on the customer document; two appends for the same customer
// write-conflict and the driver retries one of them.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all billing collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("billing/mongo: migrate %s indexes: %w: %w", col, billing.ErrMigrationFailed, err)
		}
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
	_, err := s.mdb.NewInsert(toCustomerModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create customer: %w", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": customerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var models []customerModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if opts.AutoDeliverOnly {
		filter["auto_deliver"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list customers: %w", err)
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

// UpdateCustomer sets profile fields only; balances and ledger_seq are
// owned by ledger appends.
func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	res, err := s.mdb.NewUpdate((*customerModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("phone", m.Phone).
		Set("address", m.Address).
		Set("active", m.Active).
		Set("auto_deliver", m.AutoDeliver).
		Set("billing", m.Billing).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/mongo: update customer: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billing.ErrCustomerNotFound
	}
	return nil
}

// ==================== Product Store ====================

func (s *Store) CreateProduct(ctx context.Context, p *product.Product) error {
	_, err := s.mdb.NewInsert(toProductModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID id.ProductID) (*product.Product, error) {
	var m productModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": productID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrProductNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get product: %w", err)
	}
	return fromProductModel(&m)
}

func (s *Store) ListProducts(ctx context.Context, opts product.ListOpts) ([]*product.Product, error) {
	var models []productModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list products: %w", err)
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
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"customer_id": customerID.String()}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list subscriptions: %w", err)
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
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Vacation Store ====================

func (s *Store) CreateVacation(ctx context.Context, v *vacation.Vacation) error {
	_, err := s.mdb.NewInsert(toVacationModel(v)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrAlreadyExists
		}
		return fmt.Errorf("billing/mongo: create vacation: %w", err)
	}
	return nil
}

func (s *Store) ListVacations(ctx context.Context, customerID id.CustomerID) ([]*vacation.Vacation, error) {
	var models []vacationModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"customer_id": customerID.String()}).
		Sort(bson.D{{Key: "start_date", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing/mongo: list vacations: %w", err)
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
	day := types.Day(date)
	n, err := s.mdb.Collection(colVacations).CountDocuments(ctx, bson.M{
		"customer_id": customerID.String(),
		"active":      true,
		"start_date":  bson.M{"$lte": day},
		"end_date":    bson.M{"$gte": day},
	})
	if err != nil {
		return false, fmt.Errorf("billing/mongo: check vacation: %w", err)
	}
	return n > 0, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, r *delivery.Record) error {
	_, err := s.mdb.NewInsert(toDeliveryModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.ErrDeliveryExists
		}
		return fmt.Errorf("billing/mongo: create delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, deliveryID id.DeliveryID) (*delivery.Record, error) {
	var m deliveryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": deliveryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) GetDeliveryByDate(ctx context.Context, customerID id.CustomerID, date time.Time) (*delivery.Record, error) {
	var m deliveryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"customer_id": customerID.String(), "delivery_date": types.Day(date)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get delivery by date: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListDeliveries(ctx context.Context, customerID id.CustomerID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	var models []deliveryModel

	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if dates := dateRange(opts.Start, opts.End); dates != nil {
		filter["delivery_date"] = dates
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "delivery_date", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list deliveries: %w", err)
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

// UpdateDelivery only matches while the stored status equals from.
func (s *Store) UpdateDelivery(ctx context.Context, r *delivery.Record, from delivery.Status) error {
	m := toDeliveryModel(r)
	res, err := s.mdb.NewUpdate((*deliveryModel)(nil)).
		Filter(bson.M{"_id": m.ID, "status": string(from)}).
		Set("status", m.Status).
		Set("items", m.Items).
		Set("notes", m.Notes).
		Set("delivered_at", m.DeliveredAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("billing/mongo: update delivery: %w", err)
	}
	if res.MatchedCount() > 0 {
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
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) GetInvoiceByPeriod(ctx context.Context, customerID id.CustomerID, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"customer_id":  customerID.String(),
			"period_start": types.Day(periodStart),
			"period_end":   types.Day(periodEnd),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get invoice by period: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["payment_status"] = string(opts.Status)
	}
	if !opts.Start.IsZero() {
		filter["period_start"] = bson.M{"$gte": types.Day(opts.Start)}
	}
	if !opts.End.IsZero() {
		filter["period_end"] = bson.M{"$lte": types.Day(opts.End)}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "period_start", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list invoices: %w", err)
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

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"customer_id": customerID.String()}).
		Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list entries: %w", err)
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
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"customer_id": customerID.String()}).
		Sort(bson.D{{Key: "seq", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrLedgerEmpty
		}
		return nil, fmt.Errorf("billing/mongo: latest entry: %w", err)
	}
	return fromEntryModel(&m)
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": paymentID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, billing.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("billing/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, customerID id.CustomerID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{"customer_id": customerID.String()}
	if !opts.InvoiceID.IsNil() {
		filter["invoice_id"] = opts.InvoiceID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("billing/mongo: list payments: %w", err)
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
	return s.withTransaction(ctx, func(ctx context.Context) error {
		return s.appendTx(ctx, e)
	})
}

func (s *Store) PostInvoice(ctx context.Context, inv *invoice.Invoice, debit *ledger.Entry) error {
	return s.withTransaction(ctx, func(ctx context.Context) error {
		// Touching the customer document makes concurrent invoice posts
		// for one customer conflict, so the overlap check below sees
		// every committed invoice.
		res, err := s.mdb.Collection(colCustomers).UpdateOne(ctx,
			bson.M{"_id": inv.CustomerID.String()},
			bson.M{"$set": bson.M{"updated_at": now()}},
		)
		if err != nil {
			return fmt.Errorf("billing/mongo: post invoice: %w", err)
		}
		if res.MatchedCount == 0 {
			return billing.ErrCustomerNotFound
		}
		n, err := s.mdb.Collection(colInvoices).CountDocuments(ctx, overlapFilter(inv.CustomerID, inv.Period()))
		if err != nil {
			return fmt.Errorf("billing/mongo: post invoice: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s overlaps an existing invoice", billing.ErrInvoiceExists, inv.Period())
		}
		if _, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return billing.ErrInvoiceExists
			}
			return fmt.Errorf("billing/mongo: post invoice: %w", err)
		}
		if debit == nil {
			return nil
		}
		if err := s.appendTx(ctx, debit); err != nil {
			return fmt.Errorf("billing/mongo: post invoice: %w: %w", billing.ErrLedgerAppend, err)
		}
		return nil
	})
}

func (s *Store) ApplyPayment(ctx context.Context, p *payment.Payment, credit *ledger.Entry) (*invoice.Invoice, error) {
	var updated *invoice.Invoice
	var rec payment.Payment
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		updated, rec = nil, *p
		if _, err := s.GetCustomer(ctx, p.CustomerID); err != nil {
			return err
		}
		if p.HasInvoice() {
			inv, err := s.GetInvoice(ctx, p.InvoiceID)
			if err != nil {
				return err
			}
			if inv.CustomerID != p.CustomerID {
				return billing.ErrInvoiceCustomer
			}
			rec.AppliedAmount, rec.ExcessAmount = inv.ApplyPayment(rec.Amount, rec.Date)

			// Writing the invoice document makes concurrent payments
			// against it conflict, so one retries against the new total.
			_, err = s.mdb.NewUpdate((*invoiceModel)(nil)).
				Filter(bson.M{"_id": inv.ID.String()}).
				Set("paid_amount", inv.PaidAmount.Amount).
				Set("payment_status", string(inv.PaymentStatus)).
				Set("payment_date", inv.PaymentDate).
				Set("updated_at", now()).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("billing/mongo: apply payment: %w", err)
			}
			updated = inv
		} else {
			rec.AppliedAmount = types.Zero(rec.Amount.Currency)
			rec.ExcessAmount = rec.Amount
		}

		if err := s.appendTx(ctx, credit); err != nil {
			return fmt.Errorf("billing/mongo: apply payment: %w: %w", billing.ErrLedgerAppend, err)
		}
		rec.LedgerEntryID = credit.ID

		if _, err := s.mdb.NewInsert(toPaymentModel(&rec)).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return billing.ErrAlreadyExists
			}
			return fmt.Errorf("billing/mongo: apply payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.AppliedAmount, p.ExcessAmount, p.LedgerEntryID = rec.AppliedAmount, rec.ExcessAmount, rec.LedgerEntryID
	return updated, nil
}

// appendTx increments the customer's ledger_seq and balance in one
// document update, then inserts the entry with the values it returned.
func (s *Store) appendTx(ctx context.Context, e *ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	t := now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t
	}

	var c customerModel
	err := s.mdb.Collection(colCustomers).FindOneAndUpdate(ctx,
		bson.M{"_id": e.CustomerID.String()},
		bson.M{
			"$inc": bson.M{"ledger_seq": 1, "credit_balance": e.Delta().Amount},
			"$set": bson.M{"balance_currency": e.Debit.Currency, "updated_at": t},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		if isNoDocuments(err) {
			return billing.ErrCustomerNotFound
		}
		return err
	}

	e.Seq = c.LedgerSeq
	e.RunningBalance = types.New(c.CreditBalance, e.Debit.Currency)

	_, err = s.mdb.Collection(colCustomers).UpdateOne(ctx,
		bson.M{"_id": c.ID},
		bson.M{"$set": bson.M{"advance_balance": max(-c.CreditBalance, 0)}},
	)
	if err != nil {
		return err
	}

	_, err = s.mdb.NewInsert(toEntryModel(e)).Exec(ctx)
	return err
}

func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	client := s.mdb.Collection(colCustomers).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("billing/mongo: start session: %w: %w", billing.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// overlapFilter matches a customer's invoices sharing a day with period.
func overlapFilter(customerID id.CustomerID, period types.Period) bson.M {
	return bson.M{
		"customer_id":  customerID.String(),
		"period_start": bson.M{"$lte": period.End},
		"period_end":   bson.M{"$gte": period.Start},
	}
}

func dateRange(start, end time.Time) bson.M {
	if start.IsZero() && end.IsZero() {
		return nil
	}
	r := bson.M{}
	if !start.IsZero() {
		r["$gte"] = types.Day(start)
	}
	if !end.IsZero() {
		r["$lte"] = types.Day(end)
	}
	return r
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all billing collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "auto_deliver", Value: 1}}},
		},
		colProducts: {},
		colSubscriptions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		colVacations: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "start_date", Value: 1}, {Key: "end_date", Value: 1}}},
		},
		colDeliveries: {
			{
				Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "delivery_date", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}, {Key: "delivery_date", Value: 1}}},
		},
		colInvoices: {
			{
				Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "period_start", Value: 1}, {Key: "period_end", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colPayments: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
		},
	}
}
