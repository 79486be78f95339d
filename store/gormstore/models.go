package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
	"github.com/doodhwala/billing/vacation"
)

// Rows share table names with store/postgres so either backend can sit on
// the same schema. Ids are varchar so MySQL can index them.

type customerRow struct {
	ID              string         `gorm:"column:id;type:varchar(64);primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	Phone           string         `gorm:"column:phone"`
	Address         string         `gorm:"column:address"`
	Active          bool           `gorm:"column:active;not null;default:true;index:idx_billing_customers_schedulable,priority:1"`
	AutoDeliver     bool           `gorm:"column:auto_deliver;not null;default:false;index:idx_billing_customers_schedulable,priority:2"`
	CreditBalance   int64          `gorm:"column:credit_balance;not null;default:0"`
	AdvanceBalance  int64          `gorm:"column:advance_balance;not null;default:0"`
	BalanceCurrency string         `gorm:"column:balance_currency;type:varchar(8)"`
	Billing         datatypes.JSON `gorm:"column:billing"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

func (customerRow) TableName() string { return "billing_customers" }

func toCustomerRow(c *customer.Customer) *customerRow {
	return &customerRow{
		ID:              c.ID.String(),
		Name:            c.Name,
		Phone:           c.Phone,
		Address:         c.Address,
		Active:          c.Active,
		AutoDeliver:     c.AutoDeliver,
		CreditBalance:   c.CreditBalance.Amount,
		AdvanceBalance:  c.AdvanceBalance.Amount,
		BalanceCurrency: c.CreditBalance.Currency,
		Billing:         ruleJSON(c.Billing),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (r *customerRow) toCustomer() (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(r.ID)
	if err != nil {
		return nil, err
	}
	var rule *pricing.Rule
	if len(r.Billing) > 0 && string(r.Billing) != "null" {
		rule = new(pricing.Rule)
		if err := json.Unmarshal(r.Billing, rule); err != nil {
			return nil, err
		}
	}
	return &customer.Customer{
		Entity:         types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:             customerID,
		Name:           r.Name,
		Phone:          r.Phone,
		Address:        r.Address,
		Active:         r.Active,
		AutoDeliver:    r.AutoDeliver,
		CreditBalance:  types.New(r.CreditBalance, r.BalanceCurrency),
		AdvanceBalance: types.New(r.AdvanceBalance, r.BalanceCurrency),
		Billing:        rule,
	}, nil
}

func ruleJSON(r *pricing.Rule) datatypes.JSON {
	if r == nil {
		return nil
	}
	raw, _ := json.Marshal(r) //nolint:errcheck // plain struct of ints
	return datatypes.JSON(raw)
}

type productRow struct {
	ID        string    `gorm:"column:id;type:varchar(64);primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Unit      string    `gorm:"column:unit"`
	BasePrice int64     `gorm:"column:base_price;not null"`
	Currency  string    `gorm:"column:currency;type:varchar(8)"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (productRow) TableName() string { return "billing_products" }

func toProductRow(p *product.Product) *productRow {
	return &productRow{
		ID:        p.ID.String(),
		Name:      p.Name,
		Unit:      p.Unit,
		BasePrice: p.BasePrice.Amount,
		Currency:  p.BasePrice.Currency,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (r *productRow) toProduct() (*product.Product, error) {
	productID, err := id.ParseProductID(r.ID)
	if err != nil {
		return nil, err
	}
	return &product.Product{
		Entity:    types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:        productID,
		Name:      r.Name,
		Unit:      r.Unit,
		BasePrice: types.New(r.BasePrice, r.Currency),
		Active:    r.Active,
	}, nil
}

type subscriptionRow struct {
	ID          string         `gorm:"column:id;type:varchar(64);primaryKey"`
	CustomerID  string         `gorm:"column:customer_id;type:varchar(64);not null;index:idx_billing_subscriptions_customer"`
	ProductID   string         `gorm:"column:product_id;type:varchar(64);not null"`
	Quantity    int64          `gorm:"column:quantity;not null"`
	CustomPrice *int64         `gorm:"column:custom_price"`
	Currency    string         `gorm:"column:currency;type:varchar(8)"`
	Pattern     datatypes.JSON `gorm:"column:pattern;not null"`
	StartDate   time.Time      `gorm:"column:start_date;not null"`
	Active      bool           `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (subscriptionRow) TableName() string { return "billing_subscriptions" }

func toSubscriptionRow(s *subscription.Subscription) (*subscriptionRow, error) {
	pattern, err := json.Marshal(s.Pattern)
	if err != nil {
		return nil, err
	}
	r := &subscriptionRow{
		ID:         s.ID.String(),
		CustomerID: s.CustomerID.String(),
		ProductID:  s.ProductID.String(),
		Quantity:   int64(s.Quantity),
		Pattern:    datatypes.JSON(pattern),
		StartDate:  types.Day(s.StartDate),
		Active:     s.Active,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.CustomPrice != nil {
		amount := s.CustomPrice.Amount
		r.CustomPrice = &amount
		r.Currency = s.CustomPrice.Currency
	}
	return r, nil
}

func (r *subscriptionRow) toSubscription() (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	productID, err := id.ParseProductID(r.ProductID)
	if err != nil {
		return nil, err
	}
	var pattern subscription.DeliveryPattern
	if err := json.Unmarshal(r.Pattern, &pattern); err != nil {
		return nil, err
	}
	s := &subscription.Subscription{
		Entity:     types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:         subID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   types.Quantity(r.Quantity),
		Pattern:    pattern,
		StartDate:  r.StartDate.UTC(),
		Active:     r.Active,
	}
	if r.CustomPrice != nil {
		price := types.New(*r.CustomPrice, r.Currency)
		s.CustomPrice = &price
	}
	return s, nil
}

type vacationRow struct {
	ID         string    `gorm:"column:id;type:varchar(64);primaryKey"`
	CustomerID string    `gorm:"column:customer_id;type:varchar(64);not null;index:idx_billing_vacations_customer"`
	StartDate  time.Time `gorm:"column:start_date;not null"`
	EndDate    time.Time `gorm:"column:end_date;not null"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	Reason     string    `gorm:"column:reason"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (vacationRow) TableName() string { return "billing_vacations" }

func toVacationRow(v *vacation.Vacation) *vacationRow {
	return &vacationRow{
		ID:         v.ID.String(),
		CustomerID: v.CustomerID.String(),
		StartDate:  types.Day(v.StartDate),
		EndDate:    types.Day(v.EndDate),
		Active:     v.Active,
		Reason:     v.Reason,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
}

func (r *vacationRow) toVacation() (*vacation.Vacation, error) {
	vacID, err := id.ParseVacationID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	return &vacation.Vacation{
		Entity:     types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:         vacID,
		CustomerID: customerID,
		StartDate:  r.StartDate.UTC(),
		EndDate:    r.EndDate.UTC(),
		Active:     r.Active,
		Reason:     r.Reason,
	}, nil
}

type deliveryRow struct {
	ID           string         `gorm:"column:id;type:varchar(64);primaryKey"`
	CustomerID   string         `gorm:"column:customer_id;type:varchar(64);not null;uniqueIndex:idx_billing_deliveries_customer_date,priority:1"`
	DeliveryDate time.Time      `gorm:"column:delivery_date;not null;uniqueIndex:idx_billing_deliveries_customer_date,priority:2"`
	Status       string         `gorm:"column:status;type:varchar(16);not null"`
	Items        datatypes.JSON `gorm:"column:items;not null"`
	Notes        string         `gorm:"column:notes"`
	DeliveredAt  *time.Time     `gorm:"column:delivered_at"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}

func (deliveryRow) TableName() string { return "billing_deliveries" }

func toDeliveryRow(r *delivery.Record) (*deliveryRow, error) {
	items := r.Items
	if items == nil {
		items = []delivery.Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return &deliveryRow{
		ID:           r.ID.String(),
		CustomerID:   r.CustomerID.String(),
		DeliveryDate: types.Day(r.Date),
		Status:       string(r.Status),
		Items:        datatypes.JSON(raw),
		Notes:        r.Notes,
		DeliveredAt:  r.DeliveredAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func (r *deliveryRow) toRecord() (*delivery.Record, error) {
	deliveryID, err := id.ParseDeliveryID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	var items []delivery.Item
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &items); err != nil {
			return nil, err
		}
	}
	return &delivery.Record{
		Entity:      types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:          deliveryID,
		CustomerID:  customerID,
		Date:        r.DeliveryDate.UTC(),
		Status:      delivery.Status(r.Status),
		Items:       items,
		Notes:       r.Notes,
		DeliveredAt: r.DeliveredAt,
	}, nil
}

type invoiceRow struct {
	ID             string         `gorm:"column:id;type:varchar(64);primaryKey"`
	Number         string         `gorm:"column:number;type:varchar(64)"`
	CustomerID     string         `gorm:"column:customer_id;type:varchar(64);not null;uniqueIndex:idx_billing_invoices_period,priority:1"`
	PeriodStart    time.Time      `gorm:"column:period_start;not null;uniqueIndex:idx_billing_invoices_period,priority:2"`
	PeriodEnd      time.Time      `gorm:"column:period_end;not null;uniqueIndex:idx_billing_invoices_period,priority:3"`
	LineItems      datatypes.JSON `gorm:"column:line_items;not null"`
	TotalAmount    int64          `gorm:"column:total_amount;not null"`
	TaxAmount      int64          `gorm:"column:tax_amount;not null"`
	DiscountAmount int64          `gorm:"column:discount_amount;not null"`
	FinalAmount    int64          `gorm:"column:final_amount;not null"`
	PaidAmount     int64          `gorm:"column:paid_amount;not null;default:0"`
	Currency       string         `gorm:"column:currency;type:varchar(8)"`
	PaymentStatus  string         `gorm:"column:payment_status;type:varchar(16);not null"`
	DueDate        time.Time      `gorm:"column:due_date;not null"`
	PaymentDate    *time.Time     `gorm:"column:payment_date"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (invoiceRow) TableName() string { return "billing_invoices" }

func toInvoiceRow(inv *invoice.Invoice) (*invoiceRow, error) {
	lines := inv.LineItems
	if lines == nil {
		lines = []invoice.LineItem{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	return &invoiceRow{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		PeriodStart:    types.Day(inv.PeriodStart),
		PeriodEnd:      types.Day(inv.PeriodEnd),
		LineItems:      datatypes.JSON(raw),
		TotalAmount:    inv.TotalAmount.Amount,
		TaxAmount:      inv.TaxAmount.Amount,
		DiscountAmount: inv.DiscountAmount.Amount,
		FinalAmount:    inv.FinalAmount.Amount,
		PaidAmount:     inv.PaidAmount.Amount,
		Currency:       inv.FinalAmount.Currency,
		PaymentStatus:  string(inv.PaymentStatus),
		DueDate:        inv.DueDate,
		PaymentDate:    inv.PaymentDate,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}, nil
}

func (r *invoiceRow) toInvoice() (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	var lines []invoice.LineItem
	if len(r.LineItems) > 0 {
		if err := json.Unmarshal(r.LineItems, &lines); err != nil {
			return nil, err
		}
	}
	return &invoice.Invoice{
		Entity:         types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:             invID,
		Number:         r.Number,
		CustomerID:     customerID,
		PeriodStart:    r.PeriodStart.UTC(),
		PeriodEnd:      r.PeriodEnd.UTC(),
		LineItems:      lines,
		TotalAmount:    types.New(r.TotalAmount, r.Currency),
		TaxAmount:      types.New(r.TaxAmount, r.Currency),
		DiscountAmount: types.New(r.DiscountAmount, r.Currency),
		FinalAmount:    types.New(r.FinalAmount, r.Currency),
		PaidAmount:     types.New(r.PaidAmount, r.Currency),
		PaymentStatus:  invoice.PaymentStatus(r.PaymentStatus),
		DueDate:        r.DueDate.UTC(),
		PaymentDate:    r.PaymentDate,
	}, nil
}

type entryRow struct {
	ID             string    `gorm:"column:id;type:varchar(64);primaryKey"`
	CustomerID     string    `gorm:"column:customer_id;type:varchar(64);not null;uniqueIndex:idx_billing_ledger_customer_seq,priority:1"`
	Seq            int64     `gorm:"column:seq;not null;uniqueIndex:idx_billing_ledger_customer_seq,priority:2"`
	Date           time.Time `gorm:"column:date;not null"`
	Type           string    `gorm:"column:type;type:varchar(16);not null"`
	Description    string    `gorm:"column:description"`
	Debit          int64     `gorm:"column:debit;not null;default:0"`
	Credit         int64     `gorm:"column:credit;not null;default:0"`
	Currency       string    `gorm:"column:currency;type:varchar(8)"`
	RunningBalance int64     `gorm:"column:running_balance;not null"`
	ReferenceID    string    `gorm:"column:reference_id;type:varchar(100)"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (entryRow) TableName() string { return "billing_ledger_entries" }

func toEntryRow(e *ledger.Entry) *entryRow {
	return &entryRow{
		ID:             e.ID.String(),
		CustomerID:     e.CustomerID.String(),
		Seq:            e.Seq,
		Date:           types.Day(e.Date),
		Type:           string(e.Type),
		Description:    e.Description,
		Debit:          e.Debit.Amount,
		Credit:         e.Credit.Amount,
		Currency:       e.Debit.Currency,
		RunningBalance: e.RunningBalance.Amount,
		ReferenceID:    e.ReferenceID,
		CreatedAt:      e.CreatedAt,
	}
}

func (r *entryRow) toEntry() (*ledger.Entry, error) {
	entryID, err := id.ParseLedgerEntryID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	return &ledger.Entry{
		ID:             entryID,
		CustomerID:     customerID,
		Seq:            r.Seq,
		Date:           r.Date.UTC(),
		Type:           ledger.EntryType(r.Type),
		Description:    r.Description,
		Debit:          types.New(r.Debit, r.Currency),
		Credit:         types.New(r.Credit, r.Currency),
		RunningBalance: types.New(r.RunningBalance, r.Currency),
		ReferenceID:    r.ReferenceID,
		CreatedAt:      r.CreatedAt,
	}, nil
}

type paymentRow struct {
	ID            string    `gorm:"column:id;type:varchar(64);primaryKey"`
	CustomerID    string    `gorm:"column:customer_id;type:varchar(64);not null;index:idx_billing_payments_customer"`
	InvoiceID     string    `gorm:"column:invoice_id;type:varchar(64);index:idx_billing_payments_invoice"`
	Amount        int64     `gorm:"column:amount;not null"`
	AppliedAmount int64     `gorm:"column:applied_amount;not null"`
	ExcessAmount  int64     `gorm:"column:excess_amount;not null"`
	Currency      string    `gorm:"column:currency;type:varchar(8)"`
	Mode          string    `gorm:"column:mode;type:varchar(16);not null"`
	Date          time.Time `gorm:"column:date;not null"`
	Notes         string    `gorm:"column:notes"`
	LedgerEntryID string    `gorm:"column:ledger_entry_id;type:varchar(64)"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (paymentRow) TableName() string { return "billing_payments" }

func toPaymentRow(p *payment.Payment) *paymentRow {
	r := &paymentRow{
		ID:            p.ID.String(),
		CustomerID:    p.CustomerID.String(),
		Amount:        p.Amount.Amount,
		AppliedAmount: p.AppliedAmount.Amount,
		ExcessAmount:  p.ExcessAmount.Amount,
		Currency:      p.Amount.Currency,
		Mode:          string(p.Mode),
		Date:          types.Day(p.Date),
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.HasInvoice() {
		r.InvoiceID = p.InvoiceID.String()
	}
	if !p.LedgerEntryID.IsNil() {
		r.LedgerEntryID = p.LedgerEntryID.String()
	}
	return r
}

func (r *paymentRow) toPayment() (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(r.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(r.CustomerID)
	if err != nil {
		return nil, err
	}
	p := &payment.Payment{
		Entity:        types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:            paymentID,
		CustomerID:    customerID,
		Amount:        types.New(r.Amount, r.Currency),
		AppliedAmount: types.New(r.AppliedAmount, r.Currency),
		ExcessAmount:  types.New(r.ExcessAmount, r.Currency),
		Mode:          payment.Mode(r.Mode),
		Date:          r.Date.UTC(),
		Notes:         r.Notes,
	}
	if r.InvoiceID != "" {
		if p.InvoiceID, err = id.ParseInvoiceID(r.InvoiceID); err != nil {
			return nil, err
		}
	}
	if r.LedgerEntryID != "" {
		if p.LedgerEntryID, err = id.ParseLedgerEntryID(r.LedgerEntryID); err != nil {
			return nil, err
		}
	}
	return p, nil
}
