package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

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

// Amounts are stored as BIGINT in the smallest currency unit with one
// currency column per row. Quantities are BIGINT thousandths.

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:billing_customers"`

	ID              string          `grove:"id,pk"`
	Name            string          `grove:"name"`
	Phone           string          `grove:"phone"`
	Address         string          `grove:"address"`
	Active          bool            `grove:"active"`
	AutoDeliver     bool            `grove:"auto_deliver"`
	CreditBalance   int64           `grove:"credit_balance"`
	AdvanceBalance  int64           `grove:"advance_balance"`
	BalanceCurrency string          `grove:"balance_currency"`
	Billing         json.RawMessage `grove:"billing,type:jsonb"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	return &customerModel{
		ID:              c.ID.String(),
		Name:            c.Name,
		Phone:           c.Phone,
		Address:         c.Address,
		Active:          c.Active,
		AutoDeliver:     c.AutoDeliver,
		CreditBalance:   c.CreditBalance.Amount,
		AdvanceBalance:  c.AdvanceBalance.Amount,
		BalanceCurrency: c.CreditBalance.Currency,
		Billing:         marshalRule(c.Billing),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	rule, err := unmarshalRule(m.Billing)
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             customerID,
		Name:           m.Name,
		Phone:          m.Phone,
		Address:        m.Address,
		Active:         m.Active,
		AutoDeliver:    m.AutoDeliver,
		CreditBalance:  types.New(m.CreditBalance, m.BalanceCurrency),
		AdvanceBalance: types.New(m.AdvanceBalance, m.BalanceCurrency),
		Billing:        rule,
	}, nil
}

func marshalRule(r *pricing.Rule) json.RawMessage {
	if r == nil {
		return nil
	}
	raw, _ := json.Marshal(r) //nolint:errcheck // plain struct of ints
	return raw
}

func unmarshalRule(raw json.RawMessage) (*pricing.Rule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	r := new(pricing.Rule)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ==================== Product models ====================

type productModel struct {
	grove.BaseModel `grove:"table:billing_products"`

	ID        string    `grove:"id,pk"`
	Name      string    `grove:"name"`
	Unit      string    `grove:"unit"`
	BasePrice int64     `grove:"base_price"`
	Currency  string    `grove:"currency"`
	Active    bool      `grove:"active"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toProductModel(p *product.Product) *productModel {
	return &productModel{
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

func fromProductModel(m *productModel) (*product.Product, error) {
	productID, err := id.ParseProductID(m.ID)
	if err != nil {
		return nil, err
	}
	return &product.Product{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        productID,
		Name:      m.Name,
		Unit:      m.Unit,
		BasePrice: types.New(m.BasePrice, m.Currency),
		Active:    m.Active,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:billing_subscriptions"`

	ID          string          `grove:"id,pk"`
	CustomerID  string          `grove:"customer_id"`
	ProductID   string          `grove:"product_id"`
	Quantity    int64           `grove:"quantity"`
	CustomPrice *int64          `grove:"custom_price"`
	Currency    string          `grove:"currency"`
	Pattern     json.RawMessage `grove:"pattern,type:jsonb"`
	StartDate   time.Time       `grove:"start_date"`
	Active      bool            `grove:"active"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) (*subscriptionModel, error) {
	pattern, err := json.Marshal(s.Pattern)
	if err != nil {
		return nil, err
	}
	m := &subscriptionModel{
		ID:         s.ID.String(),
		CustomerID: s.CustomerID.String(),
		ProductID:  s.ProductID.String(),
		Quantity:   int64(s.Quantity),
		Pattern:    pattern,
		StartDate:  s.StartDate,
		Active:     s.Active,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.CustomPrice != nil {
		amount := s.CustomPrice.Amount
		m.CustomPrice = &amount
		m.Currency = s.CustomPrice.Currency
	}
	return m, nil
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	productID, err := id.ParseProductID(m.ProductID)
	if err != nil {
		return nil, err
	}
	var pattern subscription.DeliveryPattern
	if err := json.Unmarshal(m.Pattern, &pattern); err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         subID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   types.Quantity(m.Quantity),
		Pattern:    pattern,
		StartDate:  m.StartDate.UTC(),
		Active:     m.Active,
	}
	if m.CustomPrice != nil {
		price := types.New(*m.CustomPrice, m.Currency)
		s.CustomPrice = &price
	}
	return s, nil
}

// ==================== Vacation models ====================

type vacationModel struct {
	grove.BaseModel `grove:"table:billing_vacations"`

	ID         string    `grove:"id,pk"`
	CustomerID string    `grove:"customer_id"`
	StartDate  time.Time `grove:"start_date"`
	EndDate    time.Time `grove:"end_date"`
	Active     bool      `grove:"active"`
	Reason     string    `grove:"reason"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toVacationModel(v *vacation.Vacation) *vacationModel {
	return &vacationModel{
		ID:         v.ID.String(),
		CustomerID: v.CustomerID.String(),
		StartDate:  v.StartDate,
		EndDate:    v.EndDate,
		Active:     v.Active,
		Reason:     v.Reason,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
}

func fromVacationModel(m *vacationModel) (*vacation.Vacation, error) {
	vacID, err := id.ParseVacationID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	return &vacation.Vacation{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         vacID,
		CustomerID: customerID,
		StartDate:  m.StartDate.UTC(),
		EndDate:    m.EndDate.UTC(),
		Active:     m.Active,
		Reason:     m.Reason,
	}, nil
}

// ==================== Delivery models ====================

type deliveryModel struct {
	grove.BaseModel `grove:"table:billing_deliveries"`

	ID           string          `grove:"id,pk"`
	CustomerID   string          `grove:"customer_id"`
	DeliveryDate time.Time       `grove:"delivery_date"`
	Status       string          `grove:"status"`
	Items        json.RawMessage `grove:"items,type:jsonb"`
	Notes        string          `grove:"notes"`
	DeliveredAt  *time.Time      `grove:"delivered_at"`
	CreatedAt    time.Time       `grove:"created_at"`
	UpdatedAt    time.Time       `grove:"updated_at"`
}

func toDeliveryModel(r *delivery.Record) (*deliveryModel, error) {
	items, err := marshalItems(r.Items)
	if err != nil {
		return nil, err
	}
	return &deliveryModel{
		ID:           r.ID.String(),
		CustomerID:   r.CustomerID.String(),
		DeliveryDate: r.Date,
		Status:       string(r.Status),
		Items:        items,
		Notes:        r.Notes,
		DeliveredAt:  r.DeliveredAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Record, error) {
	deliveryID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	var items []delivery.Item
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, err
		}
	}
	return &delivery.Record{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          deliveryID,
		CustomerID:  customerID,
		Date:        m.DeliveryDate.UTC(),
		Status:      delivery.Status(m.Status),
		Items:       items,
		Notes:       m.Notes,
		DeliveredAt: m.DeliveredAt,
	}, nil
}

func marshalItems(items []delivery.Item) (json.RawMessage, error) {
	if items == nil {
		items = []delivery.Item{}
	}
	return json.Marshal(items)
}

// ==================== Invoice models ====================

// invoiceModel doubles as the JSON document handed to billing_post_invoice,
// so its json names match the column names.
type invoiceModel struct {
	grove.BaseModel `grove:"table:billing_invoices" json:"-"`

	ID             string          `grove:"id,pk" json:"id"`
	Number         string          `grove:"number" json:"number"`
	CustomerID     string          `grove:"customer_id" json:"customer_id"`
	PeriodStart    time.Time       `grove:"period_start" json:"period_start"`
	PeriodEnd      time.Time       `grove:"period_end" json:"period_end"`
	LineItems      json.RawMessage `grove:"line_items,type:jsonb" json:"line_items"`
	TotalAmount    int64           `grove:"total_amount" json:"total_amount"`
	TaxAmount      int64           `grove:"tax_amount" json:"tax_amount"`
	DiscountAmount int64           `grove:"discount_amount" json:"discount_amount"`
	FinalAmount    int64           `grove:"final_amount" json:"final_amount"`
	PaidAmount     int64           `grove:"paid_amount" json:"paid_amount"`
	Currency       string          `grove:"currency" json:"currency"`
	PaymentStatus  string          `grove:"payment_status" json:"payment_status"`
	DueDate        time.Time       `grove:"due_date" json:"due_date"`
	PaymentDate    *time.Time      `grove:"payment_date" json:"payment_date"`
	CreatedAt      time.Time       `grove:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at" json:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	lines := inv.LineItems
	if lines == nil {
		lines = []invoice.LineItem{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		LineItems:      raw,
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

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	var lines []invoice.LineItem
	if len(m.LineItems) > 0 {
		if err := json.Unmarshal(m.LineItems, &lines); err != nil {
			return nil, err
		}
	}
	return &invoice.Invoice{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             invID,
		Number:         m.Number,
		CustomerID:     customerID,
		PeriodStart:    m.PeriodStart.UTC(),
		PeriodEnd:      m.PeriodEnd.UTC(),
		LineItems:      lines,
		TotalAmount:    types.New(m.TotalAmount, m.Currency),
		TaxAmount:      types.New(m.TaxAmount, m.Currency),
		DiscountAmount: types.New(m.DiscountAmount, m.Currency),
		FinalAmount:    types.New(m.FinalAmount, m.Currency),
		PaidAmount:     types.New(m.PaidAmount, m.Currency),
		PaymentStatus:  invoice.PaymentStatus(m.PaymentStatus),
		DueDate:        m.DueDate.UTC(),
		PaymentDate:    m.PaymentDate,
	}, nil
}

// ==================== Ledger models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:billing_ledger_entries" json:"-"`

	ID             string    `grove:"id,pk" json:"id"`
	CustomerID     string    `grove:"customer_id" json:"customer_id"`
	Seq            int64     `grove:"seq" json:"seq"`
	Date           time.Time `grove:"date" json:"date"`
	Type           string    `grove:"type" json:"type"`
	Description    string    `grove:"description" json:"description"`
	Debit          int64     `grove:"debit" json:"debit"`
	Credit         int64     `grove:"credit" json:"credit"`
	Currency       string    `grove:"currency" json:"currency"`
	RunningBalance int64     `grove:"running_balance" json:"running_balance"`
	ReferenceID    string    `grove:"reference_id" json:"reference_id"`
	CreatedAt      time.Time `grove:"created_at" json:"created_at"`
}

func toEntryModel(e *ledger.Entry) *entryModel {
	return &entryModel{
		ID:             e.ID.String(),
		CustomerID:     e.CustomerID.String(),
		Seq:            e.Seq,
		Date:           e.Date,
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

func fromEntryModel(m *entryModel) (*ledger.Entry, error) {
	entryID, err := id.ParseLedgerEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	return &ledger.Entry{
		ID:             entryID,
		CustomerID:     customerID,
		Seq:            m.Seq,
		Date:           m.Date.UTC(),
		Type:           ledger.EntryType(m.Type),
		Description:    m.Description,
		Debit:          types.New(m.Debit, m.Currency),
		Credit:         types.New(m.Credit, m.Currency),
		RunningBalance: types.New(m.RunningBalance, m.Currency),
		ReferenceID:    m.ReferenceID,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:billing_payments" json:"-"`

	ID            string    `grove:"id,pk" json:"id"`
	CustomerID    string    `grove:"customer_id" json:"customer_id"`
	InvoiceID     string    `grove:"invoice_id" json:"invoice_id"`
	Amount        int64     `grove:"amount" json:"amount"`
	AppliedAmount int64     `grove:"applied_amount" json:"applied_amount"`
	ExcessAmount  int64     `grove:"excess_amount" json:"excess_amount"`
	Currency      string    `grove:"currency" json:"currency"`
	Mode          string    `grove:"mode" json:"mode"`
	Date          time.Time `grove:"date" json:"date"`
	Notes         string    `grove:"notes" json:"notes"`
	LedgerEntryID string    `grove:"ledger_entry_id" json:"ledger_entry_id"`
	CreatedAt     time.Time `grove:"created_at" json:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at" json:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	m := &paymentModel{
		ID:            p.ID.String(),
		CustomerID:    p.CustomerID.String(),
		Amount:        p.Amount.Amount,
		AppliedAmount: p.AppliedAmount.Amount,
		ExcessAmount:  p.ExcessAmount.Amount,
		Currency:      p.Amount.Currency,
		Mode:          string(p.Mode),
		Date:          p.Date,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.HasInvoice() {
		m.InvoiceID = p.InvoiceID.String()
	}
	if !p.LedgerEntryID.IsNil() {
		m.LedgerEntryID = p.LedgerEntryID.String()
	}
	return m
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	p := &payment.Payment{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            paymentID,
		CustomerID:    customerID,
		Amount:        types.New(m.Amount, m.Currency),
		AppliedAmount: types.New(m.AppliedAmount, m.Currency),
		ExcessAmount:  types.New(m.ExcessAmount, m.Currency),
		Mode:          payment.Mode(m.Mode),
		Date:          m.Date.UTC(),
		Notes:         m.Notes,
	}
	if m.InvoiceID != "" {
		if p.InvoiceID, err = id.ParseInvoiceID(m.InvoiceID); err != nil {
			return nil, err
		}
	}
	if m.LedgerEntryID != "" {
		if p.LedgerEntryID, err = id.ParseLedgerEntryID(m.LedgerEntryID); err != nil {
			return nil, err
		}
	}
	return p, nil
}
