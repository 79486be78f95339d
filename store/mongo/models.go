package mongo

import (
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

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:billing_customers"`

	ID              string     `grove:"id,pk"            bson:"_id"`
	Name            string     `grove:"name"             bson:"name"`
	Phone           string     `grove:"phone"            bson:"phone"`
	Address         string     `grove:"address"          bson:"address"`
	Active          bool       `grove:"active"           bson:"active"`
	AutoDeliver     bool       `grove:"auto_deliver"     bson:"auto_deliver"`
	CreditBalance   int64      `grove:"credit_balance"   bson:"credit_balance"`
	AdvanceBalance  int64      `grove:"advance_balance"  bson:"advance_balance"`
	BalanceCurrency string     `grove:"balance_currency" bson:"balance_currency"`
	LedgerSeq       int64      `grove:"ledger_seq"       bson:"ledger_seq"`
	Billing         *ruleModel `grove:"billing"          bson:"billing,omitempty"`
	CreatedAt       time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"       bson:"updated_at"`
}

type ruleModel struct {
	TaxBasisPoints      int64 `bson:"tax_bp"`
	DiscountBasisPoints int64 `bson:"discount_bp"`
	FlatDiscount        int64 `bson:"flat_discount"`
}

func toRuleModel(r *pricing.Rule) *ruleModel {
	if r == nil {
		return nil
	}
	return &ruleModel{
		TaxBasisPoints:      r.TaxBasisPoints,
		DiscountBasisPoints: r.DiscountBasisPoints,
		FlatDiscount:        r.FlatDiscount,
	}
}

func (m *ruleModel) toRule() *pricing.Rule {
	if m == nil {
		return nil
	}
	return &pricing.Rule{
		TaxBasisPoints:      m.TaxBasisPoints,
		DiscountBasisPoints: m.DiscountBasisPoints,
		FlatDiscount:        m.FlatDiscount,
	}
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
		Billing:         toRuleModel(c.Billing),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
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
		Billing:        m.Billing.toRule(),
	}, nil
}

// ==================== Product models ====================

type productModel struct {
	grove.BaseModel `grove:"table:billing_products"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Name      string    `grove:"name"       bson:"name"`
	Unit      string    `grove:"unit"       bson:"unit"`
	BasePrice int64     `grove:"base_price" bson:"base_price"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Active    bool      `grove:"active"     bson:"active"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
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

	ID          string       `grove:"id,pk"        bson:"_id"`
	CustomerID  string       `grove:"customer_id"  bson:"customer_id"`
	ProductID   string       `grove:"product_id"   bson:"product_id"`
	Quantity    int64        `grove:"quantity"     bson:"quantity"`
	CustomPrice *int64       `grove:"custom_price" bson:"custom_price,omitempty"`
	Currency    string       `grove:"currency"     bson:"currency"`
	Pattern     patternModel `grove:"pattern"      bson:"pattern"`
	StartDate   time.Time    `grove:"start_date"   bson:"start_date"`
	Active      bool         `grove:"active"       bson:"active"`
	CreatedAt   time.Time    `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time    `grove:"updated_at"   bson:"updated_at"`
}

type patternModel struct {
	Kind string `bson:"kind"`
	Days []int  `bson:"days,omitempty"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	pattern := patternModel{Kind: string(s.Pattern.Kind)}
	for _, d := range s.Pattern.Days {
		pattern.Days = append(pattern.Days, int(d))
	}
	m := &subscriptionModel{
		ID:         s.ID.String(),
		CustomerID: s.CustomerID.String(),
		ProductID:  s.ProductID.String(),
		Quantity:   int64(s.Quantity),
		Pattern:    pattern,
		StartDate:  types.Day(s.StartDate),
		Active:     s.Active,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.CustomPrice != nil {
		amount := s.CustomPrice.Amount
		m.CustomPrice = &amount
		m.Currency = s.CustomPrice.Currency
	}
	return m
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
	pattern := subscription.DeliveryPattern{Kind: subscription.PatternKind(m.Pattern.Kind)}
	for _, d := range m.Pattern.Days {
		pattern.Days = append(pattern.Days, time.Weekday(d))
	}
	if err := pattern.Validate(); err != nil {
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

	ID         string    `grove:"id,pk"       bson:"_id"`
	CustomerID string    `grove:"customer_id" bson:"customer_id"`
	StartDate  time.Time `grove:"start_date"  bson:"start_date"`
	EndDate    time.Time `grove:"end_date"    bson:"end_date"`
	Active     bool      `grove:"active"      bson:"active"`
	Reason     string    `grove:"reason"      bson:"reason"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toVacationModel(v *vacation.Vacation) *vacationModel {
	return &vacationModel{
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

	ID           string      `grove:"id,pk"         bson:"_id"`
	CustomerID   string      `grove:"customer_id"   bson:"customer_id"`
	DeliveryDate time.Time   `grove:"delivery_date" bson:"delivery_date"`
	Status       string      `grove:"status"        bson:"status"`
	Items        []itemModel `grove:"items"         bson:"items"`
	Notes        string      `grove:"notes"         bson:"notes"`
	DeliveredAt  *time.Time  `grove:"delivered_at"  bson:"delivered_at,omitempty"`
	CreatedAt    time.Time   `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time   `grove:"updated_at"    bson:"updated_at"`
}

type itemModel struct {
	ID        string `bson:"id"`
	ProductID string `bson:"product_id"`
	Quantity  int64  `bson:"quantity"`
	UnitPrice int64  `bson:"unit_price"`
	Total     int64  `bson:"total"`
	Currency  string `bson:"currency"`
}

func toDeliveryModel(r *delivery.Record) *deliveryModel {
	items := make([]itemModel, len(r.Items))
	for i, it := range r.Items {
		items[i] = itemModel{
			ID:        it.ID.String(),
			ProductID: it.ProductID.String(),
			Quantity:  int64(it.Quantity),
			UnitPrice: it.UnitPrice.Amount,
			Total:     it.Total.Amount,
			Currency:  it.UnitPrice.Currency,
		}
	}
	return &deliveryModel{
		ID:           r.ID.String(),
		CustomerID:   r.CustomerID.String(),
		DeliveryDate: types.Day(r.Date),
		Status:       string(r.Status),
		Items:        items,
		Notes:        r.Notes,
		DeliveredAt:  r.DeliveredAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
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
	items := make([]delivery.Item, len(m.Items))
	for i, it := range m.Items {
		itemID, err := id.Parse(it.ID)
		if err != nil {
			return nil, err
		}
		productID, err := id.ParseProductID(it.ProductID)
		if err != nil {
			return nil, err
		}
		items[i] = delivery.Item{
			ID:         itemID,
			DeliveryID: deliveryID,
			ProductID:  productID,
			Quantity:   types.Quantity(it.Quantity),
			UnitPrice:  types.New(it.UnitPrice, it.Currency),
			Total:      types.New(it.Total, it.Currency),
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

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:billing_invoices"`

	ID             string          `grove:"id,pk"           bson:"_id"`
	Number         string          `grove:"number"          bson:"number"`
	CustomerID     string          `grove:"customer_id"     bson:"customer_id"`
	PeriodStart    time.Time       `grove:"period_start"    bson:"period_start"`
	PeriodEnd      time.Time       `grove:"period_end"      bson:"period_end"`
	LineItems      []lineItemModel `grove:"line_items"      bson:"line_items"`
	TotalAmount    int64           `grove:"total_amount"    bson:"total_amount"`
	TaxAmount      int64           `grove:"tax_amount"      bson:"tax_amount"`
	DiscountAmount int64           `grove:"discount_amount" bson:"discount_amount"`
	FinalAmount    int64           `grove:"final_amount"    bson:"final_amount"`
	PaidAmount     int64           `grove:"paid_amount"     bson:"paid_amount"`
	Currency       string          `grove:"currency"        bson:"currency"`
	PaymentStatus  string          `grove:"payment_status"  bson:"payment_status"`
	DueDate        time.Time       `grove:"due_date"        bson:"due_date"`
	PaymentDate    *time.Time      `grove:"payment_date"    bson:"payment_date,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"      bson:"updated_at"`
}

type lineItemModel struct {
	ID          string `bson:"id"`
	ProductID   string `bson:"product_id"`
	Description string `bson:"description"`
	Quantity    int64  `bson:"quantity"`
	UnitPrice   int64  `bson:"unit_price"`
	Amount      int64  `bson:"amount"`
	Deliveries  int    `bson:"deliveries"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	lines := make([]lineItemModel, len(inv.LineItems))
	for i, li := range inv.LineItems {
		lines[i] = lineItemModel{
			ID:          li.ID.String(),
			ProductID:   li.ProductID.String(),
			Description: li.Description,
			Quantity:    int64(li.Quantity),
			UnitPrice:   li.UnitPrice.Amount,
			Amount:      li.Amount.Amount,
			Deliveries:  li.Deliveries,
		}
	}
	return &invoiceModel{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		CustomerID:     inv.CustomerID.String(),
		PeriodStart:    types.Day(inv.PeriodStart),
		PeriodEnd:      types.Day(inv.PeriodEnd),
		LineItems:      lines,
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
	}
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
	lines := make([]invoice.LineItem, len(m.LineItems))
	for i, li := range m.LineItems {
		lineID, err := id.Parse(li.ID)
		if err != nil {
			return nil, err
		}
		productID, err := id.ParseProductID(li.ProductID)
		if err != nil {
			return nil, err
		}
		lines[i] = invoice.LineItem{
			ID:          lineID,
			InvoiceID:   invID,
			ProductID:   productID,
			Description: li.Description,
			Quantity:    types.Quantity(li.Quantity),
			UnitPrice:   types.New(li.UnitPrice, m.Currency),
			Amount:      types.New(li.Amount, m.Currency),
			Deliveries:  li.Deliveries,
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
	grove.BaseModel `grove:"table:billing_ledger_entries"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	CustomerID     string    `grove:"customer_id"     bson:"customer_id"`
	Seq            int64     `grove:"seq"             bson:"seq"`
	Date           time.Time `grove:"date"            bson:"date"`
	Type           string    `grove:"type"            bson:"type"`
	Description    string    `grove:"description"     bson:"description"`
	Debit          int64     `grove:"debit"           bson:"debit"`
	Credit         int64     `grove:"credit"          bson:"credit"`
	Currency       string    `grove:"currency"        bson:"currency"`
	RunningBalance int64     `grove:"running_balance" bson:"running_balance"`
	ReferenceID    string    `grove:"reference_id"    bson:"reference_id"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toEntryModel(e *ledger.Entry) *entryModel {
	return &entryModel{
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
	grove.BaseModel `grove:"table:billing_payments"`

	ID            string    `grove:"id,pk"           bson:"_id"`
	CustomerID    string    `grove:"customer_id"     bson:"customer_id"`
	InvoiceID     string    `grove:"invoice_id"      bson:"invoice_id"`
	Amount        int64     `grove:"amount"          bson:"amount"`
	AppliedAmount int64     `grove:"applied_amount"  bson:"applied_amount"`
	ExcessAmount  int64     `grove:"excess_amount"   bson:"excess_amount"`
	Currency      string    `grove:"currency"        bson:"currency"`
	Mode          string    `grove:"mode"            bson:"mode"`
	Date          time.Time `grove:"date"            bson:"date"`
	Notes         string    `grove:"notes"           bson:"notes"`
	LedgerEntryID string    `grove:"ledger_entry_id" bson:"ledger_entry_id"`
	CreatedAt     time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"      bson:"updated_at"`
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
