package invoice

import (
	"errors"
	"fmt"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

// ErrTotalsMismatch is returned by CheckTotals.
var ErrTotalsMismatch = errors.New("billing: invoice totals do not add up")

// PaymentStatus is derived from PaidAmount and FinalAmount. Overdue is
// only ever reported by StatusAt and never stored.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

type Invoice struct {
	types.Entity
	ID             id.InvoiceID  `json:"id"`
	Number         string        `json:"invoice_number"`
	CustomerID     id.CustomerID `json:"customer_id"`
	PeriodStart    time.Time     `json:"period_start"`
	PeriodEnd      time.Time     `json:"period_end"`
	LineItems      []LineItem    `json:"line_items"`
	TotalAmount    types.Money   `json:"total_amount"`
	TaxAmount      types.Money   `json:"tax_amount"`
	DiscountAmount types.Money   `json:"discount_amount"`
	FinalAmount    types.Money   `json:"final_amount"`
	PaidAmount     types.Money   `json:"paid_amount"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	DueDate        time.Time     `json:"due_date"`
	PaymentDate    *time.Time    `json:"payment_date,omitempty"`
}

type LineItem struct {
	ID          id.ID          `json:"id"`
	InvoiceID   id.InvoiceID   `json:"invoice_id"`
	ProductID   id.ProductID   `json:"product_id"`
	Description string         `json:"description"`
	Quantity    types.Quantity `json:"quantity"`
	UnitPrice   types.Money    `json:"unit_price"`
	Amount      types.Money    `json:"amount"`
	Deliveries  int            `json:"deliveries"`
}

// Number formats an invoice number such as INV-202406-7K3QX2.
func Number(period time.Time, customerID id.CustomerID) string {
	return fmt.Sprintf("INV-%s-%s", period.Format("200601"), customerID.Short(6))
}

// DeriveStatus returns paid when paid >= final, pending when nothing is
// paid and partial otherwise.
func DeriveStatus(paid, final types.Money) PaymentStatus {
	switch {
	case !paid.LessThan(final):
		return StatusPaid
	case paid.IsZero():
		return StatusPending
	default:
		return StatusPartial
	}
}

// Period returns the billed days.
func (i *Invoice) Period() types.Period {
	return types.NewPeriod(i.PeriodStart, i.PeriodEnd)
}

// Remaining returns FinalAmount - PaidAmount, never below zero.
func (i *Invoice) Remaining() types.Money {
	r := i.FinalAmount.Subtract(i.PaidAmount)
	if r.IsNegative() {
		return types.Zero(r.Currency)
	}
	return r
}

// IsPaid reports whether the invoice is settled.
func (i *Invoice) IsPaid() bool {
	return DeriveStatus(i.PaidAmount, i.FinalAmount) == StatusPaid
}

// StatusAt returns the payment status as seen at now, reporting overdue
// for an unpaid invoice past its due date.
func (i *Invoice) StatusAt(now time.Time) PaymentStatus {
	s := DeriveStatus(i.PaidAmount, i.FinalAmount)
	if s != StatusPaid && !i.DueDate.IsZero() && types.Day(now).After(i.DueDate) {
		return StatusOverdue
	}
	return s
}

// ApplyPayment adds up to Remaining of amount to PaidAmount and returns
// the applied and excess parts. PaymentDate is stamped when the invoice
// becomes fully paid.
func (i *Invoice) ApplyPayment(amount types.Money, date time.Time) (applied, excess types.Money) {
	applied = amount.Min(i.Remaining())
	if applied.IsNegative() {
		applied = types.Zero(amount.Currency)
	}
	excess = amount.Subtract(applied)

	i.PaidAmount = i.PaidAmount.Add(applied)
	i.PaymentStatus = DeriveStatus(i.PaidAmount, i.FinalAmount)
	if i.PaymentStatus == StatusPaid && i.PaymentDate == nil {
		d := types.Day(date)
		i.PaymentDate = &d
	}
	i.Touch()
	return applied, excess
}

// CheckTotals verifies FinalAmount == Total + Tax - Discount and that the
// line items add up to TotalAmount.
func (i *Invoice) CheckTotals() error {
	sum := types.Zero(i.TotalAmount.Currency)
	for _, li := range i.LineItems {
		sum = sum.Add(li.Amount)
	}
	if !sum.Equal(i.TotalAmount) {
		return fmt.Errorf("%w: line items %s, total %s", ErrTotalsMismatch, sum, i.TotalAmount)
	}
	want := i.TotalAmount.Add(i.TaxAmount).Subtract(i.DiscountAmount)
	if !want.Equal(i.FinalAmount) {
		return fmt.Errorf("%w: final %s, expected %s", ErrTotalsMismatch, i.FinalAmount, want)
	}
	return nil
}
