package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/types"
)

// PaymentRequest records money received from a customer. Without an
// InvoiceID the whole amount becomes general credit.
type PaymentRequest struct {
	CustomerID id.CustomerID `json:"customer_id"`
	InvoiceID  id.InvoiceID  `json:"invoice_id"`
	Amount     types.Money   `json:"amount"`
	Mode       payment.Mode  `json:"mode" validate:"required,oneof=cash upi bank_transfer cheque card other"`
	Date       time.Time     `json:"date"`
	Notes      string        `json:"notes" validate:"max=500"`
}

// RecordPayment applies a payment. Against an invoice the applied part is
// capped at what remains unpaid and the rest is kept as excess credit.
// The full amount is always credited to the ledger. The invoice update,
// the payment row and the ledger credit commit together or not at all.
func (e *Engine) RecordPayment(ctx context.Context, req PaymentRequest) (*payment.Payment, error) {
	if req.CustomerID.IsNil() {
		return nil, invalid("customer_id", "is required", ErrInvalidInput)
	}
	if err := e.check(req); err != nil {
		return nil, err
	}
	if !req.Mode.Valid() {
		return nil, invalid("mode", fmt.Sprintf("unknown mode %q", req.Mode), ErrInvalidMode)
	}
	if err := e.checkMoney("amount", req.Amount, false); err != nil {
		return nil, err
	}

	if _, err := e.store.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}
	if !req.InvoiceID.IsNil() {
		inv, err := e.store.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.CustomerID != req.CustomerID {
			return nil, invalid("invoice_id", "belongs to another customer", ErrInvoiceCustomer)
		}
	}

	date := req.Date
	if date.IsZero() {
		date = e.today()
	}
	date = types.Day(date)

	p := &payment.Payment{
		Entity:     types.NewEntity(),
		ID:         id.NewPaymentID(),
		CustomerID: req.CustomerID,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		Mode:       req.Mode,
		Date:       date,
		Notes:      req.Notes,
	}
	credit := &ledger.Entry{
		ID:          id.NewLedgerEntryID(),
		CustomerID:  req.CustomerID,
		Date:        date,
		Type:        ledger.EntryPayment,
		Description: paymentDescription(p),
		Debit:       e.zero(),
		Credit:      req.Amount,
		ReferenceID: p.ID.String(),
		CreatedAt:   e.now().UTC(),
	}

	updated, err := e.store.ApplyPayment(ctx, p, credit)
	if err != nil {
		if errors.Is(err, ErrLedgerAppend) {
			return nil, e.consistencyFailure(ctx, "record payment", req.CustomerID, p.ID.String(), err)
		}
		return nil, fmt.Errorf("billing: record payment: %w", err)
	}

	e.logger.Info("payment recorded",
		"payment_id", p.ID.String(),
		"customer_id", p.CustomerID.String(),
		"amount", p.Amount.String(),
		"applied", p.AppliedAmount.String(),
		"excess", p.ExcessAmount.String(),
		"mode", string(p.Mode),
	)

	e.plugins.EmitLedgerEntryAppended(ctx, credit)
	e.plugins.EmitPaymentRecorded(ctx, p)
	if updated != nil && becamePaid(updated, p.AppliedAmount) {
		e.plugins.EmitInvoicePaid(ctx, updated)
	}
	return p, nil
}

// becamePaid reports whether applying applied moved inv to paid. A
// positive applied amount means the invoice had something remaining.
func becamePaid(inv *invoice.Invoice, applied types.Money) bool {
	return inv.IsPaid() && applied.IsPositive()
}

// GetPayment retrieves a payment by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return e.store.GetPayment(ctx, paymentID)
}

// ListPayments returns a customer's payments.
func (e *Engine) ListPayments(ctx context.Context, customerID id.CustomerID, opts payment.ListOpts) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, customerID, opts)
}

func paymentDescription(p *payment.Payment) string {
	if p.HasInvoice() {
		return fmt.Sprintf("Payment (%s) for invoice %s", p.Mode, p.InvoiceID)
	}
	return fmt.Sprintf("Payment (%s) on account", p.Mode)
}
