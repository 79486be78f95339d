package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/types"
)

// EntryRequest is a manual ledger posting: an opening balance, an
// adjustment or a refund. Exactly one of Debit and Credit is positive.
type EntryRequest struct {
	CustomerID  id.CustomerID    `json:"customer_id"`
	Type        ledger.EntryType `json:"type" validate:"required,oneof=opening delivery adjustment refund"`
	Date        time.Time        `json:"date"`
	Description string           `json:"description" validate:"max=500"`
	Debit       types.Money      `json:"debit_amount"`
	Credit      types.Money      `json:"credit_amount"`
	ReferenceID string           `json:"reference_id" validate:"max=100"`
}

// AppendEntry posts one entry to a customer's ledger. Concurrent appends
// for the same customer are serialized by the store, so every running
// balance follows from its predecessor.
func (e *Engine) AppendEntry(ctx context.Context, req EntryRequest) (*ledger.Entry, error) {
	if req.CustomerID.IsNil() {
		return nil, invalid("customer_id", "is required", ErrInvalidInput)
	}
	if err := e.check(req); err != nil {
		return nil, err
	}
	if req.Debit.Currency == "" {
		req.Debit = e.zero()
	}
	if req.Credit.Currency == "" {
		req.Credit = e.zero()
	}
	if err := e.checkMoney("debit_amount", req.Debit, true); err != nil {
		return nil, err
	}
	if err := e.checkMoney("credit_amount", req.Credit, true); err != nil {
		return nil, err
	}
	if req.Debit.IsPositive() == req.Credit.IsPositive() {
		return nil, invalid("amount", "exactly one of debit and credit must be positive", ErrInvalidAmount)
	}

	if _, err := e.store.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = e.today()
	}
	entry := &ledger.Entry{
		ID:          id.NewLedgerEntryID(),
		CustomerID:  req.CustomerID,
		Date:        types.Day(date),
		Type:        req.Type,
		Description: req.Description,
		Debit:       req.Debit,
		Credit:      req.Credit,
		ReferenceID: req.ReferenceID,
		CreatedAt:   e.now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, invalid("entry", err.Error(), err)
	}

	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("billing: append ledger entry: %w", err)
	}

	e.plugins.EmitLedgerEntryAppended(ctx, entry)
	return entry, nil
}

// Balance returns the customer's latest running balance. A customer with
// no entries has a zero balance.
func (e *Engine) Balance(ctx context.Context, customerID id.CustomerID) (types.Money, error) {
	latest, err := e.store.LatestEntry(ctx, customerID)
	switch {
	case err == nil:
		return latest.RunningBalance, nil
	case errors.Is(err, ErrLedgerEmpty):
		if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
			return types.Money{}, err
		}
		return e.zero(), nil
	default:
		return types.Money{}, err
	}
}

// Statement returns the customer's ledger entries in insertion order.
func (e *Engine) Statement(ctx context.Context, customerID id.CustomerID, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return e.store.ListEntries(ctx, customerID, opts)
}

// VerifyLedger replays the customer's ledger from zero, checking every
// stored running balance and the customer's cached balance.
func (e *Engine) VerifyLedger(ctx context.Context, customerID id.CustomerID) (*ledger.Report, error) {
	c, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.ListEntries(ctx, customerID, ledger.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("billing: verify ledger: %w", err)
	}

	cached := c.CreditBalance
	if cached.Currency == "" {
		cached = types.New(cached.Amount, e.currency)
	}
	report := ledger.Replay(customerID, e.currency, entries, cached)
	if !report.Consistent() {
		e.logger.Error("ledger verification failed",
			"customer_id", customerID.String(),
			"mismatches", len(report.Mismatches),
			"seq_gaps", len(report.SeqGaps),
			"cache_drift", report.CacheDrift,
		)
	}
	return report, nil
}
