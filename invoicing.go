package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/types"
)

// InvoiceRunResult summarizes a monthly invoice run.
type InvoiceRunResult struct {
	Year              int            `json:"year"`
	Month             time.Month     `json:"month"`
	Period            types.Period   `json:"period"`
	Generated         int            `json:"generated"`
	Skipped           int            `json:"skipped"`
	SkippedExisting   int            `json:"skipped_existing"`
	SkippedNoActivity int            `json:"skipped_no_activity"`
	TotalAmount       types.Money    `json:"total_amount"`
	Invoices          []id.InvoiceID `json:"invoices"`
	Errors            []ItemError    `json:"errors,omitempty"`
}

// GenerateMonthlyInvoices invoices every active customer for the calendar
// month. A customer already invoiced for the month, or with nothing
// delivered in it, is skipped, so the run is safe to repeat.
func (e *Engine) GenerateMonthlyInvoices(ctx context.Context, year int, month time.Month) (*InvoiceRunResult, error) {
	if month < time.January || month > time.December {
		return nil, invalid("month", fmt.Sprintf("%d is not between 1 and 12", month), ErrInvalidPeriod)
	}
	if year < 2000 || year > 9999 {
		return nil, invalid("year", fmt.Sprintf("%d is out of range", year), ErrInvalidPeriod)
	}

	start := time.Now()
	period := types.MonthPeriod(year, month)

	customers, err := e.store.ListCustomers(ctx, customer.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("billing: invoice %s: list customers: %w", period, err)
	}
	products, err := e.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: invoice %s: list products: %w", period, err)
	}

	res := &InvoiceRunResult{
		Year:        year,
		Month:       month,
		Period:      period,
		TotalAmount: e.zero(),
		Invoices:    []id.InvoiceID{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, c := range customers {
		g.Go(func() error {
			inv, err := e.invoiceCustomer(gctx, c, period, products)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Generated++
				res.Invoices = append(res.Invoices, inv.ID)
				res.TotalAmount = res.TotalAmount.Add(inv.FinalAmount)
			case IsConflict(err):
				res.Skipped++
				res.SkippedExisting++
			case errors.Is(err, ErrNoActivity):
				res.Skipped++
				res.SkippedNoActivity++
			default:
				e.logger.Warn("invoice customer failed",
					"customer_id", c.ID.String(),
					"period", period.String(),
					"error", err,
				)
				res.Errors = append(res.Errors, ItemError{CustomerID: c.ID, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures in res

	sort.Slice(res.Invoices, func(i, j int) bool {
		return res.Invoices[i].String() < res.Invoices[j].String()
	})
	sortItemErrors(res.Errors)

	elapsed := time.Since(start)
	e.logger.Info("monthly invoices generated",
		"period", period.String(),
		"customers", len(customers),
		"generated", res.Generated,
		"skipped", res.Skipped,
		"failed", len(res.Errors),
		"total", res.TotalAmount.String(),
		"elapsed", elapsed,
	)
	e.plugins.EmitInvoicesCompleted(ctx, plugin.BatchSummary{
		Kind:      plugin.BatchInvoice,
		Period:    period,
		Processed: len(customers),
		Succeeded: res.Generated,
		Skipped:   res.Skipped,
		Failed:    len(res.Errors),
		Amount:    res.TotalAmount,
		Elapsed:   elapsed,
	})

	return res, nil
}

// GenerateInvoice invoices one customer for period. It returns
// ErrInvoiceExists when the period overlaps an existing invoice and ErrNoActivity
// when nothing was delivered.
func (e *Engine) GenerateInvoice(ctx context.Context, customerID id.CustomerID, period types.Period) (*invoice.Invoice, error) {
	if !period.Valid() {
		return nil, invalid("period", period.String(), ErrInvalidPeriod)
	}
	c, err := e.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	products, err := e.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: list products: %w", err)
	}
	return e.invoiceCustomer(ctx, c, types.NewPeriod(period.Start, period.End), products)
}

func (e *Engine) invoiceCustomer(ctx context.Context, c *customer.Customer, period types.Period, products map[id.ProductID]*product.Product) (*invoice.Invoice, error) {
	if _, err := e.store.GetInvoiceByPeriod(ctx, c.ID, period.Start, period.End); err == nil {
		return nil, ErrInvoiceExists
	} else if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, fmt.Errorf("check existing invoice: %w", err)
	}

	agg, err := e.AggregateDeliveries(ctx, c.ID, period)
	if err != nil {
		return nil, err
	}
	if agg.IsEmpty() {
		return nil, ErrNoActivity
	}

	breakdown, err := e.breakdown(ctx, c, agg.Total)
	if err != nil {
		return nil, fmt.Errorf("compute tax: %w", err)
	}

	inv := e.buildInvoice(c, period, agg, breakdown, products)
	if err := inv.CheckTotals(); err != nil {
		return nil, err
	}

	var debit *ledger.Entry
	if inv.FinalAmount.IsPositive() {
		debit = &ledger.Entry{
			ID:          id.NewLedgerEntryID(),
			CustomerID:  c.ID,
			Date:        period.End,
			Type:        ledger.EntryInvoice,
			Description: fmt.Sprintf("Invoice %s for %s", inv.Number, period.Start.Format("January 2006")),
			Debit:       inv.FinalAmount,
			Credit:      e.zero(),
			ReferenceID: inv.ID.String(),
			CreatedAt:   e.now().UTC(),
		}
	}

	if err := e.store.PostInvoice(ctx, inv, debit); err != nil {
		if errors.Is(err, ErrLedgerAppend) {
			return nil, e.consistencyFailure(ctx, "post invoice", c.ID, inv.ID.String(), err)
		}
		return nil, err
	}

	e.plugins.EmitInvoiceGenerated(ctx, inv)
	if debit != nil {
		e.plugins.EmitLedgerEntryAppended(ctx, debit)
	}
	return inv, nil
}

func (e *Engine) buildInvoice(c *customer.Customer, period types.Period, agg *Aggregation, b pricing.Breakdown, products map[id.ProductID]*product.Product) *invoice.Invoice {
	invID := id.NewInvoiceID()
	inv := &invoice.Invoice{
		Entity:         types.NewEntity(),
		ID:             invID,
		Number:         invoice.Number(period.Start, c.ID),
		CustomerID:     c.ID,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		LineItems:      make([]invoice.LineItem, 0, len(agg.Lines)),
		TotalAmount:    b.Total,
		TaxAmount:      b.Tax,
		DiscountAmount: b.Discount,
		FinalAmount:    b.Final,
		PaidAmount:     e.zero(),
		DueDate:        period.End.AddDate(0, 0, e.dueDays),
	}
	inv.PaymentStatus = invoice.DeriveStatus(inv.PaidAmount, inv.FinalAmount)

	for _, line := range agg.Lines {
		desc := line.ProductID.String()
		if p, ok := products[line.ProductID]; ok {
			desc = p.Name
		}
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          id.NewLineItemID(),
			InvoiceID:   invID,
			ProductID:   line.ProductID,
			Description: desc,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
			Deliveries:  line.Deliveries,
		})
	}
	return inv
}

// breakdown applies the customer's rule, else the engine default rule,
// else the first registered tax calculator. With none of these the
// total is billed as is.
func (e *Engine) breakdown(ctx context.Context, c *customer.Customer, total types.Money) (pricing.Breakdown, error) {
	switch {
	case c.Billing != nil:
		return c.Billing.Apply(total), nil
	case e.rule != nil:
		return e.rule.Apply(total), nil
	}
	if calcs := e.plugins.TaxCalculators(); len(calcs) > 0 {
		b, err := calcs[0].CalculateTax(ctx, c, total)
		if err != nil {
			return pricing.Breakdown{}, fmt.Errorf("%s: %w", calcs[0].Name(), err)
		}
		if !b.Total.Equal(total) || !b.Final.Equal(b.Total.Add(b.Tax).Subtract(b.Discount)) {
			return pricing.Breakdown{}, fmt.Errorf("%s: %w", calcs[0].Name(), ErrInvoiceTotalsInvalid)
		}
		return b, nil
	}
	return pricing.Rule{}.Apply(total), nil
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ListInvoices returns a customer's invoices.
func (e *Engine) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, customerID, opts)
}

// catalog indexes every product, active or not, so old deliveries still
// resolve their names.
func (e *Engine) catalog(ctx context.Context) (map[id.ProductID]*product.Product, error) {
	list, err := e.store.ListProducts(ctx, product.ListOpts{})
	if err != nil {
		return nil, err
	}
	idx := make(map[id.ProductID]*product.Product, len(list))
	for _, p := range list {
		idx[p.ID] = p
	}
	return idx, nil
}

// consistencyFailure reports a composite write whose ledger step failed.
// The stores roll the dependent write back before returning.
func (e *Engine) consistencyFailure(ctx context.Context, op string, customerID id.CustomerID, recordID string, err error) error {
	ce := &ConsistencyError{
		Op:         op,
		CustomerID: customerID,
		RecordID:   recordID,
		RolledBack: true,
		Err:        err,
	}
	e.logger.Error("ledger append failed",
		"op", op,
		"customer_id", customerID.String(),
		"record_id", recordID,
		"error", err,
	)
	e.plugins.EmitConsistencyFailure(ctx, op, customerID, ce)
	return ce
}
