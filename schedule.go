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
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
)

// MaxScheduleDays bounds ScheduleForRange.
const MaxScheduleDays = 366

// ScheduleResult summarizes one scheduled day.
type ScheduleResult struct {
	Date            time.Time       `json:"date"`
	Scheduled       int             `json:"scheduled"`
	Skipped         int             `json:"skipped"`
	SkippedVacation int             `json:"skipped_vacation"`
	SkippedExisting int             `json:"skipped_existing"`
	SkippedNoneDue  int             `json:"skipped_none_due"`
	Deliveries      []id.DeliveryID `json:"deliveries"`
	Errors          []ItemError     `json:"errors,omitempty"`
}

type scheduleOutcome int

const (
	outcomeScheduled scheduleOutcome = iota
	outcomeVacation
	outcomeExisting
	outcomeNoneDue
)

// ScheduleForDate creates one pending delivery per active auto-deliver
// customer who has at least one subscription due on date and is not on
// vacation. Running it twice for the same date creates nothing new.
// Per-customer failures are collected in the result; only a failure to
// list customers is returned as an error.
func (e *Engine) ScheduleForDate(ctx context.Context, date time.Time) (*ScheduleResult, error) {
	start := time.Now()
	date = types.Day(date)

	customers, err := e.store.ListCustomers(ctx, customer.ListOpts{ActiveOnly: true, AutoDeliverOnly: true})
	if err != nil {
		return nil, fmt.Errorf("billing: schedule %s: list customers: %w", date.Format(types.DateLayout), err)
	}
	products, err := e.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: schedule %s: list products: %w", date.Format(types.DateLayout), err)
	}

	res := &ScheduleResult{Date: date, Deliveries: []id.DeliveryID{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, c := range customers {
		g.Go(func() error {
			rec, outcome, err := e.scheduleCustomer(gctx, c, date, products)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				e.logger.Warn("schedule customer failed",
					"customer_id", c.ID.String(),
					"date", date.Format(types.DateLayout),
					"error", err,
				)
				res.Errors = append(res.Errors, ItemError{CustomerID: c.ID, Err: err})
			case outcome == outcomeScheduled:
				res.Scheduled++
				res.Deliveries = append(res.Deliveries, rec.ID)
			case outcome == outcomeVacation:
				res.Skipped++
				res.SkippedVacation++
			case outcome == outcomeExisting:
				res.Skipped++
				res.SkippedExisting++
			case outcome == outcomeNoneDue:
				res.Skipped++
				res.SkippedNoneDue++
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures in res

	sort.Slice(res.Deliveries, func(i, j int) bool {
		return res.Deliveries[i].String() < res.Deliveries[j].String()
	})
	sortItemErrors(res.Errors)

	elapsed := time.Since(start)
	e.logger.Info("deliveries scheduled",
		"date", date.Format(types.DateLayout),
		"customers", len(customers),
		"scheduled", res.Scheduled,
		"skipped", res.Skipped,
		"failed", len(res.Errors),
		"elapsed", elapsed,
	)
	e.plugins.EmitScheduleCompleted(ctx, plugin.BatchSummary{
		Kind:      plugin.BatchSchedule,
		Period:    types.NewPeriod(date, date),
		Processed: len(customers),
		Succeeded: res.Scheduled,
		Skipped:   res.Skipped,
		Failed:    len(res.Errors),
		Amount:    e.zero(),
		Elapsed:   elapsed,
	})

	return res, nil
}

// scheduleCustomer decides and, if due, writes one customer's delivery.
func (e *Engine) scheduleCustomer(ctx context.Context, c *customer.Customer, date time.Time, products map[id.ProductID]*product.Product) (*delivery.Record, scheduleOutcome, error) {
	away, err := e.store.IsOnVacation(ctx, c.ID, date)
	if err != nil {
		return nil, 0, fmt.Errorf("check vacation: %w", err)
	}
	if away {
		return nil, outcomeVacation, nil
	}

	if _, err := e.store.GetDeliveryByDate(ctx, c.ID, date); err == nil {
		return nil, outcomeExisting, nil
	} else if !errors.Is(err, ErrDeliveryNotFound) {
		return nil, 0, fmt.Errorf("check existing delivery: %w", err)
	}

	subs, err := e.store.ListSubscriptions(ctx, c.ID, subscription.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}

	rec := &delivery.Record{
		Entity:     types.NewEntity(),
		ID:         id.NewDeliveryID(),
		CustomerID: c.ID,
		Date:       date,
		Status:     delivery.StatusPending,
	}
	for _, s := range subs {
		if !s.DueOn(date) {
			continue
		}
		p, ok := products[s.ProductID]
		if !ok || !p.Active {
			continue
		}
		rec.Items = append(rec.Items, delivery.NewItem(rec.ID, s.ProductID, s.Quantity, s.UnitPrice(p.BasePrice)))
	}
	if len(rec.Items) == 0 {
		return nil, outcomeNoneDue, nil
	}

	if err := e.store.CreateDelivery(ctx, rec); err != nil {
		if IsConflict(err) {
			return nil, outcomeExisting, nil
		}
		return nil, 0, fmt.Errorf("create delivery: %w", err)
	}

	e.plugins.EmitDeliveryScheduled(ctx, rec)
	return rec, outcomeScheduled, nil
}

// ScheduleForRange schedules days consecutive dates from start. Each day
// is independent; a failed day does not stop later ones.
func (e *Engine) ScheduleForRange(ctx context.Context, start time.Time, days int) ([]*ScheduleResult, error) {
	if days <= 0 || days > MaxScheduleDays {
		return nil, invalid("days", fmt.Sprintf("must be between 1 and %d", MaxScheduleDays), ErrInvalidPeriod)
	}

	start = types.Day(start)
	results := make([]*ScheduleResult, 0, days)
	var errs MultiError
	for i := range days {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		res, err := e.ScheduleForDate(ctx, start.AddDate(0, 0, i))
		if err != nil {
			errs.Add(err)
			continue
		}
		results = append(results, res)
	}
	if errs.HasErrors() {
		return results, errs
	}
	return results, nil
}

// UpdateDeliveryStatus records the outcome of a delivery. Quantities in
// adjustments replace the scheduled ones for partial or corrected
// deliveries. Delivered and missed records are final.
func (e *Engine) UpdateDeliveryStatus(ctx context.Context, deliveryID id.DeliveryID, status delivery.Status, adjustments map[id.ProductID]types.Quantity) (*delivery.Record, error) {
	rec, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	if err := rec.Transition(status, adjustments, e.now()); err != nil {
		return nil, invalid("status", err.Error(), err)
	}
	if status.Billable() {
		if err := e.checkNotInvoiced(ctx, rec); err != nil {
			return nil, err
		}
	}
	if err := e.store.UpdateDelivery(ctx, rec, from); err != nil {
		return nil, fmt.Errorf("billing: update delivery %s: %w", deliveryID, err)
	}

	e.logger.Info("delivery status updated",
		"delivery_id", deliveryID.String(),
		"customer_id", rec.CustomerID.String(),
		"from", string(from),
		"to", string(status),
	)
	e.plugins.EmitDeliveryStatusChanged(ctx, rec, from)
	return rec, nil
}

// checkNotInvoiced rejects confirming a delivery whose date an existing
// invoice already covers; those items could never be billed.
func (e *Engine) checkNotInvoiced(ctx context.Context, rec *delivery.Record) error {
	invoices, err := e.store.ListInvoices(ctx, rec.CustomerID, invoice.ListOpts{})
	if err != nil {
		return fmt.Errorf("billing: check invoiced period: %w", err)
	}
	for _, inv := range invoices {
		if inv.Period().Contains(rec.Date) {
			return invalid("status",
				fmt.Sprintf("%s is covered by invoice %s; post an adjustment instead", rec.Date.Format(types.DateLayout), inv.Number),
				ErrDeliveryInvoiced)
		}
	}
	return nil
}

// ListDeliveries returns a customer's deliveries.
func (e *Engine) ListDeliveries(ctx context.Context, customerID id.CustomerID, opts delivery.ListOpts) ([]*delivery.Record, error) {
	return e.store.ListDeliveries(ctx, customerID, opts)
}

func sortItemErrors(errs []ItemError) {
	sort.Slice(errs, func(i, j int) bool {
		return errs[i].CustomerID.String() < errs[j].CustomerID.String()
	})
}
