package billing_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/plugin"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/store/memory"
	"github.com/doodhwala/billing/subscription"
	"github.com/doodhwala/billing/types"
	"github.com/doodhwala/billing/vacation"
)

var june1 = types.Date(2024, time.June, 1)

type fixture struct {
	engine *billing.Engine
	store  *memory.Store
	events *events
}

// events counts plugin notifications.
type events struct {
	scheduled atomic.Int32
	generated atomic.Int32
	paid      atomic.Int32
	payments  atomic.Int32
	appended  atomic.Int32
	failures  atomic.Int32
}

func (*events) Name() string { return "test-events" }

func (e *events) OnDeliveryScheduled(context.Context, *delivery.Record) error {
	e.scheduled.Add(1)
	return nil
}

func (e *events) OnInvoiceGenerated(context.Context, *invoice.Invoice) error {
	e.generated.Add(1)
	return nil
}

func (e *events) OnInvoicePaid(context.Context, *invoice.Invoice) error {
	e.paid.Add(1)
	return nil
}

func (e *events) OnPaymentRecorded(context.Context, *payment.Payment) error {
	e.payments.Add(1)
	return nil
}

func (e *events) OnLedgerEntryAppended(context.Context, *ledger.Entry) error {
	e.appended.Add(1)
	return nil
}

func (e *events) OnConsistencyFailure(context.Context, string, id.CustomerID, error) error {
	e.failures.Add(1)
	return nil
}

func newFixture(t *testing.T, opts ...billing.Option) *fixture {
	t.Helper()
	s := memory.New()
	ev := &events{}
	opts = append([]billing.Option{
		billing.WithPlugin(ev),
		billing.WithClock(func() time.Time { return types.Date(2024, time.July, 1) }),
	}, opts...)
	e := billing.New(s, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return &fixture{engine: e, store: s, events: ev}
}

func (f *fixture) customer(t *testing.T, name string) *customer.Customer {
	t.Helper()
	c := &customer.Customer{Name: name, Active: true, AutoDeliver: true}
	if err := f.engine.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return c
}

func (f *fixture) product(t *testing.T, name string, price types.Money) *product.Product {
	t.Helper()
	p := &product.Product{Name: name, Unit: "litre", BasePrice: price, Active: true}
	if err := f.engine.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func (f *fixture) subscribe(t *testing.T, c *customer.Customer, p *product.Product, qty types.Quantity, pattern subscription.DeliveryPattern) {
	t.Helper()
	s := &subscription.Subscription{
		CustomerID: c.ID,
		ProductID:  p.ID,
		Quantity:   qty,
		Pattern:    pattern,
		StartDate:  june1,
		Active:     true,
	}
	if err := f.engine.CreateSubscription(context.Background(), s); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
}

// deliver schedules date and marks every new record delivered.
func (f *fixture) deliver(t *testing.T, date time.Time) *billing.ScheduleResult {
	t.Helper()
	ctx := context.Background()
	res, err := f.engine.ScheduleForDate(ctx, date)
	if err != nil {
		t.Fatalf("ScheduleForDate: %v", err)
	}
	for _, did := range res.Deliveries {
		if _, err := f.engine.UpdateDeliveryStatus(ctx, did, delivery.StatusDelivered, nil); err != nil {
			t.Fatalf("UpdateDeliveryStatus: %v", err)
		}
	}
	return res
}

func (f *fixture) balance(t *testing.T, customerID id.CustomerID) types.Money {
	t.Helper()
	b, err := f.engine.Balance(context.Background(), customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return b
}

func (f *fixture) mustVerify(t *testing.T, customerID id.CustomerID) {
	t.Helper()
	report, err := f.engine.VerifyLedger(context.Background(), customerID)
	if err != nil {
		t.Fatalf("VerifyLedger: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("ledger inconsistent: %+v", report)
	}
}

func TestMonthlyCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	milk := f.product(t, "Milk", types.Rupees(60))
	f.subscribe(t, c, milk, types.Units(2), subscription.Daily())

	res := f.deliver(t, june1)
	if res.Scheduled != 1 {
		t.Fatalf("scheduled: got %d, want 1", res.Scheduled)
	}
	rec, err := f.store.GetDelivery(ctx, res.Deliveries[0])
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if len(rec.Items) != 1 {
		t.Fatalf("items: got %d, want 1", len(rec.Items))
	}
	if got := rec.Items[0].Total; !got.Equal(types.Rupees(120)) {
		t.Errorf("item total: got %v, want ₹120.00", got)
	}

	before := f.balance(t, c.ID)

	run, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices: %v", err)
	}
	if run.Generated != 1 {
		t.Fatalf("generated: got %d, want 1", run.Generated)
	}
	inv, err := f.engine.GetInvoice(ctx, run.Invoices[0])
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if !inv.FinalAmount.Equal(types.Rupees(120)) {
		t.Errorf("final: got %v, want ₹120.00", inv.FinalAmount)
	}
	if inv.PaymentStatus != invoice.StatusPending {
		t.Errorf("status: got %s, want pending", inv.PaymentStatus)
	}
	if want := types.Date(2024, time.July, 10); !inv.DueDate.Equal(want) {
		t.Errorf("due date: got %v, want %v", inv.DueDate, want)
	}
	if got := f.balance(t, c.ID); !got.Equal(before.Add(types.Rupees(120))) {
		t.Errorf("balance after invoice: got %v, want %v", got, before.Add(types.Rupees(120)))
	}

	pay := func(amount int64) *payment.Payment {
		t.Helper()
		p, err := f.engine.RecordPayment(ctx, billing.PaymentRequest{
			CustomerID: c.ID,
			InvoiceID:  inv.ID,
			Amount:     types.Rupees(amount),
			Mode:       payment.ModeCash,
			Date:       types.Date(2024, time.July, 1),
		})
		if err != nil {
			t.Fatalf("RecordPayment(%d): %v", amount, err)
		}
		return p
	}

	pay(50)
	inv, _ = f.engine.GetInvoice(ctx, inv.ID)
	if !inv.PaidAmount.Equal(types.Rupees(50)) || inv.PaymentStatus != invoice.StatusPartial {
		t.Errorf("after ₹50: got paid %v status %s, want ₹50.00 partial", inv.PaidAmount, inv.PaymentStatus)
	}
	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(70)) {
		t.Errorf("balance after ₹50: got %v, want ₹70.00", got)
	}

	pay(70)
	inv, _ = f.engine.GetInvoice(ctx, inv.ID)
	if inv.PaymentStatus != invoice.StatusPaid {
		t.Errorf("status: got %s, want paid", inv.PaymentStatus)
	}
	if inv.PaymentDate == nil {
		t.Error("expected payment date on paid invoice")
	}
	if got := f.balance(t, c.ID); !got.Equal(before) {
		t.Errorf("balance after full payment: got %v, want %v", got, before)
	}

	if got := f.events.paid.Load(); got != 1 {
		t.Errorf("invoice paid events: got %d, want 1", got)
	}
	if got := f.events.payments.Load(); got != 2 {
		t.Errorf("payment events: got %d, want 2", got)
	}
	f.mustVerify(t, c.ID)
}

func TestScheduleIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		c := f.customer(t, name)
		f.subscribe(t, c, f.product(t, "Milk "+name, types.Rupees(60)), types.Units(1), subscription.Daily())
	}

	first, err := f.engine.ScheduleForDate(ctx, june1)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.engine.ScheduleForDate(ctx, june1)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Scheduled != 3 {
		t.Errorf("first scheduled: got %d, want 3", first.Scheduled)
	}
	if second.Scheduled != 0 || second.SkippedExisting != 3 {
		t.Errorf("second run: got scheduled %d existing %d, want 0 and 3", second.Scheduled, second.SkippedExisting)
	}
	if got := f.events.scheduled.Load(); got != 3 {
		t.Errorf("scheduled events: got %d, want 3", got)
	}
}

func TestScheduleConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, billing.WithConcurrency(4))
	var customers []*customer.Customer
	milk := f.product(t, "Milk", types.Rupees(60))
	for range 10 {
		c := f.customer(t, "C")
		f.subscribe(t, c, milk, types.Units(1), subscription.Daily())
		customers = append(customers, c)
	}

	var wg sync.WaitGroup
	var scheduled atomic.Int32
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.ScheduleForDate(ctx, june1)
			if err != nil {
				t.Errorf("ScheduleForDate: %v", err)
				return
			}
			scheduled.Add(int32(res.Scheduled))
		}()
	}
	wg.Wait()

	if got := scheduled.Load(); got != 10 {
		t.Errorf("scheduled across runs: got %d, want 10", got)
	}
	for _, c := range customers {
		recs, err := f.engine.ListDeliveries(ctx, c.ID, delivery.ListOpts{})
		if err != nil {
			t.Fatalf("ListDeliveries: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("customer %s: got %d deliveries, want 1", c.ID, len(recs))
		}
	}
}

func TestScheduleSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	milk := f.product(t, "Milk", types.Rupees(60))

	away := f.customer(t, "Away")
	f.subscribe(t, away, milk, types.Units(1), subscription.Daily())
	if err := f.engine.CreateVacation(ctx, &vacation.Vacation{
		CustomerID: away.ID,
		StartDate:  types.Date(2024, time.May, 30),
		EndDate:    june1,
		Active:     true,
	}); err != nil {
		t.Fatalf("CreateVacation: %v", err)
	}

	weekly := f.customer(t, "Weekly")
	f.subscribe(t, weekly, milk, types.Units(1), subscription.Weekly(time.Monday)) // June 1 2024 is a Saturday

	manual := &customer.Customer{Name: "Manual", Active: true}
	if err := f.engine.CreateCustomer(ctx, manual); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	f.subscribe(t, manual, milk, types.Units(1), subscription.Daily())

	res, err := f.engine.ScheduleForDate(ctx, june1)
	if err != nil {
		t.Fatalf("ScheduleForDate: %v", err)
	}
	if res.Scheduled != 0 {
		t.Errorf("scheduled: got %d, want 0", res.Scheduled)
	}
	if res.SkippedVacation != 1 {
		t.Errorf("vacation skips: got %d, want 1", res.SkippedVacation)
	}
	if res.SkippedNoneDue != 1 {
		t.Errorf("none-due skips: got %d, want 1", res.SkippedNoneDue)
	}
	if _, err := f.store.GetDeliveryByDate(ctx, away.ID, june1); !errors.Is(err, billing.ErrDeliveryNotFound) {
		t.Errorf("vacationing customer: got %v, want ErrDeliveryNotFound", err)
	}
	if _, err := f.store.GetDeliveryByDate(ctx, manual.ID, june1); !errors.Is(err, billing.ErrDeliveryNotFound) {
		t.Errorf("manual customer: got %v, want ErrDeliveryNotFound", err)
	}
}

func TestScheduleForRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Alt")
	f.subscribe(t, c, f.product(t, "Curd", types.Rupees(40)), types.Units(1), subscription.Alternate())

	results, err := f.engine.ScheduleForRange(ctx, june1, 7)
	if err != nil {
		t.Fatalf("ScheduleForRange: %v", err)
	}
	if len(results) != 7 {
		t.Fatalf("results: got %d, want 7", len(results))
	}
	total := 0
	for _, r := range results {
		total += r.Scheduled
	}
	if total != 4 {
		t.Errorf("alternate deliveries in 7 days: got %d, want 4", total)
	}

	for _, days := range []int{0, -1, billing.MaxScheduleDays + 1} {
		if _, err := f.engine.ScheduleForRange(ctx, june1, days); !billing.IsValidation(err) {
			t.Errorf("days=%d: got %v, want validation error", days, err)
		}
	}
}

func TestInvoiceIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	for d := range 3 {
		f.deliver(t, june1.AddDate(0, 0, d))
	}

	first, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Generated != 1 || !first.TotalAmount.Equal(types.Rupees(360)) {
		t.Errorf("first run: got %d invoices totalling %v, want 1 totalling ₹360.00", first.Generated, first.TotalAmount)
	}
	if second.Generated != 0 || second.SkippedExisting != 1 {
		t.Errorf("second run: got generated %d existing %d, want 0 and 1", second.Generated, second.SkippedExisting)
	}

	entries, err := f.engine.Statement(ctx, c.ID, ledger.ListOpts{})
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ledger entries: got %d, want 1", len(entries))
	}
	if _, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June)); !errors.Is(err, billing.ErrInvoiceExists) {
		t.Errorf("GenerateInvoice: got %v, want ErrInvoiceExists", err)
	}
}

func TestInvoiceOnlyDeliveredItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	milk := f.product(t, "Milk", types.Rupees(60))
	f.subscribe(t, c, milk, types.Units(2), subscription.Daily())

	f.deliver(t, june1)

	// Partial on June 2 with 1 unit, missed on June 3, pending on June 4.
	outcomes := []struct {
		date   time.Time
		status delivery.Status
		adjust map[id.ProductID]types.Quantity
	}{
		{june1.AddDate(0, 0, 1), delivery.StatusPartial, map[id.ProductID]types.Quantity{milk.ID: types.Units(1)}},
		{june1.AddDate(0, 0, 2), delivery.StatusMissed, nil},
		{june1.AddDate(0, 0, 3), "", nil},
	}
	for _, o := range outcomes {
		res, err := f.engine.ScheduleForDate(ctx, o.date)
		if err != nil {
			t.Fatalf("ScheduleForDate: %v", err)
		}
		if o.status == "" {
			continue
		}
		if _, err := f.engine.UpdateDeliveryStatus(ctx, res.Deliveries[0], o.status, o.adjust); err != nil {
			t.Fatalf("UpdateDeliveryStatus(%s): %v", o.status, err)
		}
	}

	agg, err := f.engine.AggregateDeliveries(ctx, c.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("AggregateDeliveries: %v", err)
	}
	if !agg.Total.Equal(types.Rupees(120)) {
		t.Errorf("total: got %v, want ₹120.00", agg.Total)
	}
	if agg.Deliveries != 1 {
		t.Errorf("deliveries: got %d, want 1", agg.Deliveries)
	}
}

func TestInvoiceNoActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Idle")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(1), subscription.Daily())
	if _, err := f.engine.ScheduleForDate(ctx, june1); err != nil {
		t.Fatalf("ScheduleForDate: %v", err)
	}

	run, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices: %v", err)
	}
	if run.Generated != 0 || run.SkippedNoActivity != 1 {
		t.Errorf("got generated %d no-activity %d, want 0 and 1", run.Generated, run.SkippedNoActivity)
	}
	if _, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June)); !errors.Is(err, billing.ErrNoActivity) {
		t.Errorf("GenerateInvoice: got %v, want ErrNoActivity", err)
	}
}

func TestInvoiceTaxRules(t *testing.T) {
	tests := []struct {
		name     string
		engine   *pricing.Rule
		customer *pricing.Rule
		want     types.Money
	}{
		{"no rule", nil, nil, types.Rupees(120)},
		{"engine tax", &pricing.Rule{TaxBasisPoints: 500}, nil, types.INR(12600)},
		{"customer discount wins", &pricing.Rule{TaxBasisPoints: 500}, &pricing.Rule{DiscountBasisPoints: 1000}, types.INR(10800)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []billing.Option
			if tt.engine != nil {
				opts = append(opts, billing.WithBillingRule(*tt.engine))
			}
			f := newFixture(t, opts...)
			c := &customer.Customer{Name: "Asha", Active: true, AutoDeliver: true, Billing: tt.customer}
			if err := f.engine.CreateCustomer(context.Background(), c); err != nil {
				t.Fatalf("CreateCustomer: %v", err)
			}
			f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
			f.deliver(t, june1)

			inv, err := f.engine.GenerateInvoice(context.Background(), c.ID, types.MonthPeriod(2024, time.June))
			if err != nil {
				t.Fatalf("GenerateInvoice: %v", err)
			}
			if !inv.FinalAmount.Equal(tt.want) {
				t.Errorf("final: got %v, want %v", inv.FinalAmount, tt.want)
			}
			if err := inv.CheckTotals(); err != nil {
				t.Errorf("CheckTotals: %v", err)
			}
		})
	}
}

type flatTax struct{}

func (flatTax) Name() string { return "flat-tax" }

func (flatTax) CalculateTax(_ context.Context, _ *customer.Customer, total types.Money) (pricing.Breakdown, error) {
	return pricing.Rule{TaxBasisPoints: 1800}.Apply(total), nil
}

func TestInvoiceTaxCalculatorPlugin(t *testing.T) {
	f := newFixture(t, billing.WithPlugin(flatTax{}))
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)

	inv, err := f.engine.GenerateInvoice(context.Background(), c.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}
	if !inv.TaxAmount.Equal(types.INR(2160)) {
		t.Errorf("tax: got %v, want ₹21.60", inv.TaxAmount)
	}
}

func TestInvoiceLedgerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)

	f.store.InjectLedgerFault(func(*ledger.Entry) error { return errors.New("disk full") })
	run, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices: %v", err)
	}
	if run.Generated != 0 || len(run.Errors) != 1 {
		t.Fatalf("got generated %d errors %d, want 0 and 1", run.Generated, len(run.Errors))
	}
	if !billing.IsConsistency(run.Errors[0]) {
		t.Errorf("error: got %v, want consistency error", run.Errors[0])
	}
	if _, err := f.store.GetInvoiceByPeriod(ctx, c.ID, june1, types.Date(2024, time.June, 30)); !errors.Is(err, billing.ErrInvoiceNotFound) {
		t.Errorf("invoice after failed debit: got %v, want ErrInvoiceNotFound", err)
	}
	if got := f.events.failures.Load(); got != 1 {
		t.Errorf("consistency events: got %d, want 1", got)
	}

	f.store.InjectLedgerFault(nil)
	run, err = f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if run.Generated != 1 {
		t.Errorf("retry generated: got %d, want 1", run.Generated)
	}
	f.mustVerify(t, c.ID)
}

func TestInvalidMonth(t *testing.T) {
	f := newFixture(t)
	for _, m := range []time.Month{0, 13} {
		if _, err := f.engine.GenerateMonthlyInvoices(context.Background(), 2024, m); !billing.IsValidation(err) {
			t.Errorf("month %d: got %v, want validation error", m, err)
		}
	}
}

func TestPaymentExcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)
	inv, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	p, err := f.engine.RecordPayment(ctx, billing.PaymentRequest{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.Rupees(150),
		Mode:       payment.ModeUPI,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if !p.AppliedAmount.Equal(types.Rupees(120)) || !p.ExcessAmount.Equal(types.Rupees(30)) {
		t.Errorf("got applied %v excess %v, want ₹120.00 and ₹30.00", p.AppliedAmount, p.ExcessAmount)
	}

	inv, _ = f.engine.GetInvoice(ctx, inv.ID)
	if !inv.PaidAmount.Equal(inv.FinalAmount) {
		t.Errorf("paid: got %v, want %v", inv.PaidAmount, inv.FinalAmount)
	}
	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(-30)) {
		t.Errorf("balance: got %v, want -₹30.00", got)
	}

	stored, err := f.engine.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if !stored.AdvanceBalance.Equal(types.Rupees(30)) {
		t.Errorf("advance: got %v, want ₹30.00", stored.AdvanceBalance)
	}
	f.mustVerify(t, c.ID)
}

func TestPaymentGeneralCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")

	p, err := f.engine.RecordPayment(ctx, billing.PaymentRequest{
		CustomerID: c.ID,
		Amount:     types.Rupees(500),
		Mode:       payment.ModeBankTransfer,
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if !p.AppliedAmount.IsZero() || !p.ExcessAmount.Equal(types.Rupees(500)) {
		t.Errorf("got applied %v excess %v, want zero and ₹500.00", p.AppliedAmount, p.ExcessAmount)
	}
	if !p.Date.Equal(types.Date(2024, time.July, 1)) {
		t.Errorf("date: got %v, want engine today", p.Date)
	}
	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(-500)) {
		t.Errorf("balance: got %v, want -₹500.00", got)
	}
	if got := f.events.paid.Load(); got != 0 {
		t.Errorf("invoice paid events: got %d, want 0", got)
	}
}

func TestPaymentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	other := f.customer(t, "Ravi")
	f.subscribe(t, other, f.product(t, "Milk", types.Rupees(60)), types.Units(1), subscription.Daily())
	f.deliver(t, june1)
	otherInv, err := f.engine.GenerateInvoice(ctx, other.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	tests := []struct {
		name    string
		req     billing.PaymentRequest
		wantErr error
	}{
		{"zero amount", billing.PaymentRequest{CustomerID: c.ID, Amount: types.INR(0), Mode: payment.ModeCash}, billing.ErrInvalidAmount},
		{"negative amount", billing.PaymentRequest{CustomerID: c.ID, Amount: types.INR(-100), Mode: payment.ModeCash}, billing.ErrInvalidAmount},
		{"unknown mode", billing.PaymentRequest{CustomerID: c.ID, Amount: types.Rupees(10), Mode: "barter"}, billing.ErrInvalidInput},
		{"foreign currency", billing.PaymentRequest{CustomerID: c.ID, Amount: types.New(100, "usd"), Mode: payment.ModeCard}, billing.ErrCurrencyMismatch},
		{"other customer's invoice", billing.PaymentRequest{CustomerID: c.ID, InvoiceID: otherInv.ID, Amount: types.Rupees(10), Mode: payment.ModeCash}, billing.ErrInvoiceCustomer},
		{"missing customer", billing.PaymentRequest{Amount: types.Rupees(10), Mode: payment.ModeCash}, billing.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RecordPayment(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
			if !billing.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := f.engine.RecordPayment(ctx, billing.PaymentRequest{
		CustomerID: id.NewCustomerID(),
		Amount:     types.Rupees(10),
		Mode:       payment.ModeCash,
	}); !errors.Is(err, billing.ErrCustomerNotFound) {
		t.Errorf("unknown customer: got %v, want ErrCustomerNotFound", err)
	}

	if got := f.balance(t, c.ID); !got.IsZero() {
		t.Errorf("balance after rejected payments: got %v, want zero", got)
	}
}

func TestConcurrentLedgerAppends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryAdjustment, Debit: types.Rupees(2)}
			if i%2 == 1 {
				req = billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryRefund, Credit: types.Rupees(1)}
			}
			if _, err := f.engine.AppendEntry(ctx, req); err != nil {
				t.Errorf("AppendEntry: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(25)) {
		t.Errorf("balance: got %v, want ₹25.00", got)
	}
	entries, err := f.engine.Statement(ctx, c.ID, ledger.ListOpts{})
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("entries: got %d, want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: got seq %d, want %d", i, e.Seq, i+1)
		}
	}
	if got := f.events.appended.Load(); got != n {
		t.Errorf("append events: got %d, want %d", got, n)
	}
	f.mustVerify(t, c.ID)
}

func TestAppendEntryValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")

	tests := []struct {
		name string
		req  billing.EntryRequest
	}{
		{"both zero", billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryAdjustment}},
		{"both set", billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryAdjustment, Debit: types.Rupees(1), Credit: types.Rupees(1)}},
		{"payment type", billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryPayment, Credit: types.Rupees(1)}},
		{"negative", billing.EntryRequest{CustomerID: c.ID, Type: ledger.EntryAdjustment, Debit: types.Rupees(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.AppendEntry(ctx, tt.req); !billing.IsValidation(err) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestOpeningBalanceCarriesIntoInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	if _, err := f.engine.AppendEntry(ctx, billing.EntryRequest{
		CustomerID:  c.ID,
		Type:        ledger.EntryOpening,
		Date:        types.Date(2024, time.May, 31),
		Description: "Carried forward",
		Debit:       types.Rupees(200),
	}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)
	if _, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June)); err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(320)) {
		t.Errorf("balance: got %v, want ₹320.00", got)
	}
	stored, _ := f.engine.GetCustomer(ctx, c.ID)
	if !stored.CreditBalance.Equal(types.Rupees(320)) {
		t.Errorf("cached balance: got %v, want ₹320.00", stored.CreditBalance)
	}
	f.mustVerify(t, c.ID)
}

func TestUpdateDeliveryStatusFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(1), subscription.Daily())
	res := f.deliver(t, june1)

	_, err := f.engine.UpdateDeliveryStatus(ctx, res.Deliveries[0], delivery.StatusMissed, nil)
	if !errors.Is(err, billing.ErrInvalidTransition) {
		t.Errorf("delivered -> missed: got %v, want ErrInvalidTransition", err)
	}
	if _, err := f.engine.UpdateDeliveryStatus(ctx, id.NewDeliveryID(), delivery.StatusDelivered, nil); !errors.Is(err, billing.ErrDeliveryNotFound) {
		t.Errorf("unknown delivery: got %v, want ErrDeliveryNotFound", err)
	}
}

func TestUpdateDeliveryStatusInvoicedDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(1), subscription.Daily())
	f.deliver(t, june1)
	late, err := f.engine.ScheduleForDate(ctx, types.Date(2024, time.June, 2))
	if err != nil {
		t.Fatalf("ScheduleForDate: %v", err)
	}
	if _, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June); err != nil {
		t.Fatalf("GenerateMonthlyInvoices: %v", err)
	}

	_, err = f.engine.UpdateDeliveryStatus(ctx, late.Deliveries[0], delivery.StatusDelivered, nil)
	if !errors.Is(err, billing.ErrDeliveryInvoiced) || !billing.IsValidation(err) {
		t.Fatalf("deliver into invoiced month: got %v, want ErrDeliveryInvoiced", err)
	}
	rec, err := f.store.GetDelivery(ctx, late.Deliveries[0])
	if err != nil {
		t.Fatalf("GetDelivery: %v", err)
	}
	if rec.Status != delivery.StatusPending {
		t.Errorf("status: got %s, want pending", rec.Status)
	}

	// Closing the record without billing it is still allowed.
	if _, err := f.engine.UpdateDeliveryStatus(ctx, late.Deliveries[0], delivery.StatusMissed, nil); err != nil {
		t.Errorf("mark missed: %v", err)
	}
	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(60)) {
		t.Errorf("balance: got %v, want ₹60.00", got)
	}
}

func TestInvoiceOverlappingPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)

	half := types.Period{Start: june1, End: types.Date(2024, time.June, 15)}
	if _, err := f.engine.GenerateInvoice(ctx, c.ID, half); err != nil {
		t.Fatalf("GenerateInvoice(%s): %v", half, err)
	}

	run, err := f.engine.GenerateMonthlyInvoices(ctx, 2024, time.June)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices: %v", err)
	}
	if run.Generated != 0 || run.SkippedExisting != 1 {
		t.Errorf("run: got generated %d skipped existing %d, want 0 and 1", run.Generated, run.SkippedExisting)
	}
	_, err = f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June))
	if !errors.Is(err, billing.ErrInvoiceExists) {
		t.Errorf("whole month: got %v, want ErrInvoiceExists", err)
	}

	if got := f.balance(t, c.ID); !got.Equal(types.Rupees(120)) {
		t.Errorf("balance: got %v, want ₹120.00", got)
	}
	invoices, err := f.engine.ListInvoices(ctx, c.ID, invoice.ListOpts{})
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(invoices) != 1 {
		t.Errorf("invoices: got %d, want 1", len(invoices))
	}
	f.mustVerify(t, c.ID)
}

func TestConcurrentPaymentsOneInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)
	inv, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		payments []*payment.Payment
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.engine.RecordPayment(ctx, billing.PaymentRequest{
				CustomerID: c.ID,
				InvoiceID:  inv.ID,
				Amount:     types.Rupees(50),
				Mode:       payment.ModeCash,
			})
			if err != nil {
				t.Errorf("RecordPayment: %v", err)
				return
			}
			mu.Lock()
			payments = append(payments, p)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(payments) != n {
		t.Fatalf("payments: got %d, want %d", len(payments), n)
	}

	applied, excess := types.Zero(inv.FinalAmount.Currency), types.Zero(inv.FinalAmount.Currency)
	for _, p := range payments {
		if !p.AppliedAmount.Add(p.ExcessAmount).Equal(p.Amount) {
			t.Errorf("payment %s: applied %v + excess %v != %v", p.ID, p.AppliedAmount, p.ExcessAmount, p.Amount)
		}
		applied = applied.Add(p.AppliedAmount)
		excess = excess.Add(p.ExcessAmount)
	}
	if !applied.Equal(inv.FinalAmount) {
		t.Errorf("applied: got %v, want %v", applied, inv.FinalAmount)
	}
	total := types.Rupees(50).Multiply(n)
	if !excess.Equal(total.Subtract(inv.FinalAmount)) {
		t.Errorf("excess: got %v, want %v", excess, total.Subtract(inv.FinalAmount))
	}

	got, err := f.engine.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if !got.PaidAmount.Equal(got.FinalAmount) || got.PaymentStatus != invoice.StatusPaid {
		t.Errorf("invoice: got paid %v status %s, want %v and paid", got.PaidAmount, got.PaymentStatus, got.FinalAmount)
	}
	if want := inv.FinalAmount.Subtract(total); !f.balance(t, c.ID).Equal(want) {
		t.Errorf("balance: got %v, want %v", f.balance(t, c.ID), want)
	}
	if got := f.events.paid.Load(); got != 1 {
		t.Errorf("paid events: got %d, want 1", got)
	}
	f.mustVerify(t, c.ID)
}

func TestRenderInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.customer(t, "Asha")
	f.subscribe(t, c, f.product(t, "Milk", types.Rupees(60)), types.Units(2), subscription.Daily())
	f.deliver(t, june1)
	inv, err := f.engine.GenerateInvoice(ctx, c.ID, types.MonthPeriod(2024, time.June))
	if err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	doc, err := f.engine.InvoiceDocument(ctx, inv.ID)
	if err != nil {
		t.Fatalf("InvoiceDocument: %v", err)
	}
	if doc.Number != inv.Number || len(doc.Lines) != 1 || doc.Lines[0].Product != "Milk" {
		t.Errorf("document: got %+v", doc)
	}

	var sb nopWriter
	err = f.engine.RenderInvoice(ctx, inv.ID, "pdf", &sb)
	if !errors.Is(err, billing.ErrUnknownFormat) {
		t.Errorf("unregistered format: got %v, want ErrUnknownFormat", err)
	}
}

type nopWriter struct{ n int }

func (w *nopWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

var _ plugin.OnInvoicePaid = (*events)(nil)
