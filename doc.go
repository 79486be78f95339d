// Package billing provides a recurring billing engine for doorstep dairy
// delivery businesses.
//
// Billing is designed as a library, not a service. Import it directly into
// your Go application, or run it through the dairyctl command and the HTTP
// API in package api. It provides:
//
//   - Daily delivery scheduling from per-customer subscriptions
//   - Vacation pauses that suppress deliveries without touching subscriptions
//   - Monthly invoices built only from delivered quantities
//   - An append-only customer ledger with sequenced running balances
//   - Payments that settle invoices and carry the excess as advance credit
//   - Pluggable tax, audit, metrics and invoice rendering hooks
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/doodhwala/billing"
//	    "github.com/doodhwala/billing/store/gormstore"
//	)
//
//	s, err := gormstore.NewPostgres(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := billing.New(s, billing.WithCurrency("inr"), billing.WithDueDays(10))
//
//	// Start migrates the store and initializes plugins.
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Customers subscribe to products with a quantity and a delivery pattern:
//
//	sub := &subscription.Subscription{
//	    CustomerID: c.ID,
//	    ProductID:  milk.ID,
//	    Quantity:   billing.Units(1),
//	    Pattern:    subscription.Alternate(),
//	    StartDate:  billing.Date(2024, time.June, 1),
//	    Active:     true,
//	}
//	err := e.CreateSubscription(ctx, sub)
//
// Each morning the schedule run creates one pending delivery per due
// customer. Running it twice for the same day creates nothing new:
//
//	res, err := e.ScheduleForDate(ctx, billing.Day(time.Now()))
//
// Delivery staff then mark each record delivered, missed or partial:
//
//	_, err = e.UpdateDeliveryStatus(ctx, deliveryID, delivery.StatusDelivered, nil)
//
// At month end the invoice run bills what was actually delivered and
// posts every invoice to the customer's ledger in the same transaction:
//
//	run, err := e.GenerateMonthlyInvoices(ctx, 2024, time.June)
//
// Payments credit the ledger. A payment larger than the invoice's balance
// leaves a negative running balance, which is advance credit:
//
//	p, err := e.RecordPayment(ctx, billing.PaymentRequest{
//	    CustomerID: c.ID,
//	    InvoiceID:  invID,
//	    Amount:     billing.Rupees(2000),
//	    Mode:       payment.ModeUPI,
//	})
//
// # Ledger
//
// Ledger entries are never updated or deleted. Each entry carries a
// per-customer sequence number and the running balance after it, and the
// customer's cached balance always equals the latest running balance.
// VerifyLedger replays the entries from zero and reports any drift.
//
// All monetary calculations use integer arithmetic. The Money type holds
// amounts in the smallest currency unit (paise for INR) and quantities
// are fixed-point with three decimals.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	cust_01h2xcejqtf2nbrexx3vqjhp41  // Customer ID
//	dlv_01h2xcejqtf2nbrexx3vqjhp41   // Delivery ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package billing
