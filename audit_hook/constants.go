package audithook

// Action constants for audit events.
const (
	// Delivery actions
	ActionDeliveryScheduled     = "delivery.scheduled"
	ActionDeliveryStatusChanged = "delivery.status_changed"
	ActionScheduleCompleted     = "schedule.completed"

	// Invoice actions
	ActionInvoiceGenerated  = "invoice.generated"
	ActionInvoicesCompleted = "invoice_run.completed"
	ActionInvoicePaid       = "invoice.paid"

	// Payment and ledger actions
	ActionPaymentRecorded    = "payment.recorded"
	ActionLedgerEntry        = "ledger.entry_appended"
	ActionConsistencyFailure = "ledger.consistency_failure"
)

// Resource constants for audit events.
const (
	ResourceDelivery = "delivery"
	ResourceSchedule = "schedule"
	ResourceInvoice  = "invoice"
	ResourcePayment  = "payment"
	ResourceLedger   = "ledger"
	ResourceCustomer = "customer"
)

// Category constants for audit events.
const (
	CategoryDelivery = "delivery"
	CategoryBilling  = "billing"
	CategoryPayment  = "payment"
	CategoryLedger   = "ledger"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
