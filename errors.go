package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/ledger"
	"github.com/doodhwala/billing/pricing"
	"github.com/doodhwala/billing/subscription"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("billing: not found")
	ErrAlreadyExists = errors.New("billing: already exists")
	ErrInvalidInput  = errors.New("billing: invalid input")

	// Entity lookups
	ErrCustomerNotFound     = errors.New("billing: customer not found")
	ErrProductNotFound      = errors.New("billing: product not found")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrDeliveryNotFound     = errors.New("billing: delivery not found")
	ErrInvoiceNotFound      = errors.New("billing: invoice not found")
	ErrPaymentNotFound      = errors.New("billing: payment not found")
	ErrLedgerEmpty          = errors.New("billing: ledger has no entries")

	// Conflicts: re-running a batch hits these and skips.
	ErrDeliveryExists = errors.New("billing: delivery already scheduled for date")
	ErrInvoiceExists  = errors.New("billing: invoice already exists for period")

	// Batch outcomes
	ErrNoActivity = errors.New("billing: no delivered items in period")

	// ErrLedgerAppend marks a failure in the ledger step of a composite
	// write. Stores wrap the cause with it after rolling back.
	ErrLedgerAppend = errors.New("billing: ledger append failed")

	// Validation
	ErrInvalidAmount        = errors.New("billing: amount must be positive")
	ErrInvalidMode          = errors.New("billing: unknown payment mode")
	ErrInvalidPeriod        = errors.New("billing: invalid billing period")
	ErrInvoiceCustomer      = errors.New("billing: invoice belongs to another customer")
	ErrDeliveryInvoiced     = errors.New("billing: delivery date is already invoiced")
	ErrCustomerInactive     = errors.New("billing: customer is inactive")
	ErrCurrencyMismatch     = errors.New("billing: currency does not match engine currency")
	ErrUnknownFormat        = errors.New("billing: no formatter registered for format")
	ErrInvalidPattern       = subscription.ErrInvalidPattern
	ErrInvalidRule          = pricing.ErrInvalidRule
	ErrInvalidEntry         = ledger.ErrInvalidEntry
	ErrInvalidTransition    = delivery.ErrInvalidTransition
	ErrInvoiceTotalsInvalid = invoice.ErrTotalsMismatch

	// Store errors
	ErrStoreNotReady     = errors.New("billing: store not ready")
	ErrStoreClosed       = errors.New("billing: store is closed")
	ErrTransactionFailed = errors.New("billing: transaction failed")
	ErrMigrationFailed   = errors.New("billing: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("billing: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConsistencyError reports a dependent write whose ledger append failed.
// RolledBack tells whether the dependent write was undone; when false the
// record needs reconciliation.
type ConsistencyError struct {
	Op         string
	CustomerID id.CustomerID
	RecordID   string
	RolledBack bool
	Err        error
}

func (e *ConsistencyError) Error() string {
	state := "flagged for reconciliation"
	if e.RolledBack {
		state = "rolled back"
	}
	return fmt.Sprintf("billing: %s for customer %s (record %s) %s: %v", e.Op, e.CustomerID, e.RecordID, state, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// ItemError is one customer's failure inside a batch run.
type ItemError struct {
	CustomerID id.CustomerID
	Err        error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("customer %s: %v", e.CustomerID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// MarshalJSON renders the error message for API responses.
func (e ItemError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		CustomerID string `json:"customer_id"`
		Error      string `json:"error"`
	}{e.CustomerID.String(), msg})
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "billing: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("billing: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrDeliveryNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true for duplicate delivery or invoice errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDeliveryExists) ||
		errors.Is(err, ErrInvoiceExists) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsValidation returns true for input that must be fixed, not retried.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvoiceCustomer) ||
		errors.Is(err, ErrDeliveryInvoiced) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrUnknownFormat) ||
		errors.Is(err, ErrInvalidPattern) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidEntry) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsConsistency returns true if a ledger append failed after a dependent
// write.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
