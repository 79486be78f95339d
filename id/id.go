// Package id defines TypeID-based identity types for all billing entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all billing entity types.
const (
	PrefixCustomer     Prefix = "cust" // Subscriber
	PrefixProduct      Prefix = "prod" // Catalog product
	PrefixSubscription Prefix = "csub" // Customer product subscription
	PrefixVacation     Prefix = "vac"  // Vacation window
	PrefixDelivery     Prefix = "dlv"  // Delivery record
	PrefixDeliveryItem Prefix = "dli"  // Delivery item
	PrefixInvoice      Prefix = "inv"  // Invoice
	PrefixLineItem     Prefix = "li"   // Invoice line item
	PrefixLedgerEntry  Prefix = "led"  // Ledger entry
	PrefixPayment      Prefix = "pay"  // Payment record
)

// ID is the primary identifier type for all billing entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "cust_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// Type aliases documenting which prefix a field carries.
type (
	CustomerID     = ID
	ProductID      = ID
	SubscriptionID = ID
	VacationID     = ID
	DeliveryID     = ID
	InvoiceID      = ID
	LedgerEntryID  = ID
	PaymentID      = ID
)

func NewCustomerID() ID     { return New(PrefixCustomer) }
func NewProductID() ID      { return New(PrefixProduct) }
func NewSubscriptionID() ID { return New(PrefixSubscription) }
func NewVacationID() ID     { return New(PrefixVacation) }
func NewDeliveryID() ID     { return New(PrefixDelivery) }
func NewDeliveryItemID() ID { return New(PrefixDeliveryItem) }
func NewInvoiceID() ID      { return New(PrefixInvoice) }
func NewLineItemID() ID     { return New(PrefixLineItem) }
func NewLedgerEntryID() ID  { return New(PrefixLedgerEntry) }
func NewPaymentID() ID      { return New(PrefixPayment) }

func ParseCustomerID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixCustomer) }
func ParseProductID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixProduct) }
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }
func ParseVacationID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixVacation) }
func ParseDeliveryID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixDelivery) }
func ParseInvoiceID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixInvoice) }
func ParseLedgerEntryID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixLedgerEntry) }
func ParsePaymentID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixPayment) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// Short returns the last n characters of the suffix, upper-cased. It is
// used for human-facing references such as invoice numbers.
func (i ID) Short(n int) string {
	s := i.String()
	if k := strings.LastIndexByte(s, '_'); k >= 0 {
		s = s[k+1:]
	}
	if n > 0 && len(s) > n {
		s = s[len(s)-n:]
	}
	return strings.ToUpper(s)
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The Nil ID stores NULL so optional
// foreign keys such as payments.invoice_id stay empty.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
