// Package document assembles the data an invoice document needs. Layout
// and file format belong to a Renderer; the engine only supplies data.
package document

import (
	"context"
	"io"
	"time"

	"github.com/doodhwala/billing/customer"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/invoice"
	"github.com/doodhwala/billing/product"
	"github.com/doodhwala/billing/types"
)

// Renderer writes an invoice document in one format.
type Renderer interface {
	Format() string
	Render(ctx context.Context, doc *Invoice, w io.Writer) error
}

type Party struct {
	ID      id.CustomerID `json:"id"`
	Name    string        `json:"name"`
	Phone   string        `json:"phone,omitempty"`
	Address string        `json:"address,omitempty"`
}

type Line struct {
	Product    string         `json:"product"`
	Unit       string         `json:"unit"`
	Quantity   types.Quantity `json:"quantity"`
	UnitPrice  types.Money    `json:"unit_price"`
	Amount     types.Money    `json:"amount"`
	Deliveries int            `json:"deliveries"`
}

// Invoice is the render-ready view of an invoice.
type Invoice struct {
	Number      string                `json:"invoice_number"`
	InvoiceID   id.InvoiceID          `json:"invoice_id"`
	Customer    Party                 `json:"customer"`
	Period      types.Period          `json:"period"`
	IssuedAt    time.Time             `json:"issued_at"`
	DueDate     time.Time             `json:"due_date"`
	Lines       []Line                `json:"lines"`
	Total       types.Money           `json:"total_amount"`
	Tax         types.Money           `json:"tax_amount"`
	Discount    types.Money           `json:"discount_amount"`
	Final       types.Money           `json:"final_amount"`
	Paid        types.Money           `json:"paid_amount"`
	AmountDue   types.Money           `json:"amount_due"`
	Status      invoice.PaymentStatus `json:"payment_status"`
	PaymentDate *time.Time            `json:"payment_date,omitempty"`
}

// Build assembles the document for inv as seen at now. products maps
// product IDs to catalog entries; unknown products fall back to the
// line description.
func Build(inv *invoice.Invoice, c *customer.Customer, products map[id.ProductID]*product.Product, now time.Time) *Invoice {
	doc := &Invoice{
		Number:    inv.Number,
		InvoiceID: inv.ID,
		Customer: Party{
			ID:      c.ID,
			Name:    c.Name,
			Phone:   c.Phone,
			Address: c.Address,
		},
		Period:      inv.Period(),
		IssuedAt:    inv.CreatedAt,
		DueDate:     inv.DueDate,
		Total:       inv.TotalAmount,
		Tax:         inv.TaxAmount,
		Discount:    inv.DiscountAmount,
		Final:       inv.FinalAmount,
		Paid:        inv.PaidAmount,
		AmountDue:   inv.Remaining(),
		Status:      inv.StatusAt(now),
		PaymentDate: inv.PaymentDate,
	}

	for _, li := range inv.LineItems {
		line := Line{
			Product:    li.Description,
			Quantity:   li.Quantity,
			UnitPrice:  li.UnitPrice,
			Amount:     li.Amount,
			Deliveries: li.Deliveries,
		}
		if p, ok := products[li.ProductID]; ok {
			line.Product = p.Name
			line.Unit = p.Unit
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc
}
