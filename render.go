package billing

import (
	"context"
	"fmt"
	"io"

	"github.com/doodhwala/billing/document"
	"github.com/doodhwala/billing/id"
)

// InvoiceDocument assembles the render-ready view of an invoice.
func (e *Engine) InvoiceDocument(ctx context.Context, invID id.InvoiceID) (*document.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	c, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}
	products, err := e.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing: invoice document: %w", err)
	}
	return document.Build(inv, c, products, e.now()), nil
}

// RenderInvoice writes the invoice in format using a registered
// formatter plugin.
func (e *Engine) RenderInvoice(ctx context.Context, invID id.InvoiceID, format string, w io.Writer) error {
	f := e.plugins.InvoiceFormatter(format)
	if f == nil {
		return invalid("format", fmt.Sprintf("%q (have %v)", format, e.plugins.Formats()), ErrUnknownFormat)
	}
	doc, err := e.InvoiceDocument(ctx, invID)
	if err != nil {
		return err
	}
	if err := f.Render(ctx, doc, w); err != nil {
		return fmt.Errorf("billing: render invoice %s as %s: %w", invID, format, err)
	}
	return nil
}
