package document

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/doodhwala/billing/types"
)

// JSON renders the document as indented JSON.
type JSON struct{}

func (JSON) Name() string   { return "document-json" }
func (JSON) Format() string { return "json" }

func (JSON) Render(_ context.Context, doc *Invoice, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Text renders a plain-text statement suitable for printing or SMS
// attachments.
type Text struct{}

func (Text) Name() string   { return "document-text" }
func (Text) Format() string { return "txt" }

func (Text) Render(_ context.Context, doc *Invoice, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	p := func(format string, args ...any) {
		fmt.Fprintf(tw, format, args...)
	}

	p("Invoice %s\t\n", doc.Number)
	p("Customer\t%s\t\n", doc.Customer.Name)
	if doc.Customer.Address != "" {
		p("Address\t%s\t\n", doc.Customer.Address)
	}
	p("Period\t%s to %s\t\n", doc.Period.Start.Format(types.DateLayout), doc.Period.End.Format(types.DateLayout))
	p("Due\t%s\t\n", doc.DueDate.Format(types.DateLayout))
	p("\t\n")
	p("Product\tQty\tRate\tDays\tAmount\t\n")
	for _, l := range doc.Lines {
		qty := l.Quantity.String()
		if l.Unit != "" {
			qty += " " + l.Unit
		}
		p("%s\t%s\t%s\t%d\t%s\t\n", l.Product, qty, l.UnitPrice, l.Deliveries, l.Amount)
	}
	p("\t\n")
	p("Total\t%s\t\n", doc.Total)
	if !doc.Tax.IsZero() {
		p("Tax\t%s\t\n", doc.Tax)
	}
	if !doc.Discount.IsZero() {
		p("Discount\t-%s\t\n", doc.Discount)
	}
	p("Payable\t%s\t\n", doc.Final)
	p("Paid\t%s\t\n", doc.Paid)
	p("Due now\t%s\t\n", doc.AmountDue)
	p("Status\t%s\t\n", doc.Status)

	return tw.Flush()
}
