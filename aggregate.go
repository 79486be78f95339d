package billing

import (
	"context"
	"fmt"
	"sort"

	"github.com/doodhwala/billing/delivery"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

// AggregateLine is one product's delivered total over a period.
type AggregateLine struct {
	ProductID  id.ProductID   `json:"product_id"`
	Quantity   types.Quantity `json:"quantity"`
	UnitPrice  types.Money    `json:"unit_price"`
	Amount     types.Money    `json:"amount"`
	Deliveries int            `json:"deliveries"`
}

// Aggregation is the billable activity of one customer over a period.
type Aggregation struct {
	CustomerID id.CustomerID   `json:"customer_id"`
	Period     types.Period    `json:"period"`
	Lines      []AggregateLine `json:"lines"`
	Total      types.Money     `json:"total"`
	Deliveries int             `json:"deliveries"`
}

// IsEmpty reports whether nothing was delivered.
func (a *Aggregation) IsEmpty() bool { return len(a.Lines) == 0 }

// AggregateDeliveries sums the items of delivered records inside period,
// per product. Pending, missed and partial records are not billed.
// Amount is the sum of item totals; UnitPrice is their weighted average,
// for display only.
func (e *Engine) AggregateDeliveries(ctx context.Context, customerID id.CustomerID, period types.Period) (*Aggregation, error) {
	if !period.Valid() {
		return nil, invalid("period", period.String(), ErrInvalidPeriod)
	}

	records, err := e.store.ListDeliveries(ctx, customerID, delivery.ListOpts{
		Status: delivery.StatusDelivered,
		Start:  period.Start,
		End:    period.End,
	})
	if err != nil {
		return nil, fmt.Errorf("billing: aggregate deliveries: %w", err)
	}
	return aggregate(customerID, period, e.currency, records), nil
}

func aggregate(customerID id.CustomerID, period types.Period, currency string, records []*delivery.Record) *Aggregation {
	agg := &Aggregation{
		CustomerID: customerID,
		Period:     period,
		Lines:      []AggregateLine{},
		Total:      types.Zero(currency),
	}

	byProduct := make(map[id.ProductID]*AggregateLine)
	for _, r := range records {
		if !r.Status.Billable() || !period.Contains(r.Date) {
			continue
		}
		counted := false
		for _, it := range r.Items {
			line, ok := byProduct[it.ProductID]
			if !ok {
				line = &AggregateLine{ProductID: it.ProductID, Amount: types.Zero(currency)}
				byProduct[it.ProductID] = line
			}
			line.Quantity = line.Quantity.Add(it.Quantity)
			line.Amount = line.Amount.Add(it.Total)
			line.Deliveries++
			counted = true
		}
		if counted {
			agg.Deliveries++
		}
	}

	for _, line := range byProduct {
		line.UnitPrice = averagePrice(line.Amount, line.Quantity)
		agg.Lines = append(agg.Lines, *line)
		agg.Total = agg.Total.Add(line.Amount)
	}
	sort.Slice(agg.Lines, func(i, j int) bool {
		return agg.Lines[i].ProductID.String() < agg.Lines[j].ProductID.String()
	})
	return agg
}

// averagePrice returns amount per whole unit of q, rounded half away
// from zero.
func averagePrice(amount types.Money, q types.Quantity) types.Money {
	if q <= 0 {
		return types.Zero(amount.Currency)
	}
	scaled := amount.Amount * int64(types.Units(1))
	n := int64(q)
	v := scaled / n
	if rem := scaled % n; rem*2 >= n {
		v++
	}
	return types.New(v, amount.Currency)
}
