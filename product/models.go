package product

import (
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

type Product struct {
	types.Entity
	ID        id.ProductID `json:"id"`
	Name      string       `json:"name"`
	Unit      string       `json:"unit"` // litre, packet, kg
	BasePrice types.Money  `json:"base_price"`
	Active    bool         `json:"active"`
}
