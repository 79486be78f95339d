package product

import (
	"context"

	"github.com/doodhwala/billing/id"
)

type Store interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ProductID) (*Product, error)
	ListProducts(ctx context.Context, opts ListOpts) ([]*Product, error)
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
