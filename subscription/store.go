package subscription

import (
	"context"

	"github.com/doodhwala/billing/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, s *Subscription) error
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
