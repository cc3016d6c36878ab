package handlers

import (
	"context"
	"time"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type BindingService interface {
	Bind(ctx context.Context, orderID, currency string, expectedUSD entities.Cents) (*entities.PaymentBinding, error)
	BindingForOrder(ctx context.Context, orderID string) (*entities.PaymentBinding, error)
}

type Reconciler interface {
	CheckOrder(ctx context.Context, orderID string) (*entities.Decision, error)
	LatestDecision(ctx context.Context, orderID string) (*entities.Decision, error)
}

type Fulfiller interface {
	Fulfill(ctx context.Context, order *entities.Order) error
}

// fulfillTimeout bounds synchronous provisioning triggered from an HTTP
// request so a slow provisioner cannot hold the connection open.
const fulfillTimeout = 45 * time.Second
