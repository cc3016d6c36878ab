package ports

import (
	"context"
	"time"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

// PaymentGateway is the external collaborator that issues receive-addresses
// and reports confirmed payments on them.
type PaymentGateway interface {
	IssueAddress(ctx context.Context, currency, callbackRef string) (string, error)
	GetObservations(ctx context.Context, currency, address string) ([]entities.PaymentObservation, error)
}

// RateConverter prices a crypto amount in USD. It never fails: when the live
// quote service is unreachable it degrades to a static fallback table and
// reports the source so downstream consumers can treat the result as
// lower-confidence.
type RateConverter interface {
	ToUSD(ctx context.Context, currency string, amount float64) (entities.Cents, string)
}

// Provisioner is the external domain/hosting provisioning collaborator.
type Provisioner interface {
	Provision(ctx context.Context, serviceType string, details []byte) error
}

// CreateOrderInput carries the storefront checkout parameters.
type CreateOrderInput struct {
	UserID         int64
	ServiceType    string
	ServiceDetails []byte
	AmountUSD      entities.Cents
	PaymentMethod  string
}

// OrderService owns the order lifecycle record.
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*entities.Order, error)
	GetOrder(ctx context.Context, orderID string) (*entities.Order, error)
	GetUserOrders(ctx context.Context, userID int64) ([]entities.Order, error)
	MarkFulfilled(ctx context.Context, orderID string) error
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// WalletService holds per-user USD balances.
type WalletService interface {
	Balance(ctx context.Context, userID int64) (entities.Cents, error)
	Credit(ctx context.Context, userID int64, amount entities.Cents, reason, dedupKey string) error
	Debit(ctx context.Context, userID int64, amount entities.Cents, reason string) error
}

// BindingService is the payment address registry.
type BindingService interface {
	Bind(ctx context.Context, orderID, currency string, expectedUSD entities.Cents) (*entities.PaymentBinding, error)
	Retire(ctx context.Context, address string) error
	ActiveBindings(ctx context.Context, retiredGrace time.Duration) ([]entities.PaymentBinding, error)
	BindingForOrder(ctx context.Context, orderID string) (*entities.PaymentBinding, error)
}

// Reconciler classifies observed payments against order expectations and
// applies ledger effects exactly once per gateway reference.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string, obs entities.PaymentObservation) (*entities.Decision, error)
	CheckOrder(ctx context.Context, orderID string) (*entities.Decision, error)
}

// Fulfiller dispatches provisioning at most once per order.
type Fulfiller interface {
	Fulfill(ctx context.Context, order *entities.Order) error
}

// PaymentEvent is pushed to the storefront event feed so users see a payment
// before it is confirmed.
type PaymentEvent struct {
	Type          string    `json:"type"` // "seen", "confirmed", "reconciled"
	OrderID       string    `json:"order_id"`
	Address       string    `json:"address"`
	Currency      string    `json:"currency"`
	AmountCrypto  float64   `json:"amount_crypto"`
	Confirmations int64     `json:"confirmations"`
	Required      int64     `json:"required_confirmations"`
	DecisionClass string    `json:"decision_class,omitempty"`
	At            time.Time `json:"at"`
}

// EventPublisher fans payment events out to connected clients.
type EventPublisher interface {
	Publish(event PaymentEvent)
}
