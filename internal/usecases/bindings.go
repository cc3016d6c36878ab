package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type BindingsRepository interface {
	InsertBinding(ctx context.Context, binding *entities.PaymentBinding) error
	RetireByAddress(ctx context.Context, address string) error
	FindActive(ctx context.Context, retiredGrace time.Duration) ([]entities.PaymentBinding, error)
	FindByOrder(ctx context.Context, orderID string) (*entities.PaymentBinding, error)
}

// orderStateChanger is the slice of the order lifecycle the registry needs.
type orderStateChanger interface {
	MarkAwaitingPayment(ctx context.Context, orderID string) error
}

// BindingService is the payment address registry: it mints receive-addresses
// through the gateway and binds them to order expectations.
type BindingService struct {
	logger  *slog.Logger
	gateway ports.PaymentGateway
	repo    BindingsRepository
	orders  orderStateChanger
}

func NewBindingService(logger *slog.Logger, gateway ports.PaymentGateway, repo BindingsRepository, orders orderStateChanger) *BindingService {
	return &BindingService{
		logger:  logger,
		gateway: gateway,
		repo:    repo,
		orders:  orders,
	}
}

// Bind requests a fresh address from the gateway and persists the binding.
// On gateway failure nothing is persisted and the storefront surfaces a
// retry; no synthetic address is ever invented.
func (bs *BindingService) Bind(ctx context.Context, orderID, currency string, expectedUSD entities.Cents) (*entities.PaymentBinding, error) {
	callbackRef := uuid.NewString()

	address, err := bs.gateway.IssueAddress(ctx, currency, callbackRef)
	if err != nil {
		bs.logger.ErrorContext(ctx, "Address issuance failed",
			"order_id", orderID, "currency", currency, "error", err)
		return nil, err
	}

	binding := &entities.PaymentBinding{
		Address:     address,
		Currency:    currency,
		OrderID:     orderID,
		ExpectedUSD: expectedUSD,
		CreatedAt:   time.Now().UTC(),
	}

	if err = bs.repo.InsertBinding(ctx, binding); err != nil {
		return nil, err
	}

	if err = bs.orders.MarkAwaitingPayment(ctx, orderID); err != nil {
		return nil, err
	}

	return binding, nil
}

// Retire deactivates the binding on the address, typically when the user
// switches currencies mid-checkout. The monitor keeps watching the address
// for a grace window so an in-flight payment is not silently dropped.
func (bs *BindingService) Retire(ctx context.Context, address string) error {
	return bs.repo.RetireByAddress(ctx, address)
}

func (bs *BindingService) ActiveBindings(ctx context.Context, retiredGrace time.Duration) ([]entities.PaymentBinding, error) {
	return bs.repo.FindActive(ctx, retiredGrace)
}

func (bs *BindingService) BindingForOrder(ctx context.Context, orderID string) (*entities.PaymentBinding, error) {
	return bs.repo.FindByOrder(ctx, orderID)
}
