package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type OrdersRepository interface {
	InsertOrder(ctx context.Context, order *entities.Order) error
	FindOrderByID(ctx context.Context, orderID string) (*entities.Order, error)
	FindUserOrders(ctx context.Context, userID int64) ([]entities.Order, error)
	UpdateStatusGuarded(ctx context.Context, orderID, to string, from ...string) (bool, error)
	MarkCompleted(ctx context.Context, orderID, to string, from ...string) (bool, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OrderService owns the order lifecycle. It is the single authority for
// whether an order has already been fulfilled.
type OrderService struct {
	repo OrdersRepository
}

func NewOrderService(repo OrdersRepository) *OrderService {
	return &OrderService{repo: repo}
}

func (os *OrderService) CreateOrder(ctx context.Context, in ports.CreateOrderInput) (*entities.Order, error) {
	if in.AmountUSD <= 0 {
		return nil, fmt.Errorf("%w: order amount must be positive, got %s", entities.ErrValidation, in.AmountUSD.String())
	}
	if in.ServiceType == "" {
		return nil, fmt.Errorf("%w: service type is required", entities.ErrValidation)
	}
	if in.PaymentMethod != entities.PaymentMethodBalance &&
		!strings.HasPrefix(in.PaymentMethod, entities.PaymentMethodCryptoPrefix) {
		return nil, fmt.Errorf("%w: unknown payment method %q", entities.ErrValidation, in.PaymentMethod)
	}

	order := &entities.Order{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		ServiceType:    in.ServiceType,
		ServiceDetails: in.ServiceDetails,
		AmountUSD:      in.AmountUSD,
		PaymentMethod:  in.PaymentMethod,
		Status:         entities.OrderStatusCreated,
		CreatedAt:      time.Now().UTC(),
	}

	if err := os.repo.InsertOrder(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (os *OrderService) GetOrder(ctx context.Context, orderID string) (*entities.Order, error) {
	return os.repo.FindOrderByID(ctx, orderID)
}

func (os *OrderService) GetUserOrders(ctx context.Context, userID int64) ([]entities.Order, error) {
	return os.repo.FindUserOrders(ctx, userID)
}

// MarkAwaitingPayment moves a freshly created order into the monitored state
// once a receive-address is bound to it.
func (os *OrderService) MarkAwaitingPayment(ctx context.Context, orderID string) error {
	ok, err := os.repo.UpdateStatusGuarded(ctx, orderID,
		entities.OrderStatusAwaitingPayment, entities.OrderStatusCreated)
	if err != nil {
		return err
	}
	if !ok {
		// Re-binding an already awaiting order is a no-op.
		order, err := os.repo.FindOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != entities.OrderStatusAwaitingPayment {
			return fmt.Errorf("%w: cannot await payment from %s", entities.ErrInvalidTransition, order.Status)
		}
	}
	return nil
}

// MarkPaymentObserved records that the order's payment is secured. Used for
// balance-paid orders, which skip the monitor entirely.
func (os *OrderService) MarkPaymentObserved(ctx context.Context, orderID string) error {
	ok, err := os.repo.UpdateStatusGuarded(ctx, orderID,
		entities.OrderStatusPaymentObserved,
		entities.OrderStatusCreated, entities.OrderStatusAwaitingPayment)
	if err != nil {
		return err
	}
	if !ok {
		order, err := os.repo.FindOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != entities.OrderStatusPaymentObserved {
			return fmt.Errorf("%w: cannot observe payment from %s", entities.ErrInvalidTransition, order.Status)
		}
	}
	return nil
}

// MarkFulfilled closes the order after provisioning. Calling it on an already
// fulfilled order returns ErrAlreadyFulfilled, which callers treat as an
// idempotent success; any other terminal or premature state is an
// ErrInvalidTransition.
func (os *OrderService) MarkFulfilled(ctx context.Context, orderID string) error {
	ok, err := os.repo.MarkCompleted(ctx, orderID,
		entities.OrderStatusFulfilled, entities.OrderStatusPaymentObserved)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	order, err := os.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == entities.OrderStatusFulfilled {
		return entities.ErrAlreadyFulfilled
	}

	return fmt.Errorf("%w: cannot fulfill order in state %s", entities.ErrInvalidTransition, order.Status)
}

// ExpireStale closes orders that never received a payment within the TTL.
func (os *OrderService) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return os.repo.ExpireStale(ctx, olderThan)
}
