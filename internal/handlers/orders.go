package handlers

import (
	"context"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in ports.CreateOrderInput) (*entities.Order, error)
	GetOrder(ctx context.Context, orderID string) (*entities.Order, error)
	GetUserOrders(ctx context.Context, userID int64) ([]entities.Order, error)
	MarkPaymentObserved(ctx context.Context, orderID string) error
}
