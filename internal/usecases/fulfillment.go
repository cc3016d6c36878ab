package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/metrics"
)

// orderFulfillmentAuthority is the slice of the order lifecycle the
// dispatcher needs: the idempotent fulfillment guard.
type orderFulfillmentAuthority interface {
	GetOrder(ctx context.Context, orderID string) (*entities.Order, error)
	MarkFulfilled(ctx context.Context, orderID string) error
}

// FulfillmentService hands a payable order to the provisioning collaborator
// exactly once. Payment is already secured when it runs: a provisioning
// failure leaves the order PAYMENT_OBSERVED for operator retry, and a retry
// re-checks the fulfillment guard before provisioning again.
type FulfillmentService struct {
	logger      *slog.Logger
	provisioner ports.Provisioner
	orders      orderFulfillmentAuthority

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewFulfillmentService(logger *slog.Logger, provisioner ports.Provisioner, orders orderFulfillmentAuthority) *FulfillmentService {
	return &FulfillmentService{
		logger:      logger,
		provisioner: provisioner,
		orders:      orders,
		inflight:    make(map[string]*sync.Mutex),
	}
}

func (fs *FulfillmentService) orderLock(orderID string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	lock, ok := fs.inflight[orderID]
	if !ok {
		lock = &sync.Mutex{}
		fs.inflight[orderID] = lock
	}
	return lock
}

// forgetLock drops the per-order mutex once the order is terminal, keeping
// the inflight map bounded. Late callers holding the old mutex still hit the
// database guard.
func (fs *FulfillmentService) forgetLock(orderID string) {
	fs.mu.Lock()
	delete(fs.inflight, orderID)
	fs.mu.Unlock()
}

// Fulfill provisions the order's service. Concurrent duplicate calls for the
// same order result in exactly one provisioning call; calling it for an
// already fulfilled order is a successful no-op.
func (fs *FulfillmentService) Fulfill(ctx context.Context, order *entities.Order) error {
	lock := fs.orderLock(order.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := fs.orders.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	if current.Status == entities.OrderStatusFulfilled {
		fs.logger.InfoContext(ctx, "Order already fulfilled, skipping provisioning", "order_id", order.ID)
		fs.forgetLock(order.ID)
		return nil
	}

	if current.Status != entities.OrderStatusPaymentObserved {
		if current.Terminal() {
			fs.forgetLock(order.ID)
		}
		return fmt.Errorf("%w: fulfillment requested in state %s", entities.ErrInvalidTransition, current.Status)
	}

	if err = fs.provisioner.Provision(ctx, current.ServiceType, current.ServiceDetails); err != nil {
		metrics.FulfillmentFailures.Inc()
		fs.logger.ErrorContext(ctx, "Provisioning failed, order held for retry",
			"order_id", order.ID, "service_type", current.ServiceType, "error", err)
		return err
	}

	if err = fs.orders.MarkFulfilled(ctx, order.ID); err != nil {
		if errors.Is(err, entities.ErrAlreadyFulfilled) {
			fs.forgetLock(order.ID)
			return nil
		}
		// Provisioning succeeded but the state write failed. Surface loudly:
		// the retry path hits the idempotent guard, never a second provision.
		fs.logger.ErrorContext(ctx, "Provisioned but failed to mark order fulfilled",
			"order_id", order.ID, "error", err)
		return err
	}

	metrics.FulfillmentsTotal.Inc()
	fs.logger.InfoContext(ctx, "Order fulfilled", "order_id", order.ID, "service_type", current.ServiceType)
	fs.forgetLock(order.ID)

	return nil
}
