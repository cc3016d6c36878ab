package usecases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

func seedPaidOrder(t *testing.T, store *fakeOrderStore, orderID string) *entities.Order {
	t.Helper()
	order := &entities.Order{
		ID:            orderID,
		UserID:        7,
		ServiceType:   "hosting_plan",
		AmountUSD:     2500,
		PaymentMethod: "crypto:btc",
		Status:        entities.OrderStatusPaymentObserved,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertOrder(context.Background(), order))
	return order
}

func TestFulfillConcurrentDuplicatesProvisionOnce(t *testing.T) {
	store := newFakeOrderStore()
	provisioner := &fakeProvisioner{}
	service := NewFulfillmentService(testLogger(), provisioner, NewOrderService(store))

	order := seedPaidOrder(t, store, "order-concurrent")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = service.Fulfill(context.Background(), order)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	require.Equal(t, 1, provisioner.callCount(), "exactly one provisioning call")
	require.Equal(t, entities.OrderStatusFulfilled, store.status(t, order.ID))
	require.Empty(t, service.inflight, "terminal orders must not pin their locks")
}

func TestFulfillReleasesLockWhenTerminal(t *testing.T) {
	store := newFakeOrderStore()
	provisioner := &fakeProvisioner{}
	service := NewFulfillmentService(testLogger(), provisioner, NewOrderService(store))

	// Failed provisioning keeps the lock: the order is still in flight.
	provisioner.setError(fmt.Errorf("api down"))
	held := seedPaidOrder(t, store, "order-held")
	require.Error(t, service.Fulfill(context.Background(), held))
	require.Len(t, service.inflight, 1)

	// Success drops it.
	provisioner.setError(nil)
	require.NoError(t, service.Fulfill(context.Background(), held))
	require.Empty(t, service.inflight)

	// An already-fulfilled order drops its entry on the no-op path too.
	require.NoError(t, service.Fulfill(context.Background(), held))
	require.Empty(t, service.inflight)
}

func TestFulfillAlreadyFulfilledIsNoop(t *testing.T) {
	store := newFakeOrderStore()
	provisioner := &fakeProvisioner{}
	service := NewFulfillmentService(testLogger(), provisioner, NewOrderService(store))

	order := seedPaidOrder(t, store, "order-done")
	_, err := store.MarkCompleted(context.Background(), order.ID,
		entities.OrderStatusFulfilled, entities.OrderStatusPaymentObserved)
	require.NoError(t, err)

	require.NoError(t, service.Fulfill(context.Background(), order))
	require.Equal(t, 0, provisioner.callCount())
}

func TestFulfillRejectsUnpaidOrder(t *testing.T) {
	store := newFakeOrderStore()
	provisioner := &fakeProvisioner{}
	service := NewFulfillmentService(testLogger(), provisioner, NewOrderService(store))

	order := &entities.Order{
		ID:            "order-unpaid",
		UserID:        7,
		ServiceType:   "hosting_plan",
		AmountUSD:     2500,
		PaymentMethod: "crypto:btc",
		Status:        entities.OrderStatusAwaitingPayment,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertOrder(context.Background(), order))

	err := service.Fulfill(context.Background(), order)
	require.ErrorIs(t, err, entities.ErrInvalidTransition)
	require.Equal(t, 0, provisioner.callCount())
}

func TestFulfillProvisionerFailureKeepsOrderPaid(t *testing.T) {
	store := newFakeOrderStore()
	provisioner := &fakeProvisioner{}
	provisioner.setError(fmt.Errorf("api down"))
	service := NewFulfillmentService(testLogger(), provisioner, NewOrderService(store))

	order := seedPaidOrder(t, store, "order-retry")

	err := service.Fulfill(context.Background(), order)
	require.Error(t, err)
	require.Equal(t, entities.OrderStatusPaymentObserved, store.status(t, order.ID))

	// Retry succeeds once the provisioner recovers.
	provisioner.setError(nil)
	require.NoError(t, service.Fulfill(context.Background(), order))
	require.Equal(t, 1, provisioner.callCount())
	require.Equal(t, entities.OrderStatusFulfilled, store.status(t, order.ID))
}
