package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

func TestBindIssuesAddressAndArmsOrder(t *testing.T) {
	orders := newFakeOrderStore()
	bindings := &fakeBindingStore{}
	gateway := newFakeGateway()
	service := NewBindingService(testLogger(), gateway, bindings, NewOrderService(orders))

	order := &entities.Order{
		ID:            "order-bind",
		UserID:        1,
		ServiceType:   "domain_registration",
		AmountUSD:     1299,
		PaymentMethod: "crypto:ltc",
		Status:        entities.OrderStatusCreated,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, orders.InsertOrder(context.Background(), order))

	binding, err := service.Bind(context.Background(), order.ID, "ltc", order.AmountUSD)
	require.NoError(t, err)
	require.Equal(t, "ltc-addr-1", binding.Address)
	require.Equal(t, entities.Cents(1299), binding.ExpectedUSD)
	require.Equal(t, entities.OrderStatusAwaitingPayment, orders.status(t, order.ID))
}

func TestBindGatewayFailureLeavesNothingBehind(t *testing.T) {
	orders := newFakeOrderStore()
	bindings := &fakeBindingStore{}
	gateway := newFakeGateway()
	gateway.issueErr = entities.ErrGatewayUnavailable
	service := NewBindingService(testLogger(), gateway, bindings, NewOrderService(orders))

	order := &entities.Order{
		ID:            "order-bind-fail",
		UserID:        1,
		ServiceType:   "domain_registration",
		AmountUSD:     1299,
		PaymentMethod: "crypto:ltc",
		Status:        entities.OrderStatusCreated,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, orders.InsertOrder(context.Background(), order))

	_, err := service.Bind(context.Background(), order.ID, "ltc", order.AmountUSD)
	require.ErrorIs(t, err, entities.ErrGatewayUnavailable)

	// No binding persisted, order untouched.
	_, err = bindings.FindByOrder(context.Background(), order.ID)
	require.ErrorIs(t, err, entities.ErrBindingNotFound)
	require.Equal(t, entities.OrderStatusCreated, orders.status(t, order.ID))
}

func TestSwitchCurrencyRetiresPreviousBinding(t *testing.T) {
	orders := newFakeOrderStore()
	bindings := &fakeBindingStore{}
	gateway := newFakeGateway()
	service := NewBindingService(testLogger(), gateway, bindings, NewOrderService(orders))

	order := &entities.Order{
		ID:            "order-switch",
		UserID:        1,
		ServiceType:   "domain_registration",
		AmountUSD:     1299,
		PaymentMethod: "crypto:ltc",
		Status:        entities.OrderStatusCreated,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, orders.InsertOrder(context.Background(), order))

	first, err := service.Bind(context.Background(), order.ID, "ltc", order.AmountUSD)
	require.NoError(t, err)

	second, err := service.Bind(context.Background(), order.ID, "btc", order.AmountUSD)
	require.NoError(t, err)
	require.NotEqual(t, first.Address, second.Address)

	// The retired address stays in the poll set during the grace window.
	active, err := service.ActiveBindings(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Without grace only the current binding is watched.
	active, err = service.ActiveBindings(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, second.Address, active[0].Address)

	current, err := service.BindingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, second.Address, current.Address)
}
