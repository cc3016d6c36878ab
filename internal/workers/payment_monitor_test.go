package workers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubBindings struct {
	bindings []entities.PaymentBinding
	err      error
}

func (s *stubBindings) ActiveBindings(_ context.Context, _ time.Duration) ([]entities.PaymentBinding, error) {
	return s.bindings, s.err
}

type stubGateway struct {
	mu           sync.Mutex
	observations map[string][]entities.PaymentObservation
	err          error
}

func (s *stubGateway) IssueAddress(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (s *stubGateway) GetObservations(_ context.Context, _, address string) ([]entities.PaymentObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.observations[address], nil
}

type stubRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (s *stubRecorder) UpsertObservation(_ context.Context, obs *entities.PaymentObservation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	first := !s.seen[obs.GatewayReference]
	s.seen[obs.GatewayReference] = true
	return first, nil
}

type stubReconciler struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubReconciler) Reconcile(_ context.Context, _ string, obs entities.PaymentObservation) (*entities.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, obs.GatewayReference)
	return &entities.Decision{GatewayReference: obs.GatewayReference}, nil
}

func (s *stubReconciler) CheckOrder(_ context.Context, _ string) (*entities.Decision, error) {
	return nil, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []ports.PaymentEvent
}

func (s *stubPublisher) Publish(event ports.PaymentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func TestSweepHandsConfirmedObservationsToReconciler(t *testing.T) {
	binding := entities.PaymentBinding{
		ID: 1, Address: "ltc-addr", Currency: "ltc", OrderID: "order-1", ExpectedUSD: 1299,
	}

	gateway := &stubGateway{observations: map[string][]entities.PaymentObservation{
		"ltc-addr": {
			{GatewayReference: "tx-confirmed", Address: "ltc-addr", Currency: "ltc", AmountCrypto: 0.15, Confirmations: 6},
			{GatewayReference: "tx-pending", Address: "ltc-addr", Currency: "ltc", AmountCrypto: 0.01, Confirmations: 1},
		},
	}}
	reconciler := &stubReconciler{}
	publisher := &stubPublisher{}

	monitor := NewPaymentMonitor(
		testLogger(),
		&stubBindings{bindings: []entities.PaymentBinding{binding}},
		gateway,
		&stubRecorder{},
		reconciler,
		publisher,
		time.Minute, 10*time.Minute, 4,
	)

	monitor.sweep(context.Background())

	require.Equal(t, []string{"tx-confirmed"}, reconciler.calls,
		"only observations at the confirmation threshold reach the reconciler")

	require.Len(t, publisher.events, 1)
	require.Equal(t, "seen", publisher.events[0].Type)
	require.Equal(t, "order-1", publisher.events[0].OrderID)

	// Second sweep replays the confirmed reference (idempotent downstream)
	// but does not re-announce the pending payment.
	monitor.sweep(context.Background())
	require.Len(t, publisher.events, 1, "a pending payment is announced once")
}

func TestSweepSurvivesGatewayOutage(t *testing.T) {
	binding := entities.PaymentBinding{
		ID: 1, Address: "btc-addr", Currency: "btc", OrderID: "order-2", ExpectedUSD: 5000,
	}
	gateway := &stubGateway{err: entities.ErrGatewayUnavailable}
	reconciler := &stubReconciler{}

	monitor := NewPaymentMonitor(
		testLogger(),
		&stubBindings{bindings: []entities.PaymentBinding{binding}},
		gateway,
		&stubRecorder{},
		reconciler,
		nil,
		time.Minute, 10*time.Minute, 4,
	)

	monitor.sweep(context.Background())
	require.Empty(t, reconciler.calls)
}

type stubExpirer struct {
	mu      sync.Mutex
	expired int64
}

func (s *stubExpirer) ExpireStale(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired++
	return 1, nil
}

type stubRetirer struct {
	mu      sync.Mutex
	retired int64
}

func (s *stubRetirer) RetireForTerminalOrders(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired++
	return 2, nil
}

func TestBindingReaperRunsBothCleanups(t *testing.T) {
	expirer := &stubExpirer{}
	retirer := &stubRetirer{}

	reaper := NewBindingReaper(testLogger(), expirer, retirer,
		24*time.Hour, 10*time.Minute, time.Minute)

	require.NoError(t, reaper.reap(context.Background()))
	require.Equal(t, int64(1), expirer.expired)
	require.Equal(t, int64(1), retirer.retired)
}
