package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/metrics"
)

// BindingSource lists the bindings the monitor should poll.
type BindingSource interface {
	ActiveBindings(ctx context.Context, retiredGrace time.Duration) ([]entities.PaymentBinding, error)
}

// ObservationRecorder persists gateway sightings; the bool reports first-seen.
type ObservationRecorder interface {
	UpsertObservation(ctx context.Context, obs *entities.PaymentObservation) (bool, error)
}

// PaymentMonitor polls the gateway per active binding and hands confirmed
// observations to the reconciler. Polling is per-address: one slow or failing
// address never blocks the others.
type PaymentMonitor struct {
	logger *slog.Logger

	bindings     BindingSource
	gateway      ports.PaymentGateway
	observations ObservationRecorder
	reconciler   ports.Reconciler
	events       ports.EventPublisher

	pollInterval time.Duration
	retiredGrace time.Duration
	sem          chan struct{}
}

func NewPaymentMonitor(
	logger *slog.Logger,
	bindings BindingSource,
	gateway ports.PaymentGateway,
	observations ObservationRecorder,
	reconciler ports.Reconciler,
	events ports.EventPublisher,
	pollInterval, retiredGrace time.Duration,
	maxConcurrent int,
) *PaymentMonitor {
	if maxConcurrent <= 0 {
		maxConcurrent = ports.MaxConcurrentChecks
	}

	return &PaymentMonitor{
		logger:       logger,
		bindings:     bindings,
		gateway:      gateway,
		observations: observations,
		reconciler:   reconciler,
		events:       events,
		pollInterval: pollInterval,
		retiredGrace: retiredGrace,
		sem:          make(chan struct{}, maxConcurrent),
	}
}

// Start runs the monitoring loop until the context is cancelled. A sweep that
// fails to list bindings is retried on the next tick; individual address
// polls run concurrently under the semaphore.
func (pm *PaymentMonitor) Start(ctx context.Context) {
	pm.logger.Info("Starting payment monitor",
		"poll_interval", pm.pollInterval.String(),
		"retired_grace", pm.retiredGrace.String())

	pm.sweep(ctx)

	ticker := time.NewTicker(pm.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pm.logger.Info("Payment monitor stopped")
			return
		case <-ticker.C:
			pm.sweep(ctx)
		}
	}
}

func (pm *PaymentMonitor) sweep(ctx context.Context) {
	bindings, err := pm.bindings.ActiveBindings(ctx, pm.retiredGrace)
	if err != nil {
		pm.logger.ErrorContext(ctx, "Failed to list active bindings", "error", err)
		return
	}

	metrics.ActiveBindings.Set(float64(len(bindings)))

	if len(bindings) == 0 {
		pm.logger.Debug("No active bindings to poll")
		return
	}

	pm.logger.DebugContext(ctx, "Polling active bindings", "count", len(bindings))

	var wg sync.WaitGroup
	for i := range bindings {
		binding := bindings[i]

		select {
		case pm.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-pm.sem }()
			pm.pollBinding(ctx, binding)
		}()
	}

	wg.Wait()
}

func (pm *PaymentMonitor) pollBinding(ctx context.Context, binding entities.PaymentBinding) {
	observations, err := pm.gateway.GetObservations(ctx, binding.Currency, binding.Address)
	if err != nil {
		metrics.GatewayPollErrors.Inc()
		pm.logger.WarnContext(ctx, "Gateway poll failed, will retry next sweep",
			"address", binding.Address, "currency", binding.Currency, "error", err)
		return
	}

	threshold := ports.ConfirmationThreshold(binding.Currency)

	for i := range observations {
		obs := observations[i]

		firstSeen, err := pm.observations.UpsertObservation(ctx, &obs)
		if err != nil {
			pm.logger.ErrorContext(ctx, "Failed to record observation",
				"gateway_reference", obs.GatewayReference, "address", obs.Address, "error", err)
			continue
		}

		metrics.ObservationsSeen.Inc()

		if obs.Confirmations < threshold {
			if firstSeen {
				pm.logger.InfoContext(ctx, "Payment seen, awaiting confirmations",
					"order_id", binding.OrderID,
					"address", obs.Address,
					"gateway_reference", obs.GatewayReference,
					"confirmations", obs.Confirmations,
					"required", threshold)

				pm.publish(ports.PaymentEvent{
					Type:          "seen",
					OrderID:       binding.OrderID,
					Address:       obs.Address,
					Currency:      obs.Currency,
					AmountCrypto:  obs.AmountCrypto,
					Confirmations: obs.Confirmations,
					Required:      threshold,
					At:            time.Now().UTC(),
				})
			}
			continue
		}

		// Reconcile is idempotent per gateway reference, so handing the same
		// confirmed observation over on every sweep is safe.
		if _, err = pm.reconciler.Reconcile(ctx, binding.OrderID, obs); err != nil {
			pm.logger.ErrorContext(ctx, "Reconciliation failed, will retry next sweep",
				"order_id", binding.OrderID,
				"gateway_reference", obs.GatewayReference,
				"error", err)
		}
	}
}

func (pm *PaymentMonitor) publish(event ports.PaymentEvent) {
	if pm.events != nil {
		pm.events.Publish(event)
	}
}
