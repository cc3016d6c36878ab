package workers

import (
	"context"
	"log/slog"
	"time"
)

// OrderExpirer closes orders that never saw a payment.
type OrderExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// BindingRetirer deactivates bindings whose orders are long closed.
type BindingRetirer interface {
	RetireForTerminalOrders(ctx context.Context, closedFor time.Duration) (int64, error)
}

// BindingReaper periodically expires unpaid orders and retires bindings that
// no longer need monitoring, keeping the monitor's poll set bounded.
type BindingReaper struct {
	logger   *slog.Logger
	orders   OrderExpirer
	bindings BindingRetirer

	bindingTTL   time.Duration
	retiredGrace time.Duration
	interval     time.Duration
}

func NewBindingReaper(
	logger *slog.Logger,
	orders OrderExpirer,
	bindings BindingRetirer,
	bindingTTL, retiredGrace, interval time.Duration,
) *BindingReaper {
	return &BindingReaper{
		logger:       logger,
		orders:       orders,
		bindings:     bindings,
		bindingTTL:   bindingTTL,
		retiredGrace: retiredGrace,
		interval:     interval,
	}
}

// Start begins the periodic cleanup loop.
func (br *BindingReaper) Start(ctx context.Context) {
	br.logger.Info("Starting binding reaper",
		"binding_ttl", br.bindingTTL.String(),
		"interval", br.interval.String())

	if err := br.reap(ctx); err != nil {
		br.logger.Error("Initial reap failed", "error", err)
	}

	ticker := time.NewTicker(br.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			br.logger.Info("Binding reaper stopped")
			return
		case <-ticker.C:
			if err := br.reap(ctx); err != nil {
				br.logger.Error("Reap failed", "error", err)
			}
		}
	}
}

func (br *BindingReaper) reap(ctx context.Context) error {
	expired, err := br.orders.ExpireStale(ctx, br.bindingTTL)
	if err != nil {
		return err
	}

	if expired > 0 {
		br.logger.Info("Expired unpaid orders", "count", expired, "older_than", br.bindingTTL.String())
	}

	retired, err := br.bindings.RetireForTerminalOrders(ctx, br.retiredGrace)
	if err != nil {
		return err
	}

	if retired > 0 {
		br.logger.Info("Retired bindings for closed orders", "count", retired)
	}

	return nil
}
