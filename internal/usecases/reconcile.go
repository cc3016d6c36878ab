package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tx "github.com/Thiht/transactor/pgx"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/metrics"
)

type ReconciliationsRepository interface {
	InsertDecision(ctx context.Context, d *entities.Decision) (bool, error)
	FindByReference(ctx context.Context, gatewayReference string) (*entities.Decision, error)
	FindLatestForOrder(ctx context.Context, orderID string) (*entities.Decision, error)
	SumReceivedForOrder(ctx context.Context, orderID string) (entities.Cents, error)
	SetFulfillmentError(ctx context.Context, gatewayReference, message string) error
}

// reconcilerOrders is the slice of the order store the engine mutates inside
// its transaction.
type reconcilerOrders interface {
	FindOrderForUpdate(ctx context.Context, orderID string) (*entities.Order, error)
	FindOrderByID(ctx context.Context, orderID string) (*entities.Order, error)
	UpdateStatusGuarded(ctx context.Context, orderID, to string, from ...string) (bool, error)
	MarkCompleted(ctx context.Context, orderID, to string, from ...string) (bool, error)
}

// reconcilerWallets is the slice of the wallet store the engine credits
// inside its transaction.
type reconcilerWallets interface {
	ApplyCredit(ctx context.Context, entry *entities.WalletEntry) (bool, error)
}

type observationsRecorder interface {
	UpsertObservation(ctx context.Context, obs *entities.PaymentObservation) (bool, error)
}

// transactionRunner is satisfied by *tx.Transactor.
type transactionRunner interface {
	WithinTransaction(ctx context.Context, txFunc func(txCtx context.Context) error) error
}

var _ transactionRunner = (*tx.Transactor)(nil)

// ReconciliationService classifies observed payments against order
// expectations and applies ledger effects. Decision, wallet credit, and
// order-state mutation for one gateway reference commit as a single
// transaction; partial application is the failure mode this engine exists to
// prevent.
type ReconciliationService struct {
	logger     *slog.Logger
	transactor transactionRunner

	rates        ports.RateConverter
	orders       reconcilerOrders
	wallets      reconcilerWallets
	decisions    ReconciliationsRepository
	observations observationsRecorder
	bindings     BindingsRepository
	gateway      ports.PaymentGateway
	fulfiller    ports.Fulfiller
	events       ports.EventPublisher
}

func NewReconciliationService(
	logger *slog.Logger,
	transactor transactionRunner,
	rates ports.RateConverter,
	orders reconcilerOrders,
	wallets reconcilerWallets,
	decisions ReconciliationsRepository,
	observations observationsRecorder,
	bindings BindingsRepository,
	gateway ports.PaymentGateway,
	fulfiller ports.Fulfiller,
	events ports.EventPublisher,
) *ReconciliationService {
	return &ReconciliationService{
		logger:       logger,
		transactor:   transactor,
		rates:        rates,
		orders:       orders,
		wallets:      wallets,
		decisions:    decisions,
		observations: observations,
		bindings:     bindings,
		gateway:      gateway,
		fulfiller:    fulfiller,
		events:       events,
	}
}

// Reconcile processes one confirmed observation for the order. Replaying a
// gateway reference returns the previously recorded decision unchanged.
func (rs *ReconciliationService) Reconcile(ctx context.Context, orderID string, obs entities.PaymentObservation) (*entities.Decision, error) {
	// Fast idempotency path, no conversion or transaction needed.
	if existing, err := rs.decisions.FindByReference(ctx, obs.GatewayReference); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	// Rate conversion is a read with its own timeout; it stays outside the
	// transaction. It never fails, only degrades to the fallback table.
	receivedUSD, rateSource := rs.rates.ToUSD(ctx, obs.Currency, obs.AmountCrypto)
	lowConfidence := rateSource == entities.RateSourceFallback

	var (
		decision  *entities.Decision
		order     *entities.Order
		doFulfill bool
	)

	err := rs.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error

		// Lock the order row so concurrent observations for the same order
		// classify against a consistent cumulative sum.
		order, err = rs.orders.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		// Re-check under the lock: a concurrent delivery of the same
		// reference may have won the race before we acquired it.
		existing, err := rs.decisions.FindByReference(ctx, obs.GatewayReference)
		if err != nil {
			return err
		}
		if existing != nil {
			decision = existing
			return nil
		}

		priorUSD, err := rs.decisions.SumReceivedForOrder(ctx, orderID)
		if err != nil {
			return err
		}

		decision = classify(order, &obs, priorUSD, receivedUSD, rateSource, lowConfidence)

		claimed, err := rs.decisions.InsertDecision(ctx, decision)
		if err != nil {
			return err
		}
		if !claimed {
			stored, err := rs.decisions.FindByReference(ctx, obs.GatewayReference)
			if err != nil {
				return err
			}
			decision = stored
			return nil
		}

		if decision.CreditedUSD > 0 {
			_, err = rs.wallets.ApplyCredit(ctx, &entities.WalletEntry{
				DedupKey:  obs.GatewayReference,
				UserID:    order.UserID,
				AmountUSD: decision.CreditedUSD,
				Reason:    creditReason(decision.Class, orderID),
			})
			if err != nil {
				return err
			}
		}

		doFulfill, err = rs.applyOrderState(ctx, order, decision)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ReconciliationsTotal.WithLabelValues(decision.Class).Inc()

	rs.logger.InfoContext(ctx, "Payment reconciled",
		"order_id", orderID,
		"gateway_reference", obs.GatewayReference,
		"class", decision.Class,
		"received", decision.ReceivedUSD.String(),
		"cumulative", decision.CumulativeUSD.String(),
		"shortfall", decision.ShortfallUSD.String(),
		"credited", decision.CreditedUSD.String(),
		"rate_source", decision.RateSource,
		"low_confidence", decision.LowConfidence)

	rs.publish(ports.PaymentEvent{
		Type:          "reconciled",
		OrderID:       orderID,
		Address:       obs.Address,
		Currency:      obs.Currency,
		AmountCrypto:  obs.AmountCrypto,
		Confirmations: obs.Confirmations,
		DecisionClass: decision.Class,
		At:            time.Now().UTC(),
	})

	if doFulfill {
		rs.dispatchFulfillment(ctx, order, decision)
	}

	return decision, nil
}

func creditReason(class, orderID string) string {
	switch class {
	case entities.DecisionOverpaid:
		return "overpayment excess for order " + orderID
	case entities.DecisionInsufficient:
		return "insufficient payment credited for order " + orderID
	}
	return "payment credit for order " + orderID
}

// classify applies the tolerance policy against the cumulative USD received
// for the order. Shortfall within ToleranceUSD is accepted as paid in full;
// beyond it the entire received amount is credited so no value is ever kept
// without a matching ledger entry.
func classify(order *entities.Order, obs *entities.PaymentObservation, priorUSD, receivedUSD entities.Cents, rateSource string, lowConfidence bool) *entities.Decision {
	cumulative := priorUSD + receivedUSD
	shortfall := order.AmountUSD - cumulative

	d := &entities.Decision{
		GatewayReference: obs.GatewayReference,
		OrderID:          order.ID,
		Address:          obs.Address,
		ReceivedUSD:      receivedUSD,
		CumulativeUSD:    cumulative,
		ShortfallUSD:     shortfall,
		RateSource:       rateSource,
		LowConfidence:    lowConfidence,
	}

	// Payments landing on a closed order are credited in full: the order
	// cannot be revived, but the value is never lost.
	if order.Terminal() {
		if cumulative >= order.AmountUSD {
			d.Class = entities.DecisionOverpaid
		} else {
			d.Class = entities.DecisionInsufficient
		}
		d.CreditedUSD = receivedUSD
		return d
	}

	switch {
	case cumulative == order.AmountUSD:
		d.Class = entities.DecisionPaidExact
	case cumulative > order.AmountUSD:
		d.Class = entities.DecisionOverpaid
		// Credit only the part of this payment above what was still owed.
		excess := cumulative - order.AmountUSD
		if excess > receivedUSD {
			excess = receivedUSD
		}
		d.CreditedUSD = excess
	case shortfall <= ports.ToleranceUSD:
		d.Class = entities.DecisionToleratedShortfall
	default:
		d.Class = entities.DecisionInsufficient
		d.CreditedUSD = receivedUSD
	}

	return d
}

// applyOrderState mutates the order inside the reconciliation transaction and
// reports whether fulfillment should be dispatched after commit.
func (rs *ReconciliationService) applyOrderState(ctx context.Context, order *entities.Order, decision *entities.Decision) (bool, error) {
	if order.Terminal() {
		return false, nil
	}

	if decision.Payable() {
		_, err := rs.orders.UpdateStatusGuarded(ctx, order.ID,
			entities.OrderStatusPaymentObserved,
			entities.OrderStatusCreated, entities.OrderStatusAwaitingPayment)
		if err != nil {
			return false, err
		}
		return true, nil
	}

	ok, err := rs.orders.MarkCompleted(ctx, order.ID,
		entities.OrderStatusInsufficientCredited,
		entities.OrderStatusCreated, entities.OrderStatusAwaitingPayment, entities.OrderStatusPaymentObserved)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: cannot mark order %s insufficient from %s",
			entities.ErrInvalidTransition, order.ID, order.Status)
	}

	return false, nil
}

// dispatchFulfillment runs after the reconciliation transaction committed.
// The payment is secured at this point: a provisioning failure is recorded on
// the decision for operator retry, never silently dropped.
func (rs *ReconciliationService) dispatchFulfillment(ctx context.Context, order *entities.Order, decision *entities.Decision) {
	if err := rs.fulfiller.Fulfill(ctx, order); err != nil {
		rs.logger.ErrorContext(ctx, "Fulfillment dispatch failed",
			"order_id", order.ID, "gateway_reference", decision.GatewayReference, "error", err)

		if recErr := rs.decisions.SetFulfillmentError(ctx, decision.GatewayReference, err.Error()); recErr != nil {
			rs.logger.ErrorContext(ctx, "Failed to record fulfillment error",
				"order_id", order.ID, "error", recErr)
		}
	}
}

// CheckOrder is the on-demand reconciliation entrypoint behind the "check my
// payment" storefront action: it polls the gateway once for the order's
// binding and reconciles any actionable observation found.
func (rs *ReconciliationService) CheckOrder(ctx context.Context, orderID string) (*entities.Decision, error) {
	binding, err := rs.bindings.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	observations, err := rs.gateway.GetObservations(ctx, binding.Currency, binding.Address)
	if err != nil {
		// Transient gateway failure: fall back to whatever was already
		// decided rather than surfacing an order failure.
		rs.logger.WarnContext(ctx, "On-demand gateway poll failed",
			"order_id", orderID, "address", binding.Address, "error", err)
		return rs.finishCheck(ctx, orderID)
	}

	threshold := ports.ConfirmationThreshold(binding.Currency)

	for i := range observations {
		obs := observations[i]

		firstSeen, err := rs.observations.UpsertObservation(ctx, &obs)
		if err != nil {
			rs.logger.ErrorContext(ctx, "Failed to record observation",
				"gateway_reference", obs.GatewayReference, "error", err)
			continue
		}

		if obs.Confirmations < threshold {
			if firstSeen {
				rs.publish(ports.PaymentEvent{
					Type:          "seen",
					OrderID:       orderID,
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

		if _, err = rs.Reconcile(ctx, orderID, obs); err != nil {
			return nil, err
		}
	}

	return rs.finishCheck(ctx, orderID)
}

// finishCheck returns the latest decision and, when the order is paid but a
// previous fulfillment dispatch failed, re-enters Fulfill. The per-order lock
// and the MarkFulfilled guard make the retry safe.
func (rs *ReconciliationService) finishCheck(ctx context.Context, orderID string) (*entities.Decision, error) {
	decision, err := rs.decisions.FindLatestForOrder(ctx, orderID)
	if err != nil || decision == nil || !decision.Payable() {
		return decision, err
	}

	order, err := rs.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == entities.OrderStatusPaymentObserved {
		rs.logger.InfoContext(ctx, "Retrying fulfillment for paid order",
			"order_id", orderID, "gateway_reference", decision.GatewayReference)
		rs.dispatchFulfillment(ctx, order, decision)
	}

	return decision, nil
}

// LatestDecision returns the most recent recorded decision for the order, or
// nil when nothing has been reconciled yet.
func (rs *ReconciliationService) LatestDecision(ctx context.Context, orderID string) (*entities.Decision, error) {
	return rs.decisions.FindLatestForOrder(ctx, orderID)
}

func (rs *ReconciliationService) publish(event ports.PaymentEvent) {
	if rs.events != nil {
		rs.events.Publish(event)
	}
}
