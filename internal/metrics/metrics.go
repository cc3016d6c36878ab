package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveBindings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_active_bindings",
		Help: "Number of payment bindings currently monitored.",
	})

	ObservationsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_observations_seen_total",
		Help: "Payment observations reported by the gateway, including unconfirmed ones.",
	})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_reconciliations_total",
		Help: "Reconciliation decisions by class.",
	}, []string{"class"})

	FallbackRateUses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_fallback_rate_uses_total",
		Help: "Conversions that fell back to the static rate table.",
	})

	FulfillmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_fulfillments_total",
		Help: "Orders successfully provisioned.",
	})

	FulfillmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_fulfillment_failures_total",
		Help: "Provisioning attempts that failed and await operator retry.",
	})

	GatewayPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_gateway_poll_errors_total",
		Help: "Gateway polling calls that failed.",
	})
)
