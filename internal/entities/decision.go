package entities

import "time"

// Reconciliation decision classes.
const (
	DecisionPaidExact          = "paid_exact"
	DecisionOverpaid           = "overpaid"
	DecisionToleratedShortfall = "tolerated_shortfall"
	DecisionInsufficient       = "insufficient"
)

// Decision is the recorded outcome of reconciling one gateway reference
// against an order. Replaying the same reference returns the stored decision
// unchanged.
type Decision struct {
	GatewayReference string    `db:"gateway_reference" json:"gateway_reference"`
	OrderID          string    `db:"order_id" json:"order_id"`
	Address          string    `db:"address" json:"address"`
	Class            string    `db:"class" json:"class"`
	ReceivedUSD      Cents     `db:"received_usd" json:"received_usd_cents"`
	CumulativeUSD    Cents     `db:"cumulative_usd" json:"cumulative_usd_cents"`
	ShortfallUSD     Cents     `db:"shortfall_usd" json:"shortfall_usd_cents"`
	CreditedUSD      Cents     `db:"credited_usd" json:"credited_usd_cents"`
	RateSource       string    `db:"rate_source" json:"rate_source"`
	LowConfidence    bool      `db:"low_confidence" json:"low_confidence"`
	FulfillmentError *string   `db:"fulfillment_error" json:"fulfillment_error,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Payable reports whether the decision authorizes fulfillment.
func (d *Decision) Payable() bool {
	switch d.Class {
	case DecisionPaidExact, DecisionOverpaid, DecisionToleratedShortfall:
		return true
	}
	return false
}

// ConversionQuote is an ephemeral USD rate for one cryptocurrency.
type ConversionQuote struct {
	Currency  string    `json:"currency"`
	USDRate   float64   `json:"usd_rate"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"` // "live" or "fallback"
}

// Quote sources.
const (
	RateSourceLive     = "live"
	RateSourceFallback = "fallback"
)
