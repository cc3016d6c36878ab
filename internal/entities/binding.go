package entities

import "time"

// PaymentBinding ties a gateway-issued receive-address to one order and the
// amount expected on it. At most one non-retired binding exists per address.
type PaymentBinding struct {
	ID          int64      `db:"id" json:"id"`
	Address     string     `db:"address" json:"address"`
	Currency    string     `db:"currency" json:"currency"`
	OrderID     string     `db:"order_id" json:"order_id"`
	ExpectedUSD Cents      `db:"expected_usd" json:"expected_usd_cents"`
	Retired     bool       `db:"retired" json:"retired"`
	RetiredAt   *time.Time `db:"retired_at" json:"retired_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// PaymentObservation is one confirmed receipt reported by the gateway for a
// bound address. GatewayReference is the dedup key: a reference is reconciled
// at most once.
type PaymentObservation struct {
	ID               int64     `db:"id" json:"id"`
	GatewayReference string    `db:"gateway_reference" json:"gateway_reference"`
	Address          string    `db:"address" json:"address"`
	Currency         string    `db:"currency" json:"currency"`
	AmountCrypto     float64   `db:"amount_crypto" json:"amount_crypto"`
	Confirmations    int64     `db:"confirmations" json:"confirmations"`
	ObservedAt       time.Time `db:"observed_at" json:"observed_at"`
}
