package entities

import "time"

// Order statuses. Transitions are monotonic:
// CREATED -> AWAITING_PAYMENT -> PAYMENT_OBSERVED -> FULFILLED
// with INSUFFICIENT_CREDITED and EXPIRED as alternative terminal states.
const (
	OrderStatusCreated              = "CREATED"
	OrderStatusAwaitingPayment      = "AWAITING_PAYMENT"
	OrderStatusPaymentObserved      = "PAYMENT_OBSERVED"
	OrderStatusFulfilled            = "FULFILLED"
	OrderStatusInsufficientCredited = "INSUFFICIENT_CREDITED"
	OrderStatusExpired              = "EXPIRED"
)

// Payment methods.
const (
	PaymentMethodBalance      = "balance"
	PaymentMethodCryptoPrefix = "crypto:"
)

// Order represents one purchase attempt.
type Order struct {
	ID             string     `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	ServiceType    string     `db:"service_type" json:"service_type"`
	ServiceDetails []byte     `db:"service_details" json:"service_details"`
	AmountUSD      Cents      `db:"amount_usd" json:"amount_usd_cents"`
	PaymentMethod  string     `db:"payment_method" json:"payment_method"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderStatusFulfilled, OrderStatusInsufficientCredited, OrderStatusExpired:
		return true
	}
	return false
}
