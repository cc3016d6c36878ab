package entities

import "errors"

var (
	// ErrValidation is returned for bad caller input; no state was changed.
	ErrValidation = errors.New("validation failed")

	// ErrGatewayUnavailable is a transient payment gateway failure; the
	// caller may retry, no state was changed.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInsufficientFunds is returned when a wallet debit exceeds the
	// balance; the balance is untouched.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrAlreadyFulfilled marks an idempotent success: the order was
	// fulfilled earlier and nothing was provisioned again.
	ErrAlreadyFulfilled = errors.New("order already fulfilled")

	// ErrInvalidTransition indicates a logic error: an order state change
	// that the lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid order state transition")

	ErrOrderNotFound   = errors.New("order not found")
	ErrBindingNotFound = errors.New("payment binding not found")
)
