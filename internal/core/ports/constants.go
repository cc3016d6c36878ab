package ports

import (
	"strings"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
)

const (
	// ToleranceUSD is the fixed shortfall still treated as full payment.
	// Crypto fee volatility and FX slippage make exact-cent matching
	// unrealistic; a shortfall within this bound is accepted as paid.
	ToleranceUSD = entities.Cents(200)

	MaxConcurrentChecks  = 100 // Upper bound on concurrent confirmation checks
	DefaultConfirmations = int64(1)
)

// confirmationThresholds is per-currency: slower-finality chains need more
// confirmations before an observation is actionable.
var confirmationThresholds = map[string]int64{
	"btc":        1,
	"eth":        12,
	"ltc":        6,
	"doge":       20,
	"trx":        6,
	"bch":        6,
	"usdt_erc20": 12,
	"usdt_trc20": 6,
}

// ConfirmationThreshold returns the number of confirmations required before
// an observation on the given currency may be reconciled.
func ConfirmationThreshold(currency string) int64 {
	if n, ok := confirmationThresholds[strings.ToLower(currency)]; ok {
		return n
	}
	return DefaultConfirmations
}
