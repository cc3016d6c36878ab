package entities

import (
	"fmt"
	"math"
)

// Cents is a USD amount in whole cents. All reconciliation arithmetic is done
// in cents so tolerance boundaries are exact.
type Cents int64

// CentsFromUSD converts a float dollar amount to cents, rounding half away
// from zero.
func CentsFromUSD(usd float64) Cents {
	return Cents(math.Round(usd * 100))
}

// USD returns the amount as a float dollar value.
func (c Cents) USD() float64 {
	return float64(c) / 100
}

func (c Cents) String() string {
	if c < 0 {
		return fmt.Sprintf("-$%d.%02d", -c/100, -c%100)
	}
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
