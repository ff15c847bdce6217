// Package domain defines the core entities of the outcome-market trading
// engine: pools, outcomes, markets, orders, positions, ledger accounts, and
// pending settlements, together with the store and cache interfaces that the
// service layer depends on.
package domain

import "math"

// Micros is the fixed-point scale for all money and share amounts. A price of
// $0.40 is 400_000 micros; one whole share is 1_000_000 micro-shares. Keeping
// amounts in int64 micros avoids cumulative float drift across thousands of
// trades; only the LMSR transcendental math runs in float64 and is quantized
// back at the boundary.
const Micros int64 = 1_000_000

// ToMicros converts a display amount to fixed-point micros, rounding half
// away from zero.
func ToMicros(v float64) int64 {
	return int64(math.Round(v * float64(Micros)))
}

// FromMicros converts fixed-point micros to a display float.
func FromMicros(m int64) float64 {
	return float64(m) / float64(Micros)
}
