package domain

// PoolQuote is the read-only result of pricing a prospective AMM trade.
// CostMicros is positive for buys (amount debited) and for sells it is the
// proceeds credited. A quote is never a promise: execution re-derives it
// against live state and fails with ErrStaleQuote when the fresh cost drifts
// beyond the configured tolerance.
type PoolQuote struct {
	PoolID             string
	OutcomeID          string
	DeltaSharesMicros  int64
	CostMicros         int64
	AvgPriceMicros     int64
	CurrentPriceMicros int64
	NewPriceMicros     int64
	PriceImpactMicros  int64
}
