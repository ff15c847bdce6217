package domain

import "time"

// PositionKey identifies a per-user share holding. Exactly one of OutcomeID
// (pool positions) or MarketID+Outcome (order-book positions) is set.
type PositionKey struct {
	Wallet    string
	PoolID    string
	OutcomeID string
	MarketID  string
	Outcome   OrderOutcome
}

// Position is a per-user share holding plus cost basis. Created on first
// trade, mutated on every subsequent trade, never deleted; zero-share
// positions are valid and inert.
type Position struct {
	ID             string
	Wallet         string
	PoolID         string       // empty for order-book positions
	OutcomeID      string       // empty for order-book positions
	MarketID       string       // empty for pool positions
	Outcome        OrderOutcome // empty for pool positions
	SharesMicros   int64
	ReservedMicros int64 // shares pledged to resting sell orders
	AvgPriceMicros int64 // shares-weighted average entry price
	RealizedMicros int64 // realized P&L, running total
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the identifying key for this position.
func (p Position) Key() PositionKey {
	return PositionKey{
		Wallet:    p.Wallet,
		PoolID:    p.PoolID,
		OutcomeID: p.OutcomeID,
		MarketID:  p.MarketID,
		Outcome:   p.Outcome,
	}
}

// SellableMicros is the share balance not pledged to a resting sell order.
// Placing a sell reserves its full quantity, so the same shares cannot back
// two orders at once.
func (p Position) SellableMicros() int64 {
	return p.SharesMicros - p.ReservedMicros
}

// ApplyBuy folds newly acquired shares into the position, moving the average
// price by shares-weighted blending.
func (p *Position) ApplyBuy(sharesMicros, priceMicros int64) {
	total := p.SharesMicros + sharesMicros
	if total > 0 {
		// newAvg = (old*oldAvg + delta*execPrice) / (old + delta)
		p.AvgPriceMicros = int64(
			(float64(p.SharesMicros)*float64(p.AvgPriceMicros) +
				float64(sharesMicros)*float64(priceMicros)) / float64(total))
	}
	p.SharesMicros = total
}

// ApplySell removes shares at the given execution price, realizing P&L
// proportionally against the existing average without changing it.
func (p *Position) ApplySell(sharesMicros, priceMicros int64) {
	p.SharesMicros -= sharesMicros
	pnl := float64(sharesMicros) / float64(Micros) * float64(priceMicros-p.AvgPriceMicros)
	p.RealizedMicros += int64(pnl)
}

// Account is a user's cash balance. Locked funds back resting buy orders and
// are released on cancellation or consumed by fills.
type Account struct {
	Wallet          string
	AvailableMicros int64
	LockedMicros    int64
	UpdatedAt       time.Time
}
