package domain

import "time"

// MarketStatus represents the lifecycle state of an order-book market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusLocked   MarketStatus = "locked"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is one binary YES/NO contract tied to a participant. One outstanding
// pair is one YES share plus one NO share, jointly redeemable for $1 at
// resolution.
type Market struct {
	ID                     string
	SeasonID               string
	Participant            string
	Question               string
	Status                 MarketStatus
	LastPriceMicros        *int64 // YES price of the most recent fill
	OutstandingPairs       int64
	LockedCollateralMicros int64 // sum of all resting buys' reserved funds
	WinningOutcome         *OrderOutcome
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ResolvedAt             *time.Time
}
