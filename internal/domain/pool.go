package domain

import "time"

// PoolStatus represents the lifecycle state of an AMM pool.
type PoolStatus string

const (
	PoolStatusOpen     PoolStatus = "open"
	PoolStatusLocked   PoolStatus = "locked"
	PoolStatusResolved PoolStatus = "resolved"
)

// OutcomeKind classifies what a pool's outcomes represent.
type OutcomeKind string

const (
	OutcomeKindTeam   OutcomeKind = "team"
	OutcomeKindDriver OutcomeKind = "driver"
)

// Pool is one AMM market over a fixed, closed set of mutually exclusive
// outcomes (for example the season's constructors). The liquidity parameter b
// is chosen at creation and immutable thereafter.
type Pool struct {
	ID               string
	SeasonID         string
	Kind             OutcomeKind
	Status           PoolStatus
	LiquidityMicros  int64 // LMSR b, in micro-shares
	CollateralMicros int64 // total collateral held by the pool
	Outcomes         []Outcome
	WinnerOutcomeID  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ResolvedAt       *time.Time
}

// Outcome is one candidate in a pool. Shares outstanding are mutated only by
// AMM buys and sells and freeze once the pool resolves.
type Outcome struct {
	ID           string
	PoolID       string
	Participant  string
	SharesMicros int64
}

// Outcome returns the pool outcome with the given id, or false when the id
// does not belong to this pool.
func (p *Pool) Outcome(id string) (*Outcome, bool) {
	for i := range p.Outcomes {
		if p.Outcomes[i].ID == id {
			return &p.Outcomes[i], true
		}
	}
	return nil, false
}

// ShareVector returns the outstanding shares of every outcome in pool order.
func (p *Pool) ShareVector() []int64 {
	qs := make([]int64, len(p.Outcomes))
	for i, o := range p.Outcomes {
		qs[i] = o.SharesMicros
	}
	return qs
}
