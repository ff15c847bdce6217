// Package book implements price-time-priority matching for binary YES/NO
// markets. A buy of one outcome can cross either a sell of the same outcome
// (transferring existing shares) or a buy of the complementary outcome
// (minting a new YES+NO pair, since the pair always settles for exactly $1).
// The package is pure matching logic: collateral movement and persistence are
// the caller's concern.
package book

import (
	"sort"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Match is one crossing between an incoming (taker) order and a resting
// (maker) order. PriceMicros is the execution price in the taker outcome's
// terms; the resting order's price always wins.
type Match struct {
	Maker       *domain.Order
	PriceMicros int64
	Quantity    int64
	Minted      bool
}

// candidate pairs a resting order with the price the taker would effectively
// pay or receive against it.
type candidate struct {
	order     *domain.Order
	effective int64
	minted    bool
}

// MatchIncoming crosses the incoming order against the resting set, mutating
// Filled and Status on both sides. Resting orders must belong to the same
// market and be non-terminal; order within the slice is irrelevant, priority
// is recomputed here. Orders past their deadline are marked expired and
// skipped (lazy expiry).
func MatchIncoming(incoming *domain.Order, resting []*domain.Order, now time.Time) []Match {
	var matches []Match

	for incoming.Remaining() > 0 {
		cands := eligible(incoming, resting, now)
		if len(cands) == 0 {
			break
		}

		best := pick(incoming.Side, cands)
		maker := best.order

		qty := incoming.Remaining()
		if r := maker.Remaining(); r < qty {
			qty = r
		}

		incoming.Filled += qty
		maker.Filled += qty
		maker.Status = fillStatus(maker)
		maker.UpdatedAt = now

		matches = append(matches, Match{
			Maker:       maker,
			PriceMicros: best.effective,
			Quantity:    qty,
			Minted:      best.minted,
		})
	}

	incoming.Status = fillStatus(incoming)
	incoming.UpdatedAt = now
	return matches
}

// eligible returns every resting order the incoming order can cross right now.
func eligible(incoming *domain.Order, resting []*domain.Order, now time.Time) []candidate {
	var cands []candidate
	for _, r := range resting {
		if r.Terminal() || r.ID == incoming.ID {
			continue
		}
		if r.ExpiredAt(now) {
			r.Status = domain.OrderStatusExpired
			r.UpdatedAt = now
			continue
		}

		switch {
		case incoming.Side == domain.OrderSideBuy && r.Side == domain.OrderSideSell && r.Outcome == incoming.Outcome:
			// Share transfer at the resting ask.
			if r.PriceMicros <= incoming.PriceMicros {
				cands = append(cands, candidate{order: r, effective: r.PriceMicros})
			}
		case incoming.Side == domain.OrderSideBuy && r.Side == domain.OrderSideBuy && r.Outcome == incoming.Outcome.Opposite():
			// Pair mint when the two buys jointly cover the $1 pair cost.
			// The taker pays the complement of the resting bid.
			if incoming.PriceMicros+r.PriceMicros >= domain.Micros {
				cands = append(cands, candidate{order: r, effective: domain.Micros - r.PriceMicros, minted: true})
			}
		case incoming.Side == domain.OrderSideSell && r.Side == domain.OrderSideBuy && r.Outcome == incoming.Outcome:
			// Share transfer at the resting bid.
			if r.PriceMicros >= incoming.PriceMicros {
				cands = append(cands, candidate{order: r, effective: r.PriceMicros})
			}
		}
	}
	return cands
}

// pick selects the best candidate: lowest effective price for a taker buy,
// highest proceeds for a taker sell, earlier creation time breaking ties.
func pick(takerSide domain.OrderSide, cands []candidate) candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.effective != b.effective {
			if takerSide == domain.OrderSideBuy {
				return a.effective < b.effective
			}
			return a.effective > b.effective
		}
		return a.order.CreatedAt.Before(b.order.CreatedAt)
	})
	return cands[0]
}

// fillStatus derives order status from fill progress.
func fillStatus(o *domain.Order) domain.OrderStatus {
	switch {
	case o.Filled >= o.Quantity:
		return domain.OrderStatusFilled
	case o.Filled > 0:
		return domain.OrderStatusPartial
	default:
		return domain.OrderStatusOpen
	}
}
