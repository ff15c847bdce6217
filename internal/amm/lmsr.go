// Package amm implements the logarithmic market scoring rule (LMSR) used to
// price shares in multi-outcome pools. Price of outcome i given outstanding
// shares q is exp(q_i/b) / sum_j exp(q_j/b); cost to reach state q from zero
// is C(q) = b * ln(sum_j exp(q_j/b)). The price of an outcome equals its
// implied probability, and prices always sum to one.
package amm

import (
	"math"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// MarketMaker prices one pool. The liquidity parameter b controls how much a
// given trade size moves the price; it is fixed at pool creation.
type MarketMaker struct {
	b float64 // liquidity in whole shares
}

// New creates a MarketMaker from a liquidity parameter in micro-shares.
func New(liquidityMicros int64) (*MarketMaker, error) {
	if liquidityMicros <= 0 {
		return nil, domain.ErrInvalidLiquidity
	}
	return &MarketMaker{b: domain.FromMicros(liquidityMicros)}, nil
}

// B returns the liquidity parameter in whole shares.
func (m *MarketMaker) B() float64 { return m.b }

// cost evaluates C(q) = b * ln(sum exp(q_i/b)) with the log-sum-exp shift so
// large share vectors do not overflow exp.
func (m *MarketMaker) cost(q []float64) float64 {
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	var sum float64
	for _, v := range q {
		sum += math.Exp((v - maxQ) / m.b)
	}
	return maxQ + m.b*math.Log(sum)
}

// price evaluates the softmax price of outcome idx.
func (m *MarketMaker) price(q []float64, idx int) float64 {
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	var sum float64
	for _, v := range q {
		sum += math.Exp((v - maxQ) / m.b)
	}
	return math.Exp((q[idx]-maxQ)/m.b) / sum
}

// Prices returns the current price of every outcome in micros.
func (m *MarketMaker) Prices(sharesMicros []int64) []int64 {
	q := toShares(sharesMicros)
	out := make([]int64, len(q))
	for i := range q {
		out[i] = domain.ToMicros(m.price(q, i))
	}
	return out
}

// Quote prices a prospective trade of deltaMicros micro-shares of outcome idx
// against the share vector. A positive delta is a buy and CostMicros is the
// amount debited; a negative delta is a sell and CostMicros is the proceeds
// credited. A sell that would drive the outcome's outstanding shares negative
// is rejected.
func (m *MarketMaker) Quote(sharesMicros []int64, idx int, deltaMicros int64) (domain.PoolQuote, error) {
	if idx < 0 || idx >= len(sharesMicros) {
		return domain.PoolQuote{}, domain.ErrInvalidOutcome
	}
	if deltaMicros == 0 {
		return domain.PoolQuote{}, domain.ErrInvalidQuantity
	}
	if sharesMicros[idx]+deltaMicros < 0 {
		return domain.PoolQuote{}, domain.ErrInsufficientShares
	}

	q := toShares(sharesMicros)
	before := m.cost(q)
	currentPrice := m.price(q, idx)

	q[idx] += domain.FromMicros(deltaMicros)
	after := m.cost(q)
	newPrice := m.price(q, idx)

	// Buys: cost = C(q') - C(q) >= 0. Sells: proceeds = C(q) - C(q') >= 0.
	// Either way the quoted amount is the absolute cost delta.
	cost := after - before
	if deltaMicros < 0 {
		cost = -cost
	}
	if cost < 0 {
		cost = 0
	}

	// Quantize against the trader: buy costs round up, sell proceeds round
	// down. An immediate round trip therefore never returns more than it
	// cost; equality holds only in the frictionless real-valued model.
	var costMicros int64
	if deltaMicros > 0 {
		costMicros = int64(math.Ceil(cost * float64(domain.Micros)))
	} else {
		costMicros = int64(math.Floor(cost * float64(domain.Micros)))
	}

	avg := cost / math.Abs(domain.FromMicros(deltaMicros))

	return domain.PoolQuote{
		DeltaSharesMicros:  deltaMicros,
		CostMicros:         costMicros,
		AvgPriceMicros:     domain.ToMicros(avg),
		CurrentPriceMicros: domain.ToMicros(currentPrice),
		NewPriceMicros:     domain.ToMicros(newPrice),
		PriceImpactMicros:  domain.ToMicros(newPrice - currentPrice),
	}, nil
}

// MaxLoss returns the market maker's worst-case subsidy, b * ln(n), in micros.
func (m *MarketMaker) MaxLoss(outcomes int) int64 {
	return domain.ToMicros(m.b * math.Log(float64(outcomes)))
}

func toShares(micros []int64) []float64 {
	out := make([]float64, len(micros))
	for i, v := range micros {
		out[i] = domain.FromMicros(v)
	}
	return out
}
