package amm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
)

func TestNew_RejectsNonPositiveLiquidity(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)

	_, err = New(-5 * domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidity)
}

func TestPrices_UniformAtZeroShares(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	prices := mm.Prices([]int64{0, 0})
	assert.Equal(t, int64(500_000), prices[0])
	assert.Equal(t, int64(500_000), prices[1])
}

func TestPrices_SumToOneAndStayInRange(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	vectors := [][]int64{
		{0, 0, 0, 0},
		{50 * domain.Micros, 0, 0, 0},
		{500 * domain.Micros, 250 * domain.Micros, 7 * domain.Micros, 0},
		{1, 2, 3, 4},
	}
	for _, qs := range vectors {
		prices := mm.Prices(qs)
		var sum int64
		for _, p := range prices {
			assert.Greater(t, p, int64(0))
			assert.Less(t, p, domain.Micros)
			sum += p
		}
		assert.InDelta(t, domain.Micros, sum, 10, "prices must sum to ~1 for %v", qs)
	}
}

func TestQuote_TwoOutcomeBuy(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	q, err := mm.Quote([]int64{0, 0}, 0, 50*domain.Micros)
	require.NoError(t, err)

	// C(50,0) - C(0,0) = 100 * ln((e^0.5 + 1) / 2)
	want := 100 * math.Log((math.Exp(0.5)+1)/2)
	assert.InDelta(t, want, domain.FromMicros(q.CostMicros), 1e-4)
	assert.Equal(t, int64(500_000), q.CurrentPriceMicros)
	assert.Greater(t, q.NewPriceMicros, int64(500_000))
	assert.Greater(t, q.PriceImpactMicros, int64(0))
	assert.InDelta(t, domain.FromMicros(q.CostMicros)/50, domain.FromMicros(q.AvgPriceMicros), 1e-4)
}

func TestQuote_CostStrictlyIncreasingInSize(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	qs := []int64{30 * domain.Micros, 10 * domain.Micros, 0}
	var prev int64
	for _, shares := range []int64{1, 5, 20, 80, 320} {
		q, err := mm.Quote(qs, 0, shares*domain.Micros)
		require.NoError(t, err)
		assert.Greater(t, q.CostMicros, prev)
		prev = q.CostMicros
	}
}

func TestQuote_RoundTripNeverCreatesValue(t *testing.T) {
	mm, err := New(250 * domain.Micros)
	require.NoError(t, err)

	qs := []int64{12 * domain.Micros, 90 * domain.Micros, 3 * domain.Micros}

	buy, err := mm.Quote(qs, 1, 40*domain.Micros)
	require.NoError(t, err)

	after := append([]int64(nil), qs...)
	after[1] += 40 * domain.Micros

	sell, err := mm.Quote(after, 1, -40*domain.Micros)
	require.NoError(t, err)

	assert.LessOrEqual(t, sell.CostMicros, buy.CostMicros)
}

func TestQuote_SellBelowZeroSharesRejected(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	_, err = mm.Quote([]int64{10 * domain.Micros, 0}, 0, -11*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestQuote_ZeroDeltaAndBadIndexRejected(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	_, err = mm.Quote([]int64{0, 0}, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = mm.Quote([]int64{0, 0}, 2, domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestQuote_StableForLargeShareVectors(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)

	// Naive exp(q/b) would overflow well before q = 1e5 * b.
	huge := []int64{10_000_000 * domain.Micros, 9_999_900 * domain.Micros}
	prices := mm.Prices(huge)
	for _, p := range prices {
		assert.Greater(t, p, int64(0))
		assert.Less(t, p, domain.Micros)
	}

	q, err := mm.Quote(huge, 0, 10*domain.Micros)
	require.NoError(t, err)
	assert.Greater(t, q.CostMicros, int64(0))
	assert.False(t, math.IsNaN(domain.FromMicros(q.CostMicros)))
}

func TestMaxLoss(t *testing.T) {
	mm, err := New(100 * domain.Micros)
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Log(2), domain.FromMicros(mm.MaxLoss(2)), 1e-6)
}
