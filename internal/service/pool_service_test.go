package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
)

func TestPoolService_QuoteUniformPricesAtCreation(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris", "leclerc", "hamilton")

	prices, err := f.poolSvc.Prices(context.Background(), pool.ID)
	require.NoError(t, err)
	require.Len(t, prices, 4)
	for _, p := range prices {
		assert.InDelta(t, 250_000, p, 2)
	}
}

func TestPoolService_BuyDebitsWalletAndGrowsCollateral(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)

	delta := int64(50 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)
	assert.Positive(t, q.CostMicros)
	assert.Greater(t, q.NewPriceMicros, q.CurrentPriceMicros)

	got, err := f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, q.CostMicros, "alice")
	require.NoError(t, err)
	assert.Equal(t, q.CostMicros, got.CostMicros)

	acct := f.account(t, "alice")
	assert.Equal(t, 100*domain.Micros-q.CostMicros, acct.AvailableMicros)

	updated, err := f.poolSvc.GetPool(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Equal(t, q.CostMicros, updated.CollateralMicros)
	assert.Equal(t, delta, updated.Outcomes[0].SharesMicros)

	pos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", PoolID: pool.ID, OutcomeID: outcome,
	})
	require.NoError(t, err)
	assert.Equal(t, delta, pos.SharesMicros)
	assert.Equal(t, q.AvgPriceMicros, pos.AvgPriceMicros)
}

func TestPoolService_SellRoundTripNeverProfits(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)

	delta := int64(40 * domain.Micros)
	buy, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, buy.CostMicros, "alice")
	require.NoError(t, err)

	sell, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, -delta)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, -delta, sell.CostMicros, "alice")
	require.NoError(t, err)

	assert.LessOrEqual(t, sell.CostMicros, buy.CostMicros)

	acct := f.account(t, "alice")
	assert.LessOrEqual(t, acct.AvailableMicros, 100*domain.Micros)

	pos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", PoolID: pool.ID, OutcomeID: outcome,
	})
	require.NoError(t, err)
	assert.Zero(t, pos.SharesMicros)

	updated, err := f.poolSvc.GetPool(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.CostMicros-sell.CostMicros, updated.CollateralMicros)
	assert.GreaterOrEqual(t, updated.CollateralMicros, int64(0))
}

func TestPoolService_TradeUnwindsWhenPositionWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)

	flaky := &flakyPositionStore{PositionStore: f.positions, failUpsert: true}
	svc := NewPoolService(f.pools, flaky, f.ledger, nil, nil, NewEntityLocks(), 0, testLogger())

	delta := int64(50 * domain.Micros)
	q, err := svc.Quote(ctx, pool.ID, outcome, delta)
	require.NoError(t, err)
	_, err = svc.Execute(ctx, pool.ID, outcome, delta, q.CostMicros, "alice")
	require.Error(t, err)

	// The debit and the pool mutation both unwound.
	assert.Equal(t, 100*domain.Micros, f.account(t, "alice").AvailableMicros)
	got, err := svc.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CollateralMicros)
	assert.Zero(t, got.Outcomes[0].SharesMicros)

	// The same trade clears once the store recovers.
	flaky.failUpsert = false
	_, err = svc.Execute(ctx, pool.ID, outcome, delta, q.CostMicros, "alice")
	require.NoError(t, err)
}

func TestPoolService_ExecuteRejectsStaleQuote(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)

	delta := int64(50 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)

	stale := q.CostMicros - 5*domain.Micros
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, stale, "alice")
	assert.ErrorIs(t, err, domain.ErrStaleQuote)

	// Nothing moved.
	acct := f.account(t, "alice")
	assert.Equal(t, 100*domain.Micros, acct.AvailableMicros)
}

func TestPoolService_ExecuteWithinTolerancePasses(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)

	delta := int64(10 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)

	// Half a cent off is within the default tolerance; the live cost is
	// still what gets charged.
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, q.CostMicros-5_000, "alice")
	require.NoError(t, err)

	acct := f.account(t, "alice")
	assert.Equal(t, 100*domain.Micros-q.CostMicros, acct.AvailableMicros)
}

func TestPoolService_BuyWithInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 1*domain.Micros)

	delta := int64(50 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)

	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, q.CostMicros, "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestPoolService_SellMoreThanHeld(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 100*domain.Micros)
	f.fund(t, "bob", 100*domain.Micros)

	// Bob seeds the pool so a sell quote clears the collateral bound.
	delta := int64(30 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, q.CostMicros, "bob")
	require.NoError(t, err)

	sellQ, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, -delta)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, -delta, sellQ.CostMicros, "alice")
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestPoolService_SellCappedByPoolCollateral(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")

	// A fresh pool holds no collateral, so any sell is rejected before the
	// share check even runs.
	_, err := f.poolSvc.Quote(context.Background(), pool.ID, pool.Outcomes[0].ID, -10*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestPoolService_TradeOnLockedPool(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")
	require.NoError(t, f.registrySvc.LockPool(context.Background(), pool.ID))

	_, err := f.poolSvc.Quote(context.Background(), pool.ID, pool.Outcomes[0].ID, 10*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrPoolNotOpen)
}

func TestPoolService_QuoteUnknownOutcome(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris")

	_, err := f.poolSvc.Quote(context.Background(), pool.ID, "no-such-outcome", 10*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestPoolService_BuyMovesPriceUpForBoughtOutcome(t *testing.T) {
	f := newFixture(t)
	pool := f.newPool(t, 100, "verstappen", "norris", "leclerc")
	outcome := pool.Outcomes[0].ID
	f.fund(t, "alice", 200*domain.Micros)

	delta := int64(60 * domain.Micros)
	q, err := f.poolSvc.Quote(context.Background(), pool.ID, outcome, delta)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(context.Background(), pool.ID, outcome, delta, q.CostMicros, "alice")
	require.NoError(t, err)

	prices, err := f.poolSvc.Prices(context.Background(), pool.ID)
	require.NoError(t, err)
	assert.Greater(t, prices[outcome], prices[pool.Outcomes[1].ID])

	var sum int64
	for _, p := range prices {
		sum += p
	}
	assert.InDelta(t, domain.Micros, sum, 5)
}
