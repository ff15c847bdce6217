package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
)

func TestLedgerService_DepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.ledgerSvc.Deposit(ctx, "alice", 25*domain.Micros)
	require.NoError(t, err)
	assert.Equal(t, 25*domain.Micros, acct.AvailableMicros)

	acct, err = f.ledgerSvc.Withdraw(ctx, "alice", 10*domain.Micros)
	require.NoError(t, err)
	assert.Equal(t, 15*domain.Micros, acct.AvailableMicros)

	_, err = f.ledgerSvc.Withdraw(ctx, "alice", 100*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = f.ledgerSvc.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = f.ledgerSvc.Withdraw(ctx, "alice", -5)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestLedgerService_UnknownWalletReadsZero(t *testing.T) {
	f := newFixture(t)

	acct, err := f.ledgerSvc.Account(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", acct.Wallet)
	assert.Zero(t, acct.AvailableMicros)
	assert.Zero(t, acct.LockedMicros)
}

func TestLedgerService_LockedFundsNotWithdrawable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	market := f.newMarket(t, "verstappen")

	_, err := f.ledgerSvc.Deposit(ctx, "alice", 10*domain.Micros)
	require.NoError(t, err)

	_, _, err = f.orderSvc.ApplyBuy(ctx, PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.70), Quantity: 10,
	})
	require.NoError(t, err)

	_, err = f.ledgerSvc.Withdraw(ctx, "alice", 5*domain.Micros)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	acct, err := f.ledgerSvc.Withdraw(ctx, "alice", 3*domain.Micros)
	require.NoError(t, err)
	assert.Zero(t, acct.AvailableMicros)
	assert.Equal(t, 7*domain.Micros, acct.LockedMicros)
}

func TestLedgerService_PositionsAcrossPoolsAndMarkets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.newPool(t, 100, "verstappen", "norris")
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 50*domain.Micros)
	f.fund(t, "bob", 50*domain.Micros)

	q, err := f.poolSvc.Quote(ctx, pool.ID, pool.Outcomes[0].ID, 10*domain.Micros)
	require.NoError(t, err)
	_, err = f.poolSvc.Execute(ctx, pool.ID, pool.Outcomes[0].ID, 10*domain.Micros, q.CostMicros, "alice")
	require.NoError(t, err)

	mintPairs(t, f, market.ID)

	positions, err := f.ledgerSvc.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	var poolPos, marketPos int
	for _, p := range positions {
		if p.PoolID != "" {
			poolPos++
		}
		if p.MarketID != "" {
			marketPos++
		}
	}
	assert.Equal(t, 1, poolPos)
	assert.Equal(t, 1, marketPos)
}
