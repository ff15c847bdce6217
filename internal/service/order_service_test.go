package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
)

func TestOrderService_DirectBuyRequiresSettlement(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 100*domain.Micros)

	_, _, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID:    market.ID,
		Wallet:      "alice",
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideBuy,
		PriceMicros: domain.ToMicros(0.50),
		Quantity:    10,
	})
	assert.ErrorIs(t, err, domain.ErrSignatureRequired)
}

func TestOrderService_SellWithoutSharesRejected(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")

	_, _, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID:    market.ID,
		Wallet:      "alice",
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideSell,
		PriceMicros: domain.ToMicros(0.50),
		Quantity:    10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestOrderService_ValidationBounds(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")

	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.005), Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, _, err = f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.50), Quantity: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, _, err = f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: "maybe",
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.50), Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestOrderService_RestingBuyLocksCollateral(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)

	order, fills, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID:    market.ID,
		Wallet:      "alice",
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideBuy,
		PriceMicros: domain.ToMicros(0.60),
		Quantity:    10,
	})
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, domain.OrderStatusOpen, order.Status)

	acct := f.account(t, "alice")
	assert.Equal(t, 4*domain.Micros, acct.AvailableMicros)
	assert.Equal(t, 6*domain.Micros, acct.LockedMicros)

	got, err := f.registrySvc.GetMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Equal(t, 6*domain.Micros, got.LockedCollateralMicros)
}

func TestOrderService_PairMintMovesBothSides(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)

	// Alice rests a YES bid at 0.60.
	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	// Bob's NO bid at 0.45 crosses (0.60 + 0.45 >= 1): 10 pairs mint and bob
	// pays the complement of alice's resting bid, 0.40.
	order, fills, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "bob", Outcome: domain.OutcomeNo,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.45), Quantity: 10,
	})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Minted)
	assert.Equal(t, domain.ToMicros(0.40), fills[0].PriceMicros)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)

	alice := f.account(t, "alice")
	assert.Equal(t, 4*domain.Micros, alice.AvailableMicros)
	assert.Zero(t, alice.LockedMicros)

	bob := f.account(t, "bob")
	assert.Equal(t, 6*domain.Micros, bob.AvailableMicros)
	assert.Zero(t, bob.LockedMicros)

	got, err := f.registrySvc.GetMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.OutstandingPairs)
	assert.Zero(t, got.LockedCollateralMicros)
	require.NotNil(t, got.LastPriceMicros)
	// Last trade in YES terms: bob paid 0.40 for NO, so YES printed 0.60.
	assert.Equal(t, domain.ToMicros(0.60), *got.LastPriceMicros)

	// Every minted pair is fully collateralized at $1.
	yes, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*domain.Micros, yes.SharesMicros)
	assert.Equal(t, domain.ToMicros(0.60), yes.AvgPriceMicros)

	no, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "bob", MarketID: market.ID, Outcome: domain.OutcomeNo,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*domain.Micros, no.SharesMicros)
	assert.Equal(t, domain.ToMicros(0.40), no.AvgPriceMicros)
}

// mintPairs gives alice 10 YES and bob 10 NO via a crossed pair of bids.
func mintPairs(t *testing.T, f *fixture, marketID string) {
	t.Helper()
	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: marketID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.50), Quantity: 10,
	})
	require.NoError(t, err)
	_, _, err = f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: marketID, Wallet: "bob", Outcome: domain.OutcomeNo,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.50), Quantity: 10,
	})
	require.NoError(t, err)
}

func TestOrderService_SellTransfersSharesAtRestingBid(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)
	f.fund(t, "carol", 10*domain.Micros)
	mintPairs(t, f, market.ID)

	// Carol bids NO at 0.55 and rests (no NO sellers yet, and a 0.55 NO bid
	// does not cross alice's spent YES bid).
	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "carol", Outcome: domain.OutcomeNo,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.55), Quantity: 4,
	})
	require.NoError(t, err)

	// Bob sells 4 of his NO shares; price improvement goes to the taker, so
	// the trade prints at carol's 0.55 bid.
	order, fills, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "bob", Outcome: domain.OutcomeNo,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.50), Quantity: 4,
	})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.False(t, fills[0].Minted)
	assert.Equal(t, domain.ToMicros(0.55), fills[0].PriceMicros)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)

	// Bob started with 10, paid 5.00 minting, received 2.20 selling.
	bob := f.account(t, "bob")
	assert.Equal(t, domain.ToMicros(7.20), bob.AvailableMicros)

	bobPos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "bob", MarketID: market.ID, Outcome: domain.OutcomeNo,
	})
	require.NoError(t, err)
	assert.Equal(t, 6*domain.Micros, bobPos.SharesMicros)
	// Sold 4 at 0.55 against a 0.50 basis.
	assert.Equal(t, domain.ToMicros(0.20), bobPos.RealizedMicros)

	carolPos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "carol", MarketID: market.ID, Outcome: domain.OutcomeNo,
	})
	require.NoError(t, err)
	assert.Equal(t, 4*domain.Micros, carolPos.SharesMicros)

	carol := f.account(t, "carol")
	assert.Equal(t, domain.ToMicros(7.80), carol.AvailableMicros)
	assert.Zero(t, carol.LockedMicros)
}

func TestOrderService_SellEscrowBlocksDoubleSell(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)
	f.fund(t, "carol", 10*domain.Micros)
	mintPairs(t, f, market.ID)

	// Alice pledges all 10 YES to a resting ask.
	_, _, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	pos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*domain.Micros, pos.SharesMicros)
	assert.Equal(t, 10*domain.Micros, pos.ReservedMicros)
	assert.Zero(t, pos.SellableMicros())

	// The same shares cannot back a second ask.
	_, _, err = f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.55), Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// Carol lifts the one real ask; alice ends flat with no shares left to
	// back a phantom fill.
	_, fills, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "carol", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)
	require.Len(t, fills, 1)

	pos, err = f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Zero(t, pos.SharesMicros)
	assert.Zero(t, pos.ReservedMicros)

	// Paid exactly once: 10 - 5.00 mint + 6.00 sale.
	assert.Equal(t, 11*domain.Micros, f.account(t, "alice").AvailableMicros)
}

func TestOrderService_CancelSellReleasesShareEscrow(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)
	mintPairs(t, f, market.ID)

	order, _, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.70), Quantity: 10,
	})
	require.NoError(t, err)

	require.NoError(t, f.orderSvc.CancelOrder(context.Background(), order.ID, "alice"))

	pos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Zero(t, pos.ReservedMicros)

	// The freed shares back a fresh ask.
	_, _, err = f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.65), Quantity: 10,
	})
	require.NoError(t, err)
}

func TestOrderService_FailedPlacementReturnsEscrow(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)
	f.fund(t, "carol", 10*domain.Micros)
	mintPairs(t, f, market.ID)

	flaky := &flakyOrderStore{OrderStore: f.orders, failCreate: true}
	svc := NewOrderService(f.markets, flaky, f.positions, f.ledger, f.fills, nil, nil, NewEntityLocks(), testLogger())

	// A buy that dies after locking collateral hands it back.
	_, _, err := svc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "carol", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.Error(t, err)

	carol := f.account(t, "carol")
	assert.Equal(t, 10*domain.Micros, carol.AvailableMicros)
	assert.Zero(t, carol.LockedMicros)

	got, err := f.registrySvc.GetMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LockedCollateralMicros)

	// A sell that dies the same way hands the pledged shares back.
	_, _, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.70), Quantity: 10,
	})
	require.Error(t, err)

	pos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*domain.Micros, pos.SharesMicros)
	assert.Zero(t, pos.ReservedMicros)

	// Once the store recovers the same order goes through.
	flaky.failCreate = false
	_, _, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.70), Quantity: 10,
	})
	require.NoError(t, err)
}

func TestOrderService_TakerBuyAgainstRestingAsk(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)
	f.fund(t, "carol", 10*domain.Micros)
	mintPairs(t, f, market.ID)

	// Alice offers 5 YES at 0.62.
	_, _, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideSell, PriceMicros: domain.ToMicros(0.62), Quantity: 5,
	})
	require.NoError(t, err)

	// Carol lifts the ask with a 0.65 limit; execution at the resting 0.62
	// refunds her the 0.03 difference.
	_, fills, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "carol", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.65), Quantity: 5,
	})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, domain.ToMicros(0.62), fills[0].PriceMicros)

	carol := f.account(t, "carol")
	assert.Equal(t, 10*domain.Micros-domain.ToMicros(3.10), carol.AvailableMicros)
	assert.Zero(t, carol.LockedMicros)

	// Alice: 10 - 5.00 (mint) + 3.10 (sale).
	alice := f.account(t, "alice")
	assert.Equal(t, domain.ToMicros(8.10), alice.AvailableMicros)

	alicePos, err := f.positions.Get(context.Background(), domain.PositionKey{
		Wallet: "alice", MarketID: market.ID, Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.Equal(t, 5*domain.Micros, alicePos.SharesMicros)
}

func TestOrderService_CancelReleasesReserve(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)

	order, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.30), Quantity: 10,
	})
	require.NoError(t, err)

	err = f.orderSvc.CancelOrder(context.Background(), order.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotOrderOwner)

	require.NoError(t, f.orderSvc.CancelOrder(context.Background(), order.ID, "alice"))

	acct := f.account(t, "alice")
	assert.Equal(t, 10*domain.Micros, acct.AvailableMicros)
	assert.Zero(t, acct.LockedMicros)

	got, err := f.registrySvc.GetMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LockedCollateralMicros)

	err = f.orderSvc.CancelOrder(context.Background(), order.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrOrderTerminal)
}

func TestOrderService_ExpiredRestingOrderSkippedAndReleased(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 10*domain.Micros)
	f.fund(t, "bob", 10*domain.Micros)

	past := time.Now().UTC().Add(-time.Minute)
	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.60), Quantity: 10,
		ExpiresAt: &past,
	})
	require.NoError(t, err)

	// A crossing NO bid arrives after expiry: no fill, and alice's reserve
	// is lazily released.
	_, fills, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "bob", Outcome: domain.OutcomeNo,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.45), Quantity: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, fills)

	alice := f.account(t, "alice")
	assert.Equal(t, 10*domain.Micros, alice.AvailableMicros)
	assert.Zero(t, alice.LockedMicros)
}

func TestOrderService_BookAggregatesLevels(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, "alice", 20*domain.Micros)
	f.fund(t, "bob", 20*domain.Micros)

	for _, price := range []float64{0.30, 0.30, 0.25} {
		_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
			MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
			Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(price), Quantity: 5,
		})
		require.NoError(t, err)
	}

	snap, err := f.orderSvc.Book(context.Background(), market.ID)
	require.NoError(t, err)
	levels := snap.Levels[domain.OutcomeYes][domain.OrderSideBuy]
	require.Len(t, levels, 2)
	// Bids best-first.
	assert.Equal(t, domain.ToMicros(0.30), levels[0].PriceMicros)
	assert.Equal(t, int64(10), levels[0].Quantity)
	assert.Equal(t, domain.ToMicros(0.25), levels[1].PriceMicros)
	assert.Equal(t, int64(5), levels[1].Quantity)
}

func TestOrderService_PlaceOnLockedMarket(t *testing.T) {
	f := newFixture(t)
	market := f.newMarket(t, "verstappen")
	require.NoError(t, f.registrySvc.LockMarket(context.Background(), market.ID))

	_, _, err := f.orderSvc.ApplyBuy(context.Background(), PlaceOrderRequest{
		MarketID: market.ID, Wallet: "alice", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, PriceMicros: domain.ToMicros(0.50), Quantity: 5,
	})
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
}
