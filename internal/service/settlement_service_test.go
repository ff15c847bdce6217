package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/crypto"
	"github.com/paddockmarkets/paddock/internal/domain"
)

const settlementTestKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newSettlementSigner(t *testing.T) (*crypto.Signer, string) {
	t.Helper()
	signer, err := crypto.NewSigner(settlementTestKey, 137)
	require.NoError(t, err)
	return signer, signer.Address().Hex()
}

func TestSettlementService_BuildRecordsTerms(t *testing.T) {
	f := newFixture(t)
	_, wallet := newSettlementSigner(t)
	market := f.newMarket(t, "verstappen")

	res, err := f.settleSvc.Build(context.Background(), BuildSettlementRequest{
		MarketID: market.ID, Wallet: wallet, Outcome: domain.OutcomeYes,
		PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Settlement.Nonce)
	assert.Equal(t, domain.SettlementStatusPending, res.Settlement.Status)
	assert.Equal(t, 6*domain.Micros, res.Settlement.CollateralMicros)
	assert.Equal(t, res.Settlement.Nonce, res.Payload.Nonce)
	assert.Equal(t, wallet, res.Payload.Wallet)
	assert.Equal(t, crypto.OutcomeCodeYes, res.Payload.Outcome)
	assert.True(t, res.Settlement.ExpiresAt.After(time.Now()))

	// Nothing is reserved until the signed submit arrives.
	assert.Zero(t, f.account(t, wallet).LockedMicros)
}

func TestSettlementService_SubmitAppliesBuyOnce(t *testing.T) {
	f := newFixture(t)
	signer, wallet := newSettlementSigner(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, wallet, 10*domain.Micros)

	res, err := f.settleSvc.Build(context.Background(), BuildSettlementRequest{
		MarketID: market.ID, Wallet: wallet, Outcome: domain.OutcomeYes,
		PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	sig, err := signer.SignSettlement(res.Payload)
	require.NoError(t, err)

	order, fills, err := f.settleSvc.Submit(context.Background(), res.Payload, sig, "")
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, domain.OrderStatusOpen, order.Status)
	assert.Equal(t, wallet, order.Wallet)

	acct := f.account(t, wallet)
	assert.Equal(t, 4*domain.Micros, acct.AvailableMicros)
	assert.Equal(t, 6*domain.Micros, acct.LockedMicros)

	stored, err := f.settlements.GetByNonce(context.Background(), res.Payload.Nonce)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusUsed, stored.Status)
	assert.NotEmpty(t, stored.TxRef)

	// The nonce is single-use.
	_, _, err = f.settleSvc.Submit(context.Background(), res.Payload, sig, "")
	assert.ErrorIs(t, err, domain.ErrNonceUsed)
}

func TestSettlementService_SubmitUnknownNonce(t *testing.T) {
	f := newFixture(t)
	signer, wallet := newSettlementSigner(t)

	payload := crypto.SettlementPayload{
		Nonce: "never-built", Wallet: wallet, MarketID: "mkt",
		Outcome: crypto.OutcomeCodeYes, PriceMicros: domain.ToMicros(0.50),
		Quantity: 5, Collateral: domain.ToMicros(2.50), Expiry: time.Now().Add(time.Hour).Unix(),
	}
	sig, err := signer.SignSettlement(payload)
	require.NoError(t, err)

	_, _, err = f.settleSvc.Submit(context.Background(), payload, sig, "")
	assert.ErrorIs(t, err, domain.ErrNonceUnknown)
}

func TestSettlementService_SubmitTamperedTerms(t *testing.T) {
	f := newFixture(t)
	signer, wallet := newSettlementSigner(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, wallet, 10*domain.Micros)

	res, err := f.settleSvc.Build(context.Background(), BuildSettlementRequest{
		MarketID: market.ID, Wallet: wallet, Outcome: domain.OutcomeYes,
		PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	// The client signs better terms than it agreed to.
	tampered := res.Payload
	tampered.PriceMicros = domain.ToMicros(0.10)
	tampered.Collateral = domain.ToMicros(1.00)
	sig, err := signer.SignSettlement(tampered)
	require.NoError(t, err)

	_, _, err = f.settleSvc.Submit(context.Background(), tampered, sig, "")
	assert.ErrorIs(t, err, domain.ErrTermsMismatch)

	// The ledger is untouched and the settlement is still submittable.
	acct := f.account(t, wallet)
	assert.Equal(t, 10*domain.Micros, acct.AvailableMicros)
	assert.Zero(t, acct.LockedMicros)

	sig, err = signer.SignSettlement(res.Payload)
	require.NoError(t, err)
	_, _, err = f.settleSvc.Submit(context.Background(), res.Payload, sig, "")
	assert.NoError(t, err)
}

func TestSettlementService_SubmitWrongSigner(t *testing.T) {
	f := newFixture(t)
	_, wallet := newSettlementSigner(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, wallet, 10*domain.Micros)

	res, err := f.settleSvc.Build(context.Background(), BuildSettlementRequest{
		MarketID: market.ID, Wallet: wallet, Outcome: domain.OutcomeYes,
		PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	intruder, err := crypto.NewSigner("8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f", 137)
	require.NoError(t, err)
	sig, err := intruder.SignSettlement(res.Payload)
	require.NoError(t, err)

	_, _, err = f.settleSvc.Submit(context.Background(), res.Payload, sig, "")
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	_, _, err = f.settleSvc.Submit(context.Background(), res.Payload, "0xdeadbeef", "")
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)

	assert.Zero(t, f.account(t, wallet).LockedMicros)
}

func TestSettlementService_ExpiredNonceRejectedAndSwept(t *testing.T) {
	f := newFixture(t)
	signer, wallet := newSettlementSigner(t)
	market := f.newMarket(t, "verstappen")
	f.fund(t, wallet, 10*domain.Micros)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shortTTL := NewSettlementService(f.settlements, f.markets, f.orderSvc, nil, nil, time.Millisecond, 137, logger)

	res, err := shortTTL.Build(context.Background(), BuildSettlementRequest{
		MarketID: market.ID, Wallet: wallet, Outcome: domain.OutcomeYes,
		PriceMicros: domain.ToMicros(0.60), Quantity: 10,
	})
	require.NoError(t, err)

	sig, err := signer.SignSettlement(res.Payload)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, err = shortTTL.Submit(context.Background(), res.Payload, sig, "")
	assert.ErrorIs(t, err, domain.ErrNonceExpired)

	n, err := shortTTL.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := f.settlements.GetByNonce(context.Background(), res.Payload.Nonce)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusExpired, stored.Status)
}
