package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires every service against in-memory stores.
type fixture struct {
	ledger      *memory.LedgerStore
	pools       *memory.PoolStore
	markets     *memory.MarketStore
	orders      *memory.OrderStore
	positions   *memory.PositionStore
	settlements *memory.SettlementStore
	fills       *memory.FillStore

	poolSvc     *PoolService
	orderSvc    *OrderService
	settleSvc   *SettlementService
	registrySvc *RegistryService
	ledgerSvc   *LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:      memory.NewLedgerStore(),
		pools:       memory.NewPoolStore(),
		markets:     memory.NewMarketStore(),
		orders:      memory.NewOrderStore(),
		positions:   memory.NewPositionStore(),
		settlements: memory.NewSettlementStore(),
		fills:       memory.NewFillStore(),
	}
	logger := testLogger()
	locks := NewEntityLocks()

	f.poolSvc = NewPoolService(f.pools, f.positions, f.ledger, nil, nil, locks, 0, logger)
	f.orderSvc = NewOrderService(f.markets, f.orders, f.positions, f.ledger, f.fills, nil, nil, locks, logger)
	f.settleSvc = NewSettlementService(f.settlements, f.markets, f.orderSvc, nil, nil, 0, 137, logger)
	f.registrySvc = NewRegistryService(f.pools, f.markets, f.orders, f.positions, f.fills, f.ledger, nil, locks, nil, logger)
	f.ledgerSvc = NewLedgerService(f.ledger, f.positions, locks, logger)
	return f
}

func (f *fixture) fund(t *testing.T, wallet string, amountMicros int64) {
	t.Helper()
	require.NoError(t, f.ledger.Credit(context.Background(), wallet, amountMicros))
}

func (f *fixture) account(t *testing.T, wallet string) domain.Account {
	t.Helper()
	acct, err := f.ledgerSvc.Account(context.Background(), wallet)
	require.NoError(t, err)
	return acct
}

func (f *fixture) newPool(t *testing.T, liquidityShares int64, participants ...string) domain.Pool {
	t.Helper()
	pool, err := f.registrySvc.CreatePool(context.Background(), "season-2026",
		domain.OutcomeKindDriver, liquidityShares*domain.Micros, participants)
	require.NoError(t, err)
	return pool
}

func (f *fixture) newMarket(t *testing.T, participant string) domain.Market {
	t.Helper()
	market, err := f.registrySvc.CreateMarket(context.Background(), "season-2026",
		participant, "Will "+participant+" win the championship?")
	require.NoError(t, err)
	return market
}

// Flaky store wrappers for exercising the failure-compensation paths. Each
// passes through to the in-memory store until told to fail.

type flakyOrderStore struct {
	*memory.OrderStore
	failCreate bool
}

func (s *flakyOrderStore) Create(ctx context.Context, o domain.Order) error {
	if s.failCreate {
		return errors.New("order store offline")
	}
	return s.OrderStore.Create(ctx, o)
}

type flakyLedgerStore struct {
	*memory.LedgerStore
	failCreditAt int // 1-based credit call that fails; 0 disables
	credits      int
}

func (s *flakyLedgerStore) Credit(ctx context.Context, wallet string, amount int64) error {
	s.credits++
	if s.failCreditAt > 0 && s.credits == s.failCreditAt {
		return errors.New("ledger offline")
	}
	return s.LedgerStore.Credit(ctx, wallet, amount)
}

type flakyPositionStore struct {
	*memory.PositionStore
	failUpsert bool
}

func (s *flakyPositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	if s.failUpsert {
		return errors.New("position store offline")
	}
	return s.PositionStore.Upsert(ctx, pos)
}
