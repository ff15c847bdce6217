package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// LedgerStore persists per-user cash balances. Each mutation is atomic per
// account; Debit, Lock and SpendLocked fail with ErrInsufficientBalance
// rather than driving a balance negative.
type LedgerStore interface {
	Get(ctx context.Context, wallet string) (Account, error)
	// Credit adds to the available balance, creating the account if needed.
	Credit(ctx context.Context, wallet string, amountMicros int64) error
	// Debit removes from the available balance.
	Debit(ctx context.Context, wallet string, amountMicros int64) error
	// Lock moves funds from available to locked.
	Lock(ctx context.Context, wallet string, amountMicros int64) error
	// Unlock moves funds from locked back to available.
	Unlock(ctx context.Context, wallet string, amountMicros int64) error
	// SpendLocked consumes locked funds (a fill drawing on reserved collateral).
	SpendLocked(ctx context.Context, wallet string, amountMicros int64) error
}

// PoolStore persists AMM pools together with their outcomes.
type PoolStore interface {
	Create(ctx context.Context, pool Pool) error
	Get(ctx context.Context, id string) (Pool, error)
	List(ctx context.Context, opts ListOpts) ([]Pool, error)
	// Update writes the pool row and every outcome's shares outstanding.
	Update(ctx context.Context, pool Pool) error
}

// MarketStore persists order-book markets.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Update(ctx context.Context, market Market) error
}

// OrderStore persists limit orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, order Order) error
	// ListOpenByMarket returns non-terminal orders for a market, oldest first.
	ListOpenByMarket(ctx context.Context, marketID string) ([]Order, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Order, error)
}

// PositionStore persists share holdings. Get returns ErrNotFound for a
// never-traded key; Upsert inserts or replaces by key.
type PositionStore interface {
	Get(ctx context.Context, key PositionKey) (Position, error)
	Upsert(ctx context.Context, pos Position) error
	ListByWallet(ctx context.Context, wallet string) ([]Position, error)
	ListByPool(ctx context.Context, poolID string) ([]Position, error)
	ListByMarket(ctx context.Context, marketID string) ([]Position, error)
}

// SettlementStore persists pending settlements.
type SettlementStore interface {
	Create(ctx context.Context, s PendingSettlement) error
	GetByNonce(ctx context.Context, nonce string) (PendingSettlement, error)
	// Consume atomically marks a pending, unexpired settlement as used and
	// records the external transaction reference. It returns ErrNonceUsed,
	// ErrNonceExpired or ErrNonceUnknown when the nonce cannot be consumed,
	// so a double submit loses the race deterministically.
	Consume(ctx context.Context, nonce, txRef string, now time.Time) (PendingSettlement, error)
	// ExpireBefore marks all pending settlements past their deadline as
	// expired and returns how many were reaped.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

// FillStore persists match records.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Fill, error)
}
