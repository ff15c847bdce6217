package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Balance moves
// are single conditional UPDATEs, so the non-negativity invariants hold even
// under concurrent writers.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Get returns a wallet's account.
func (s *LedgerStore) Get(ctx context.Context, wallet string) (domain.Account, error) {
	const query = `
		SELECT wallet, available_micros, locked_micros, updated_at
		FROM accounts WHERE wallet = $1`

	var a domain.Account
	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&a.Wallet, &a.AvailableMicros, &a.LockedMicros, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", wallet, err)
	}
	return a, nil
}

// Credit adds to a wallet's available balance, creating the account if
// needed.
func (s *LedgerStore) Credit(ctx context.Context, wallet string, amount int64) error {
	const query = `
		INSERT INTO accounts (wallet, available_micros, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			available_micros = accounts.available_micros + EXCLUDED.available_micros,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, wallet, amount); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", wallet, err)
	}
	return nil
}

// Debit removes from a wallet's available balance.
func (s *LedgerStore) Debit(ctx context.Context, wallet string, amount int64) error {
	const query = `
		UPDATE accounts SET
			available_micros = available_micros - $2,
			updated_at = NOW()
		WHERE wallet = $1 AND available_micros >= $2`

	return s.conditionalMove(ctx, query, wallet, amount, "debit")
}

// Lock moves funds from available to locked.
func (s *LedgerStore) Lock(ctx context.Context, wallet string, amount int64) error {
	const query = `
		UPDATE accounts SET
			available_micros = available_micros - $2,
			locked_micros = locked_micros + $2,
			updated_at = NOW()
		WHERE wallet = $1 AND available_micros >= $2`

	return s.conditionalMove(ctx, query, wallet, amount, "lock")
}

// Unlock moves funds from locked back to available.
func (s *LedgerStore) Unlock(ctx context.Context, wallet string, amount int64) error {
	const query = `
		UPDATE accounts SET
			locked_micros = locked_micros - $2,
			available_micros = available_micros + $2,
			updated_at = NOW()
		WHERE wallet = $1 AND locked_micros >= $2`

	return s.conditionalMove(ctx, query, wallet, amount, "unlock")
}

// SpendLocked consumes locked funds without returning them to available.
func (s *LedgerStore) SpendLocked(ctx context.Context, wallet string, amount int64) error {
	const query = `
		UPDATE accounts SET
			locked_micros = locked_micros - $2,
			updated_at = NOW()
		WHERE wallet = $1 AND locked_micros >= $2`

	return s.conditionalMove(ctx, query, wallet, amount, "spend locked")
}

func (s *LedgerStore) conditionalMove(ctx context.Context, query, wallet string, amount int64, verb string) error {
	tag, err := s.pool.Exec(ctx, query, wallet, amount)
	if err != nil {
		return fmt.Errorf("postgres: %s %s: %w", verb, wallet, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}
