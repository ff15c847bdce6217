package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. Consume
// is a single conditional UPDATE, so a nonce can be spent exactly once even
// under racing submits.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementSelectCols = `id, nonce, wallet, market_id, outcome, side,
	price_micros, quantity, collateral_micros, status, tx_ref,
	expires_at, created_at, used_at`

func scanSettlementRow(row pgx.Row) (domain.PendingSettlement, error) {
	var ps domain.PendingSettlement
	var outcome, side, status string

	err := row.Scan(
		&ps.ID, &ps.Nonce, &ps.Wallet, &ps.MarketID, &outcome, &side,
		&ps.PriceMicros, &ps.Quantity, &ps.CollateralMicros, &status, &ps.TxRef,
		&ps.ExpiresAt, &ps.CreatedAt, &ps.UsedAt,
	)
	if err != nil {
		return domain.PendingSettlement{}, err
	}
	ps.Outcome = domain.OrderOutcome(outcome)
	ps.Side = domain.OrderSide(side)
	ps.Status = domain.SettlementStatus(status)
	return ps, nil
}

// Create records a pending settlement.
func (s *SettlementStore) Create(ctx context.Context, ps domain.PendingSettlement) error {
	const query = `
		INSERT INTO settlements (
			id, nonce, wallet, market_id, outcome, side, price_micros,
			quantity, collateral_micros, status, tx_ref, expires_at,
			created_at, used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, query,
		ps.ID, ps.Nonce, ps.Wallet, ps.MarketID, string(ps.Outcome), string(ps.Side),
		ps.PriceMicros, ps.Quantity, ps.CollateralMicros, string(ps.Status),
		ps.TxRef, ps.ExpiresAt, ps.CreatedAt, ps.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement %s: %w", ps.Nonce, err)
	}
	return nil
}

// GetByNonce returns the settlement recorded under nonce.
func (s *SettlementStore) GetByNonce(ctx context.Context, nonce string) (domain.PendingSettlement, error) {
	ps, err := scanSettlementRow(s.pool.QueryRow(ctx,
		`SELECT `+settlementSelectCols+` FROM settlements WHERE nonce = $1`, nonce))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingSettlement{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PendingSettlement{}, fmt.Errorf("postgres: get settlement %s: %w", nonce, err)
	}
	return ps, nil
}

// Consume atomically marks a pending, unexpired settlement as used. Exactly
// one of several racing calls wins; the rest see the resulting state error.
func (s *SettlementStore) Consume(ctx context.Context, nonce, txRef string, now time.Time) (domain.PendingSettlement, error) {
	const query = `
		UPDATE settlements SET
			status  = 'used',
			tx_ref  = $2,
			used_at = $3
		WHERE nonce = $1 AND status = 'pending' AND expires_at > $3
		RETURNING ` + settlementSelectCols

	ps, err := scanSettlementRow(s.pool.QueryRow(ctx, query, nonce, txRef, now))
	if err == nil {
		return ps, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingSettlement{}, fmt.Errorf("postgres: consume settlement %s: %w", nonce, err)
	}

	// The conditional update missed; read back to report why.
	current, getErr := s.GetByNonce(ctx, nonce)
	switch {
	case errors.Is(getErr, domain.ErrNotFound):
		return domain.PendingSettlement{}, domain.ErrNonceUnknown
	case getErr != nil:
		return domain.PendingSettlement{}, getErr
	case current.Status == domain.SettlementStatusUsed:
		return domain.PendingSettlement{}, domain.ErrNonceUsed
	default:
		return domain.PendingSettlement{}, domain.ErrNonceExpired
	}
}

// ExpireBefore marks pending settlements whose deadline passed, returning how
// many changed.
func (s *SettlementStore) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE settlements SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1`

	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire settlements: %w", err)
	}
	return tag.RowsAffected(), nil
}
