package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Pool and
// market positions share one table; the unused identity columns hold empty
// strings so the identity unique index stays simple.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, wallet, pool_id, outcome_id, market_id, outcome,
	shares_micros, reserved_micros, avg_price_micros, realized_micros, created_at, updated_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var outcome string

	err := row.Scan(
		&p.ID, &p.Wallet, &p.PoolID, &p.OutcomeID, &p.MarketID, &outcome,
		&p.SharesMicros, &p.ReservedMicros, &p.AvgPriceMicros, &p.RealizedMicros,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Outcome = domain.OrderOutcome(outcome)
	return p, nil
}

// Get returns the position with the given identity key.
func (s *PositionStore) Get(ctx context.Context, key domain.PositionKey) (domain.Position, error) {
	const query = `
		SELECT ` + positionSelectCols + ` FROM positions
		WHERE wallet = $1 AND pool_id = $2 AND outcome_id = $3
		  AND market_id = $4 AND outcome = $5`

	p, err := scanPositionRow(s.pool.QueryRow(ctx, query,
		key.Wallet, key.PoolID, key.OutcomeID, key.MarketID, string(key.Outcome)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position: %w", err)
	}
	return p, nil
}

// Upsert inserts or replaces a position by its identity key.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, wallet, pool_id, outcome_id, market_id, outcome,
			shares_micros, reserved_micros, avg_price_micros, realized_micros,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (wallet, pool_id, outcome_id, market_id, outcome) DO UPDATE SET
			shares_micros    = EXCLUDED.shares_micros,
			reserved_micros  = EXCLUDED.reserved_micros,
			avg_price_micros = EXCLUDED.avg_price_micros,
			realized_micros  = EXCLUDED.realized_micros,
			updated_at       = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Wallet, p.PoolID, p.OutcomeID, p.MarketID, string(p.Outcome),
		p.SharesMicros, p.ReservedMicros, p.AvgPriceMicros, p.RealizedMicros,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// ListByWallet returns every position a wallet holds.
func (s *PositionStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Position, error) {
	return s.list(ctx, `wallet = $1`, wallet)
}

// ListByPool returns every position in a pool.
func (s *PositionStore) ListByPool(ctx context.Context, poolID string) ([]domain.Position, error) {
	return s.list(ctx, `pool_id = $1`, poolID)
}

// ListByMarket returns every position in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return s.list(ctx, `market_id = $1`, marketID)
}

func (s *PositionStore) list(ctx context.Context, where, arg string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE `+where+` ORDER BY id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
