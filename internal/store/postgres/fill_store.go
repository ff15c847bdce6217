package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert records one fill.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (
			id, market_id, taker_order_id, maker_order_id, outcome,
			price_micros, quantity, minted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.MarketID, f.TakerOrderID, f.MakerOrderID, string(f.Outcome),
		f.PriceMicros, f.Quantity, f.Minted, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// ListByMarket returns a market's fills, newest first.
func (s *FillStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Fill, error) {
	const query = `
		SELECT id, market_id, taker_order_id, maker_order_id, outcome,
			price_micros, quantity, minted, created_at
		FROM fills
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0) OFFSET $3`

	rows, err := s.pool.Query(ctx, query, marketID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for %s: %w", marketID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var outcome string
		if err := rows.Scan(
			&f.ID, &f.MarketID, &f.TakerOrderID, &f.MakerOrderID, &outcome,
			&f.PriceMicros, &f.Quantity, &f.Minted, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Outcome = domain.OrderOutcome(outcome)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
