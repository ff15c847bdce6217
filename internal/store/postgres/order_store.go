package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, market_id, wallet, outcome, side, price_micros,
	quantity, filled, status, expires_at, created_at, updated_at`

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var outcome, side, status string

	err := row.Scan(
		&o.ID, &o.MarketID, &o.Wallet, &outcome, &side, &o.PriceMicros,
		&o.Quantity, &o.Filled, &status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Outcome = domain.OrderOutcome(outcome)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts an order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, wallet, outcome, side, price_micros,
			quantity, filled, status, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Wallet, string(o.Outcome), string(o.Side),
		o.PriceMicros, o.Quantity, o.Filled, string(o.Status),
		o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns an order by id.
func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrderRow(s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// Update replaces an order's mutable fields.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			filled     = $2,
			status     = $3,
			updated_at = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, o.ID, o.Filled, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenByMarket returns a market's open and partially filled orders in
// creation order.
func (s *OrderStore) ListOpenByMarket(ctx context.Context, marketID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE market_id = $1 AND status IN ('open', 'partial')
		 ORDER BY created_at`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders for %s: %w", marketID, err)
	}
	return scanOrderRows(rows)
}

// ListByWallet returns a wallet's orders, newest first.
func (s *OrderStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE wallet = $1
		 ORDER BY created_at DESC
		 LIMIT NULLIF($2, 0) OFFSET $3`,
		wallet, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", wallet, err)
	}
	return scanOrderRows(rows)
}
