package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, season_id, participant, question, status,
	last_price_micros, outstanding_pairs, locked_collateral_micros,
	winning_outcome, created_at, updated_at, resolved_at`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var winning *string

	err := row.Scan(
		&m.ID, &m.SeasonID, &m.Participant, &m.Question, &status,
		&m.LastPriceMicros, &m.OutstandingPairs, &m.LockedCollateralMicros,
		&winning, &m.CreatedAt, &m.UpdatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	if winning != nil {
		o := domain.OrderOutcome(*winning)
		m.WinningOutcome = &o
	}
	return m, nil
}

// Create inserts a market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, season_id, participant, question, status, last_price_micros,
			outstanding_pairs, locked_collateral_micros, winning_outcome,
			created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.SeasonID, m.Participant, m.Question, string(m.Status),
		m.LastPriceMicros, m.OutstandingPairs, m.LockedCollateralMicros,
		winningString(m.WinningOutcome), m.CreatedAt, m.UpdatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get returns a market by id.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarketRow(s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by creation time.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketSelectCols+` FROM markets
		 ORDER BY created_at
		 LIMIT NULLIF($1, 0) OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Update replaces a market's mutable fields.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			status                   = $2,
			last_price_micros        = $3,
			outstanding_pairs        = $4,
			locked_collateral_micros = $5,
			winning_outcome          = $6,
			updated_at               = $7,
			resolved_at              = $8
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, string(m.Status), m.LastPriceMicros, m.OutstandingPairs,
		m.LockedCollateralMicros, winningString(m.WinningOutcome),
		m.UpdatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func winningString(o *domain.OrderOutcome) *string {
	if o == nil {
		return nil
	}
	s := string(*o)
	return &s
}
