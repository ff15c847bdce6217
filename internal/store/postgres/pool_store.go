package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL. A pool and its
// outcome rows are written in one transaction.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolSelectCols = `id, season_id, kind, status, liquidity_micros,
	collateral_micros, winner_outcome_id, created_at, updated_at, resolved_at`

func scanPoolRow(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	var kind, status string

	err := row.Scan(
		&p.ID, &p.SeasonID, &kind, &status, &p.LiquidityMicros,
		&p.CollateralMicros, &p.WinnerOutcomeID,
		&p.CreatedAt, &p.UpdatedAt, &p.ResolvedAt,
	)
	if err != nil {
		return domain.Pool{}, err
	}
	p.Kind = domain.OutcomeKind(kind)
	p.Status = domain.PoolStatus(status)
	return p, nil
}

// Create inserts a pool and its outcomes.
func (s *PoolStore) Create(ctx context.Context, p domain.Pool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create pool: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertPool = `
		INSERT INTO pools (
			id, season_id, kind, status, liquidity_micros, collateral_micros,
			winner_outcome_id, created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(ctx, insertPool,
		p.ID, p.SeasonID, string(p.Kind), string(p.Status),
		p.LiquidityMicros, p.CollateralMicros, p.WinnerOutcomeID,
		p.CreatedAt, p.UpdatedAt, p.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create pool %s: %w", p.ID, err)
	}

	const insertOutcome = `
		INSERT INTO pool_outcomes (id, pool_id, position, participant, shares_micros)
		VALUES ($1, $2, $3, $4, $5)`

	for i, o := range p.Outcomes {
		if _, err := tx.Exec(ctx, insertOutcome, o.ID, p.ID, i, o.Participant, o.SharesMicros); err != nil {
			return fmt.Errorf("postgres: create pool outcome %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create pool %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a pool with its outcomes in creation order.
func (s *PoolStore) Get(ctx context.Context, id string) (domain.Pool, error) {
	p, err := scanPoolRow(s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pool{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", id, err)
	}

	p.Outcomes, err = s.outcomes(ctx, id)
	if err != nil {
		return domain.Pool{}, err
	}
	return p, nil
}

// List returns pools ordered by creation time.
func (s *PoolStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolSelectCols+` FROM pools
		 ORDER BY created_at
		 LIMIT NULLIF($1, 0) OFFSET $2`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPoolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}

	for i := range pools {
		pools[i].Outcomes, err = s.outcomes(ctx, pools[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return pools, nil
}

// Update replaces a pool's mutable fields and its outcomes' share counts.
func (s *PoolStore) Update(ctx context.Context, p domain.Pool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin update pool: %w", err)
	}
	defer tx.Rollback(ctx)

	const updatePool = `
		UPDATE pools SET
			status            = $2,
			collateral_micros = $3,
			winner_outcome_id = $4,
			updated_at        = $5,
			resolved_at       = $6
		WHERE id = $1`

	tag, err := tx.Exec(ctx, updatePool,
		p.ID, string(p.Status), p.CollateralMicros,
		p.WinnerOutcomeID, p.UpdatedAt, p.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update pool %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	const updateOutcome = `UPDATE pool_outcomes SET shares_micros = $2 WHERE id = $1`
	for _, o := range p.Outcomes {
		if _, err := tx.Exec(ctx, updateOutcome, o.ID, o.SharesMicros); err != nil {
			return fmt.Errorf("postgres: update pool outcome %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit update pool %s: %w", p.ID, err)
	}
	return nil
}

func (s *PoolStore) outcomes(ctx context.Context, poolID string) ([]domain.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, participant, shares_micros
		 FROM pool_outcomes WHERE pool_id = $1 ORDER BY position`,
		poolID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes for pool %s: %w", poolID, err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.PoolID, &o.Participant, &o.SharesMicros); err != nil {
			return nil, fmt.Errorf("postgres: scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
