package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paddockmarkets/paddock/internal/amm"
	"github.com/paddockmarkets/paddock/internal/domain"
)

// DefaultQuoteTolerance is the maximum drift, in micros, between a quoted
// cost and the freshly derived cost at execution time before the trade is
// rejected as stale. It protects a user from being charged more than the
// price they agreed to see.
const DefaultQuoteTolerance int64 = 10_000 // $0.01

// PoolService prices and executes trades against LMSR pools.
type PoolService struct {
	pools     domain.PoolStore
	positions domain.PositionStore
	ledger    domain.LedgerStore
	prices    domain.PriceCache
	locks     *EntityLocks
	events    publisher
	tolerance int64
	logger    *slog.Logger
}

// NewPoolService creates a PoolService. toleranceMicros of zero selects
// DefaultQuoteTolerance.
func NewPoolService(
	pools domain.PoolStore,
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	locks *EntityLocks,
	toleranceMicros int64,
	logger *slog.Logger,
) *PoolService {
	if toleranceMicros <= 0 {
		toleranceMicros = DefaultQuoteTolerance
	}
	return &PoolService{
		pools:     pools,
		positions: positions,
		ledger:    ledger,
		prices:    prices,
		locks:     locks,
		events:    publisher{bus: bus, logger: logger},
		tolerance: toleranceMicros,
		logger:    logger,
	}
}

// Quote prices a prospective trade without mutating anything. A positive
// deltaMicros is a buy, a negative one a sell. Sell proceeds may not exceed
// the pool's collateral.
func (s *PoolService) Quote(ctx context.Context, poolID, outcomeID string, deltaMicros int64) (domain.PoolQuote, error) {
	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return domain.PoolQuote{}, fmt.Errorf("pool_service: get pool %q: %w", poolID, err)
	}
	return s.quote(&pool, outcomeID, deltaMicros)
}

func (s *PoolService) quote(pool *domain.Pool, outcomeID string, deltaMicros int64) (domain.PoolQuote, error) {
	if pool.Status != domain.PoolStatusOpen {
		return domain.PoolQuote{}, domain.ErrPoolNotOpen
	}

	idx := -1
	for i := range pool.Outcomes {
		if pool.Outcomes[i].ID == outcomeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.PoolQuote{}, domain.ErrInvalidOutcome
	}

	mm, err := amm.New(pool.LiquidityMicros)
	if err != nil {
		return domain.PoolQuote{}, err
	}

	q, err := mm.Quote(pool.ShareVector(), idx, deltaMicros)
	if err != nil {
		return domain.PoolQuote{}, err
	}
	if deltaMicros < 0 && q.CostMicros > pool.CollateralMicros {
		// A sell can never withdraw more than the pool holds.
		return domain.PoolQuote{}, domain.ErrInsufficientBalance
	}

	q.PoolID = pool.ID
	q.OutcomeID = outcomeID
	return q, nil
}

// Execute re-derives the quote under the pool lock and applies the trade when
// the fresh cost is within tolerance of quotedCostMicros. Buys debit the
// wallet and move the position's average price; sells credit the wallet and
// realize P&L against the unchanged average.
func (s *PoolService) Execute(ctx context.Context, poolID, outcomeID string, deltaMicros, quotedCostMicros int64, wallet string) (domain.PoolQuote, error) {
	unlockPool := s.locks.LockPool(poolID)
	defer unlockPool()
	unlockUser := s.locks.LockUser(wallet)
	defer unlockUser()

	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return domain.PoolQuote{}, fmt.Errorf("pool_service: get pool %q: %w", poolID, err)
	}

	q, err := s.quote(&pool, outcomeID, deltaMicros)
	if err != nil {
		return domain.PoolQuote{}, err
	}
	if diff := q.CostMicros - quotedCostMicros; diff > s.tolerance || diff < -s.tolerance {
		return domain.PoolQuote{}, fmt.Errorf("pool_service: quoted %d, live %d: %w",
			quotedCostMicros, q.CostMicros, domain.ErrStaleQuote)
	}

	key := domain.PositionKey{Wallet: wallet, PoolID: poolID, OutcomeID: outcomeID}
	pos, err := s.positions.Get(ctx, key)
	if err != nil {
		if err != domain.ErrNotFound {
			return domain.PoolQuote{}, fmt.Errorf("pool_service: get position: %w", err)
		}
		now := time.Now().UTC()
		pos = domain.Position{
			ID:        uuid.New().String(),
			Wallet:    wallet,
			PoolID:    poolID,
			OutcomeID: outcomeID,
			CreatedAt: now,
		}
	}

	if deltaMicros > 0 {
		if err := s.ledger.Debit(ctx, wallet, q.CostMicros); err != nil {
			return domain.PoolQuote{}, fmt.Errorf("pool_service: debit %s: %w", wallet, err)
		}
		pos.ApplyBuy(deltaMicros, q.AvgPriceMicros)
		pool.CollateralMicros += q.CostMicros
	} else {
		if pos.SharesMicros < -deltaMicros {
			return domain.PoolQuote{}, domain.ErrInsufficientShares
		}
		if err := s.ledger.Credit(ctx, wallet, q.CostMicros); err != nil {
			return domain.PoolQuote{}, fmt.Errorf("pool_service: credit %s: %w", wallet, err)
		}
		pos.ApplySell(-deltaMicros, q.AvgPriceMicros)
		pool.CollateralMicros -= q.CostMicros
	}

	now := time.Now().UTC()
	outcome, _ := pool.Outcome(outcomeID)
	outcome.SharesMicros += deltaMicros
	pool.UpdatedAt = now
	pos.UpdatedAt = now

	if err := s.pools.Update(ctx, pool); err != nil {
		// Roll the balance move back so the ledger never reflects a trade
		// the pool state does not.
		if deltaMicros > 0 {
			_ = s.ledger.Credit(ctx, wallet, q.CostMicros)
		} else {
			_ = s.ledger.Debit(ctx, wallet, q.CostMicros)
		}
		return domain.PoolQuote{}, fmt.Errorf("pool_service: update pool %q: %w", poolID, err)
	}
	if err := s.positions.Upsert(ctx, pos); err != nil {
		// Walk the pool and ledger back to their pre-trade state; a trade
		// either lands in full or not at all.
		outcome.SharesMicros -= deltaMicros
		if deltaMicros > 0 {
			pool.CollateralMicros -= q.CostMicros
			_ = s.ledger.Credit(ctx, wallet, q.CostMicros)
		} else {
			pool.CollateralMicros += q.CostMicros
			_ = s.ledger.Debit(ctx, wallet, q.CostMicros)
		}
		pool.UpdatedAt = now
		if updateErr := s.pools.Update(ctx, pool); updateErr != nil {
			s.logger.ErrorContext(ctx, "pool_service: rollback failed",
				slog.String("pool_id", poolID),
				slog.String("error", updateErr.Error()),
			)
		}
		return domain.PoolQuote{}, fmt.Errorf("pool_service: upsert position: %w", err)
	}

	s.publishPrices(ctx, &pool)

	s.logger.InfoContext(ctx, "pool_service: trade executed",
		slog.String("pool_id", poolID),
		slog.String("outcome_id", outcomeID),
		slog.String("wallet", wallet),
		slog.Int64("delta_shares", deltaMicros),
		slog.Int64("cost_micros", q.CostMicros),
	)

	return q, nil
}

// Prices returns the live price of every outcome in the pool, in micros.
func (s *PoolService) Prices(ctx context.Context, poolID string) (map[string]int64, error) {
	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool_service: get pool %q: %w", poolID, err)
	}
	mm, err := amm.New(pool.LiquidityMicros)
	if err != nil {
		return nil, err
	}
	prices := mm.Prices(pool.ShareVector())
	out := make(map[string]int64, len(prices))
	for i, o := range pool.Outcomes {
		out[o.ID] = prices[i]
	}
	return out, nil
}

// GetPool returns one pool by id.
func (s *PoolService) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: get pool %q: %w", poolID, err)
	}
	return pool, nil
}

// ListPools returns pools with pagination.
func (s *PoolService) ListPools(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error) {
	pools, err := s.pools.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list pools: %w", err)
	}
	return pools, nil
}

func (s *PoolService) publishPrices(ctx context.Context, pool *domain.Pool) {
	mm, err := amm.New(pool.LiquidityMicros)
	if err != nil {
		return
	}
	prices := mm.Prices(pool.ShareVector())
	now := time.Now().UTC()
	update := make(map[string]float64, len(prices))
	for i, o := range pool.Outcomes {
		update[o.ID] = domain.FromMicros(prices[i])
		if s.prices != nil {
			if err := s.prices.SetPrice(ctx, "pool:"+o.ID, prices[i], now); err != nil {
				s.logger.WarnContext(ctx, "pool_service: price cache set failed",
					slog.String("outcome_id", o.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	s.events.publish(ctx, ChannelPrices, map[string]any{
		"event":   "pool_prices",
		"pool_id": pool.ID,
		"prices":  update,
	})
}
