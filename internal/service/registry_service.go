package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Archiver exports a resolved pool or market to cold storage. Archival is
// best-effort: a failure is logged and never unwinds a resolution.
type Archiver interface {
	ArchivePool(ctx context.Context, pool domain.Pool, positions []domain.Position) error
	ArchiveMarket(ctx context.Context, market domain.Market, fills []domain.Fill) error
}

// RegistryService owns pool and market lifecycle: creation, locking, and the
// resolution payout pass.
type RegistryService struct {
	pools     domain.PoolStore
	markets   domain.MarketStore
	orders    domain.OrderStore
	positions domain.PositionStore
	fills     domain.FillStore
	ledger    domain.LedgerStore
	locks     *EntityLocks
	events    publisher
	archiver  Archiver // optional
	logger    *slog.Logger
}

// NewRegistryService creates a RegistryService. archiver may be nil.
func NewRegistryService(
	pools domain.PoolStore,
	markets domain.MarketStore,
	orders domain.OrderStore,
	positions domain.PositionStore,
	fills domain.FillStore,
	ledger domain.LedgerStore,
	bus domain.SignalBus,
	locks *EntityLocks,
	archiver Archiver,
	logger *slog.Logger,
) *RegistryService {
	return &RegistryService{
		pools:     pools,
		markets:   markets,
		orders:    orders,
		positions: positions,
		fills:     fills,
		ledger:    ledger,
		locks:     locks,
		events:    publisher{bus: bus, logger: logger},
		archiver:  archiver,
		logger:    logger,
	}
}

// CreatePool creates an open pool over the given participants. The liquidity
// parameter is validated here and immutable afterwards.
func (s *RegistryService) CreatePool(ctx context.Context, seasonID string, kind domain.OutcomeKind, liquidityMicros int64, participants []string) (domain.Pool, error) {
	if liquidityMicros <= 0 {
		return domain.Pool{}, domain.ErrInvalidLiquidity
	}
	if len(participants) < 2 {
		return domain.Pool{}, domain.ErrInvalidOutcome
	}
	if kind != domain.OutcomeKindTeam && kind != domain.OutcomeKindDriver {
		return domain.Pool{}, domain.ErrInvalidOutcome
	}

	now := time.Now().UTC()
	pool := domain.Pool{
		ID:              uuid.New().String(),
		SeasonID:        seasonID,
		Kind:            kind,
		Status:          domain.PoolStatusOpen,
		LiquidityMicros: liquidityMicros,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, participant := range participants {
		pool.Outcomes = append(pool.Outcomes, domain.Outcome{
			ID:          uuid.New().String(),
			PoolID:      pool.ID,
			Participant: participant,
		})
	}

	if err := s.pools.Create(ctx, pool); err != nil {
		return domain.Pool{}, fmt.Errorf("registry_service: create pool: %w", err)
	}

	s.logger.InfoContext(ctx, "registry_service: pool created",
		slog.String("pool_id", pool.ID),
		slog.String("season_id", seasonID),
		slog.Int("outcomes", len(pool.Outcomes)),
	)
	return pool, nil
}

// CreateMarket creates an open binary market for one participant.
func (s *RegistryService) CreateMarket(ctx context.Context, seasonID, participant, question string) (domain.Market, error) {
	now := time.Now().UTC()
	market := domain.Market{
		ID:          uuid.New().String(),
		SeasonID:    seasonID,
		Participant: participant,
		Question:    question,
		Status:      domain.MarketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("registry_service: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "registry_service: market created",
		slog.String("market_id", market.ID),
		slog.String("participant", participant),
	)
	return market, nil
}

// LockPool stops new trading on a pool without touching positions.
func (s *RegistryService) LockPool(ctx context.Context, poolID string) error {
	unlock := s.locks.LockPool(poolID)
	defer unlock()

	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return fmt.Errorf("registry_service: get pool %q: %w", poolID, err)
	}
	switch pool.Status {
	case domain.PoolStatusLocked:
		return nil
	case domain.PoolStatusResolved:
		return domain.ErrAlreadyResolved
	}
	pool.Status = domain.PoolStatusLocked
	pool.UpdatedAt = time.Now().UTC()
	if err := s.pools.Update(ctx, pool); err != nil {
		return fmt.Errorf("registry_service: update pool %q: %w", poolID, err)
	}
	return nil
}

// LockMarket stops new trading on a market without touching positions or
// resting orders.
func (s *RegistryService) LockMarket(ctx context.Context, marketID string) error {
	unlock := s.locks.LockMarket(marketID)
	defer unlock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return fmt.Errorf("registry_service: get market %q: %w", marketID, err)
	}
	switch market.Status {
	case domain.MarketStatusLocked:
		return nil
	case domain.MarketStatusResolved:
		return domain.ErrAlreadyResolved
	}
	market.Status = domain.MarketStatusLocked
	market.UpdatedAt = time.Now().UTC()
	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("registry_service: update market %q: %w", marketID, err)
	}
	return nil
}

// ResolvePool pays every holder of the winning outcome $1 per share and
// freezes the pool. Resolving an already-resolved pool is a no-op, so a
// retried resolution never double-pays.
func (s *RegistryService) ResolvePool(ctx context.Context, poolID, winnerOutcomeID string) error {
	unlock := s.locks.LockPool(poolID)
	defer unlock()

	pool, err := s.pools.Get(ctx, poolID)
	if err != nil {
		return fmt.Errorf("registry_service: get pool %q: %w", poolID, err)
	}
	if pool.Status == domain.PoolStatusResolved {
		return nil
	}
	if _, ok := pool.Outcome(winnerOutcomeID); !ok {
		return domain.ErrInvalidOutcome
	}

	positions, err := s.positions.ListByPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("registry_service: list pool positions: %w", err)
	}

	now := time.Now().UTC()

	// One share of the winning outcome redeems for exactly $1, so the
	// credit in micros equals the share count in micro-shares.
	for _, pos := range positions {
		if pos.OutcomeID != winnerOutcomeID || pos.SharesMicros <= 0 {
			continue
		}
		if err := s.payoutPosition(ctx, pos, now); err != nil {
			return err
		}
	}
	pool.Status = domain.PoolStatusResolved
	pool.WinnerOutcomeID = &winnerOutcomeID
	pool.ResolvedAt = &now
	pool.UpdatedAt = now
	if err := s.pools.Update(ctx, pool); err != nil {
		return fmt.Errorf("registry_service: update pool %q: %w", poolID, err)
	}

	s.events.publish(ctx, ChannelResolutions, map[string]any{
		"event":   "pool_resolved",
		"pool_id": poolID,
		"winner":  winnerOutcomeID,
	})
	s.logger.InfoContext(ctx, "registry_service: pool resolved",
		slog.String("pool_id", poolID),
		slog.String("winner_outcome_id", winnerOutcomeID),
	)

	s.archivePool(ctx, pool, positions)
	return nil
}

// ResolveMarket credits holders of the winning side $1 per share, cancels
// resting orders releasing their collateral, and freezes the market.
// Idempotent in the same way as ResolvePool.
func (s *RegistryService) ResolveMarket(ctx context.Context, marketID string, winner domain.OrderOutcome) error {
	if winner != domain.OutcomeYes && winner != domain.OutcomeNo {
		return domain.ErrInvalidOutcome
	}

	unlock := s.locks.LockMarket(marketID)
	defer unlock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return fmt.Errorf("registry_service: get market %q: %w", marketID, err)
	}
	if market.Status == domain.MarketStatusResolved {
		return nil
	}

	now := time.Now().UTC()

	// Release every resting order's remaining reserve before paying out.
	open, err := s.orders.ListOpenByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("registry_service: list open orders: %w", err)
	}
	for _, order := range open {
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		switch {
		case order.Side == domain.OrderSideBuy && order.Remaining() > 0:
			remaining := order.PriceMicros * order.Remaining()
			unlockUser := s.locks.LockUser(order.Wallet)
			err := s.ledger.Unlock(ctx, order.Wallet, remaining)
			unlockUser()
			if err != nil {
				return fmt.Errorf("registry_service: release reserve for %q: %w", order.ID, err)
			}
			market.LockedCollateralMicros -= remaining
		case order.Side == domain.OrderSideSell && order.Remaining() > 0:
			// Hand pledged shares back before the payout pass reads positions.
			key := domain.PositionKey{
				Wallet: order.Wallet, MarketID: marketID, Outcome: order.Outcome,
			}
			pos, err := s.positions.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("registry_service: release shares for %q: %w", order.ID, err)
			}
			pos.ReservedMicros -= order.Remaining() * domain.Micros
			pos.UpdatedAt = now
			if err := s.positions.Upsert(ctx, pos); err != nil {
				return fmt.Errorf("registry_service: release shares for %q: %w", order.ID, err)
			}
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return fmt.Errorf("registry_service: cancel order %q: %w", order.ID, err)
		}
	}

	positions, err := s.positions.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("registry_service: list market positions: %w", err)
	}
	for _, pos := range positions {
		if pos.Outcome != winner || pos.SharesMicros <= 0 {
			continue
		}
		if err := s.payoutPosition(ctx, pos, now); err != nil {
			return err
		}
	}

	market.Status = domain.MarketStatusResolved
	market.WinningOutcome = &winner
	market.ResolvedAt = &now
	market.UpdatedAt = now
	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("registry_service: update market %q: %w", marketID, err)
	}

	s.events.publish(ctx, ChannelResolutions, map[string]any{
		"event":     "market_resolved",
		"market_id": marketID,
		"winner":    winner,
	})
	s.logger.InfoContext(ctx, "registry_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("winner", string(winner)),
	)

	s.archiveMarket(ctx, market, marketID)
	return nil
}

// GetMarket returns one market by id.
func (s *RegistryService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("registry_service: get market %q: %w", marketID, err)
	}
	return market, nil
}

// ListMarkets returns markets with pagination.
func (s *RegistryService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("registry_service: list markets: %w", err)
	}
	return markets, nil
}

// payoutPosition credits a winning position at $1 per share and zeroes the
// stored holding in the same pass. The zeroed row is the paid marker: a
// resolution retried after a mid-pass failure skips wallets already paid.
func (s *RegistryService) payoutPosition(ctx context.Context, pos domain.Position, now time.Time) error {
	amount := pos.SharesMicros

	unlockUser := s.locks.LockUser(pos.Wallet)
	err := s.ledger.Credit(ctx, pos.Wallet, amount)
	unlockUser()
	if err != nil {
		return fmt.Errorf("registry_service: credit %s: %w", pos.Wallet, err)
	}

	pos.SharesMicros = 0
	pos.ReservedMicros = 0
	pos.UpdatedAt = now
	if err := s.positions.Upsert(ctx, pos); err != nil {
		// The credit landed but the paid marker did not; take the money back
		// so a retry cannot pay this wallet twice.
		unlockUser := s.locks.LockUser(pos.Wallet)
		_ = s.ledger.Debit(ctx, pos.Wallet, amount)
		unlockUser()
		return fmt.Errorf("registry_service: mark paid %s: %w", pos.Wallet, err)
	}
	return nil
}

func (s *RegistryService) archivePool(ctx context.Context, pool domain.Pool, positions []domain.Position) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchivePool(ctx, pool, positions); err != nil {
		s.logger.WarnContext(ctx, "registry_service: archive pool failed",
			slog.String("pool_id", pool.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RegistryService) archiveMarket(ctx context.Context, market domain.Market, marketID string) {
	if s.archiver == nil {
		return
	}
	fills, err := s.fills.ListByMarket(ctx, marketID, domain.ListOpts{})
	if err != nil {
		s.logger.WarnContext(ctx, "registry_service: list fills for archive failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.archiver.ArchiveMarket(ctx, market, fills); err != nil {
		s.logger.WarnContext(ctx, "registry_service: archive market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
