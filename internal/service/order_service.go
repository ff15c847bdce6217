package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paddockmarkets/paddock/internal/book"
	"github.com/paddockmarkets/paddock/internal/domain"
)

// PlaceOrderRequest carries the parameters of a new limit order.
type PlaceOrderRequest struct {
	MarketID    string
	Wallet      string
	Outcome     domain.OrderOutcome
	Side        domain.OrderSide
	PriceMicros int64
	Quantity    int64
	ExpiresAt   *time.Time
}

// OrderService owns the order-book engine: placement, matching, cancellation
// and the collateral accounting around resting buys.
type OrderService struct {
	markets   domain.MarketStore
	orders    domain.OrderStore
	positions domain.PositionStore
	ledger    domain.LedgerStore
	fills     domain.FillStore
	prices    domain.PriceCache
	locks     *EntityLocks
	events    publisher
	logger    *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(
	markets domain.MarketStore,
	orders domain.OrderStore,
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	fills domain.FillStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	locks *EntityLocks,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		markets:   markets,
		orders:    orders,
		positions: positions,
		ledger:    ledger,
		fills:     fills,
		prices:    prices,
		locks:     locks,
		events:    publisher{bus: bus, logger: logger},
		logger:    logger,
	}
}

// PlaceOrder places a sell order. Sells relinquish shares the user already
// holds, so no external signature is involved. Buys reserve on-chain
// collateral and must go through the settlement coordinator's build/submit
// protocol; a direct buy is rejected.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, []domain.Fill, error) {
	if req.Side == domain.OrderSideBuy {
		return domain.Order{}, nil, domain.ErrSignatureRequired
	}
	return s.place(ctx, req)
}

// ApplyBuy places a buy order whose collateral transfer has been authorized
// by a consumed settlement. Only the settlement coordinator calls this.
func (s *OrderService) ApplyBuy(ctx context.Context, req PlaceOrderRequest) (domain.Order, []domain.Fill, error) {
	if req.Side != domain.OrderSideBuy {
		return domain.Order{}, nil, domain.ErrInvalidQuantity
	}
	return s.place(ctx, req)
}

func validateOrder(req PlaceOrderRequest) error {
	if req.PriceMicros < domain.MinPriceMicros || req.PriceMicros > domain.MaxPriceMicros {
		return domain.ErrInvalidPrice
	}
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if req.Outcome != domain.OutcomeYes && req.Outcome != domain.OutcomeNo {
		return domain.ErrInvalidOutcome
	}
	return nil
}

func (s *OrderService) place(ctx context.Context, req PlaceOrderRequest) (domain.Order, []domain.Fill, error) {
	if err := validateOrder(req); err != nil {
		return domain.Order{}, nil, err
	}

	unlockMarket := s.locks.LockMarket(req.MarketID)
	defer unlockMarket()

	market, err := s.markets.Get(ctx, req.MarketID)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: get market %q: %w", req.MarketID, err)
	}
	if market.Status != domain.MarketStatusOpen {
		return domain.Order{}, nil, domain.ErrMarketNotOpen
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.New().String(),
		MarketID:    req.MarketID,
		Wallet:      req.Wallet,
		Outcome:     req.Outcome,
		Side:        req.Side,
		PriceMicros: req.PriceMicros,
		Quantity:    req.Quantity,
		Status:      domain.OrderStatusOpen,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	reserve := req.PriceMicros * req.Quantity

	if req.Side == domain.OrderSideSell {
		// The seller must hold shares not already pledged to another resting
		// sell; the full quantity is escrowed until it fills, cancels, or
		// expires.
		pos, err := s.marketPosition(ctx, req.Wallet, req.MarketID, req.Outcome, now)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if pos.SellableMicros() < req.Quantity*domain.Micros {
			return domain.Order{}, nil, domain.ErrInsufficientShares
		}
		pos.ReservedMicros += req.Quantity * domain.Micros
		pos.UpdatedAt = now
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return domain.Order{}, nil, fmt.Errorf("order_service: reserve shares: %w", err)
		}
	} else {
		// A buy of quantity at price reserves the order's maximum
		// pair-minting cost up front.
		unlockUser := s.locks.LockUser(req.Wallet)
		err := s.ledger.Lock(ctx, req.Wallet, reserve)
		unlockUser()
		if err != nil {
			return domain.Order{}, nil, fmt.Errorf("order_service: lock collateral: %w", err)
		}
		market.LockedCollateralMicros += reserve
	}

	// From here, any failure must hand the order's remaining escrow back:
	// the locked collateral for a buy, the pledged shares for a sell. Fills
	// already applied stay applied; only the dangling reservation is undone.
	committed := false
	defer func() {
		if committed {
			return
		}
		s.releaseReserve(ctx, &market, &order)
		if order.Terminal() {
			return
		}
		order.Status = domain.OrderStatusCancelled
		if _, err := s.orders.Get(ctx, order.ID); err == nil {
			if err := s.orders.Update(ctx, order); err != nil {
				s.logger.ErrorContext(ctx, "order_service: void failed order",
					slog.String("order_id", order.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	open, err := s.orders.ListOpenByMarket(ctx, req.MarketID)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: list open orders: %w", err)
	}
	resting := make([]*domain.Order, len(open))
	for i := range open {
		resting[i] = &open[i]
	}

	matches := book.MatchIncoming(&order, resting, now)

	var fills []domain.Fill
	for _, m := range matches {
		fill, err := s.applyMatch(ctx, &market, &order, m, now)
		if err != nil {
			return domain.Order{}, nil, err
		}
		fills = append(fills, fill)
	}

	// Persist every resting order the matching pass touched, including ones
	// lazily expired. Expired buys get their remaining reserve back.
	for _, r := range resting {
		if r.UpdatedAt != now {
			continue
		}
		if r.Status == domain.OrderStatusExpired {
			s.releaseReserve(ctx, &market, r)
		}
		if err := s.orders.Update(ctx, *r); err != nil {
			return domain.Order{}, nil, fmt.Errorf("order_service: update resting order %q: %w", r.ID, err)
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: create order: %w", err)
	}
	market.UpdatedAt = now
	if err := s.markets.Update(ctx, market); err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: update market %q: %w", req.MarketID, err)
	}

	for _, fill := range fills {
		if err := s.fills.Insert(ctx, fill); err != nil {
			return domain.Order{}, nil, fmt.Errorf("order_service: insert fill: %w", err)
		}
		s.events.publish(ctx, ChannelFills, map[string]any{
			"event":     "fill",
			"market_id": fill.MarketID,
			"outcome":   fill.Outcome,
			"price":     domain.FromMicros(fill.PriceMicros),
			"quantity":  fill.Quantity,
			"minted":    fill.Minted,
		})
	}
	if len(fills) > 0 && market.LastPriceMicros != nil && s.prices != nil {
		if err := s.prices.SetPrice(ctx, "market:"+market.ID, *market.LastPriceMicros, now); err != nil {
			s.logger.WarnContext(ctx, "order_service: price cache set failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.events.publish(ctx, ChannelOrders, map[string]any{
		"event":     "order_placed",
		"order_id":  order.ID,
		"market_id": order.MarketID,
		"side":      order.Side,
		"outcome":   order.Outcome,
		"status":    order.Status,
	})

	s.logger.InfoContext(ctx, "order_service: order placed",
		slog.String("order_id", order.ID),
		slog.String("market_id", order.MarketID),
		slog.String("side", string(order.Side)),
		slog.Int64("filled", order.Filled),
		slog.Int("fills", len(fills)),
	)

	committed = true
	return order, fills, nil
}

// applyMatch moves money and shares for one match. The market lock is held;
// wallet locks are taken per ledger mutation.
func (s *OrderService) applyMatch(ctx context.Context, market *domain.Market, taker *domain.Order, m book.Match, now time.Time) (domain.Fill, error) {
	maker := m.Maker
	qty := m.Quantity
	p := m.PriceMicros
	notional := p * qty

	unlockUsers := s.locks.LockUsers(taker.Wallet, maker.Wallet)
	defer unlockUsers()

	switch {
	case taker.Side == domain.OrderSideBuy && m.Minted:
		// Both sides are fresh capital: mint qty complementary pairs. The
		// taker pays the complement of the maker's bid; the maker pays its
		// own limit exactly.
		if err := s.ledger.SpendLocked(ctx, taker.Wallet, notional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: taker spend: %w", err)
		}
		if refund := (taker.PriceMicros - p) * qty; refund > 0 {
			if err := s.ledger.Unlock(ctx, taker.Wallet, refund); err != nil {
				return domain.Fill{}, fmt.Errorf("order_service: taker refund: %w", err)
			}
		}
		makerNotional := maker.PriceMicros * qty
		if err := s.ledger.SpendLocked(ctx, maker.Wallet, makerNotional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: maker spend: %w", err)
		}
		market.LockedCollateralMicros -= taker.PriceMicros*qty + makerNotional
		market.OutstandingPairs += qty

		if err := s.applyPositionBuy(ctx, taker.Wallet, market.ID, taker.Outcome, qty, p, now); err != nil {
			return domain.Fill{}, err
		}
		if err := s.applyPositionBuy(ctx, maker.Wallet, market.ID, maker.Outcome, qty, maker.PriceMicros, now); err != nil {
			return domain.Fill{}, err
		}

	case taker.Side == domain.OrderSideBuy:
		// Transfer existing shares from the resting seller.
		if err := s.ledger.SpendLocked(ctx, taker.Wallet, notional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: taker spend: %w", err)
		}
		if refund := (taker.PriceMicros - p) * qty; refund > 0 {
			if err := s.ledger.Unlock(ctx, taker.Wallet, refund); err != nil {
				return domain.Fill{}, fmt.Errorf("order_service: taker refund: %w", err)
			}
		}
		market.LockedCollateralMicros -= taker.PriceMicros * qty
		if err := s.ledger.Credit(ctx, maker.Wallet, notional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: maker credit: %w", err)
		}

		if err := s.applyPositionBuy(ctx, taker.Wallet, market.ID, taker.Outcome, qty, p, now); err != nil {
			return domain.Fill{}, err
		}
		if err := s.applyPositionSell(ctx, maker.Wallet, market.ID, maker.Outcome, qty, p, now); err != nil {
			return domain.Fill{}, err
		}

	default:
		// Taker sell against a resting buy at the resting bid.
		if err := s.ledger.SpendLocked(ctx, maker.Wallet, notional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: maker spend: %w", err)
		}
		market.LockedCollateralMicros -= notional
		if err := s.ledger.Credit(ctx, taker.Wallet, notional); err != nil {
			return domain.Fill{}, fmt.Errorf("order_service: taker credit: %w", err)
		}

		if err := s.applyPositionBuy(ctx, maker.Wallet, market.ID, maker.Outcome, qty, p, now); err != nil {
			return domain.Fill{}, err
		}
		if err := s.applyPositionSell(ctx, taker.Wallet, market.ID, taker.Outcome, qty, p, now); err != nil {
			return domain.Fill{}, err
		}
	}

	// Last traded price is tracked in YES terms.
	yesPrice := p
	if taker.Outcome == domain.OutcomeNo {
		yesPrice = domain.Micros - p
	}
	market.LastPriceMicros = &yesPrice

	return domain.Fill{
		ID:           uuid.New().String(),
		MarketID:     market.ID,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		Outcome:      taker.Outcome,
		PriceMicros:  p,
		Quantity:     qty,
		Minted:       m.Minted,
		CreatedAt:    now,
	}, nil
}

// CancelOrder cancels a non-terminal order. Only the owner may cancel;
// unfilled buy collateral is released back to the wallet.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, wallet string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}
	if order.Wallet != wallet {
		return domain.ErrNotOrderOwner
	}

	unlockMarket := s.locks.LockMarket(order.MarketID)
	defer unlockMarket()

	// Re-read under the lock: a concurrent fill may have advanced it.
	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}

	market, err := s.markets.Get(ctx, order.MarketID)
	if err != nil {
		return fmt.Errorf("order_service: get market %q: %w", order.MarketID, err)
	}

	now := time.Now().UTC()
	if order.Terminal() {
		return domain.ErrOrderTerminal
	}
	if order.ExpiredAt(now) {
		order.Status = domain.OrderStatusExpired
	} else {
		order.Status = domain.OrderStatusCancelled
	}
	order.UpdatedAt = now
	s.releaseReserve(ctx, &market, &order)

	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("order_service: update order %q: %w", orderID, err)
	}
	market.UpdatedAt = now
	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("order_service: update market %q: %w", order.MarketID, err)
	}

	s.events.publish(ctx, ChannelOrders, map[string]any{
		"event":    "order_cancelled",
		"order_id": order.ID,
		"status":   order.Status,
	})

	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("order_id", order.ID),
		slog.String("status", string(order.Status)),
	)
	return nil
}

// releaseReserve returns an order's remaining escrow: locked collateral for
// buys, pledged shares for sells. Best-effort; failures are logged, never
// fatal to the caller.
func (s *OrderService) releaseReserve(ctx context.Context, market *domain.Market, order *domain.Order) {
	remaining := order.Remaining()
	if remaining <= 0 {
		return
	}

	if order.Side == domain.OrderSideSell {
		now := time.Now().UTC()
		pos, err := s.marketPosition(ctx, order.Wallet, order.MarketID, order.Outcome, now)
		if err == nil {
			pos.ReservedMicros -= remaining * domain.Micros
			pos.UpdatedAt = now
			err = s.positions.Upsert(ctx, pos)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "order_service: release share reserve failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	locked := order.PriceMicros * remaining
	unlockUser := s.locks.LockUser(order.Wallet)
	defer unlockUser()
	if err := s.ledger.Unlock(ctx, order.Wallet, locked); err != nil {
		s.logger.ErrorContext(ctx, "order_service: release reserve failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	market.LockedCollateralMicros -= locked
}

// GetOrder returns one order by id.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}
	return order, nil
}

// ListByWallet returns a wallet's orders, newest first.
func (s *OrderService) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list by wallet: %w", err)
	}
	return orders, nil
}

// BookLevel is one aggregated price level of the displayed book.
type BookLevel struct {
	PriceMicros int64 `json:"price_micros"`
	Quantity    int64 `json:"quantity"`
}

// BookSnapshot is the aggregated resting liquidity of one market.
type BookSnapshot struct {
	MarketID string                                            `json:"market_id"`
	Levels   map[domain.OrderOutcome]map[domain.OrderSide][]BookLevel `json:"levels"`
}

// Book aggregates open orders into price levels for display.
func (s *OrderService) Book(ctx context.Context, marketID string) (BookSnapshot, error) {
	open, err := s.orders.ListOpenByMarket(ctx, marketID)
	if err != nil {
		return BookSnapshot{}, fmt.Errorf("order_service: list open orders: %w", err)
	}

	agg := make(map[domain.OrderOutcome]map[domain.OrderSide]map[int64]int64)
	now := time.Now().UTC()
	for _, o := range open {
		if o.ExpiredAt(now) {
			continue
		}
		if agg[o.Outcome] == nil {
			agg[o.Outcome] = make(map[domain.OrderSide]map[int64]int64)
		}
		if agg[o.Outcome][o.Side] == nil {
			agg[o.Outcome][o.Side] = make(map[int64]int64)
		}
		agg[o.Outcome][o.Side][o.PriceMicros] += o.Remaining()
	}

	snap := BookSnapshot{
		MarketID: marketID,
		Levels:   make(map[domain.OrderOutcome]map[domain.OrderSide][]BookLevel),
	}
	for outcome, sides := range agg {
		snap.Levels[outcome] = make(map[domain.OrderSide][]BookLevel)
		for side, byPrice := range sides {
			levels := make([]BookLevel, 0, len(byPrice))
			for price, qty := range byPrice {
				levels = append(levels, BookLevel{PriceMicros: price, Quantity: qty})
			}
			sort.Slice(levels, func(i, j int) bool {
				// Bids best-first descending, asks ascending.
				if side == domain.OrderSideBuy {
					return levels[i].PriceMicros > levels[j].PriceMicros
				}
				return levels[i].PriceMicros < levels[j].PriceMicros
			})
			snap.Levels[outcome][side] = levels
		}
	}
	return snap, nil
}

// marketPosition loads or initializes a market position.
func (s *OrderService) marketPosition(ctx context.Context, wallet, marketID string, outcome domain.OrderOutcome, now time.Time) (domain.Position, error) {
	key := domain.PositionKey{Wallet: wallet, MarketID: marketID, Outcome: outcome}
	pos, err := s.positions.Get(ctx, key)
	if err == nil {
		return pos, nil
	}
	if err != domain.ErrNotFound {
		return domain.Position{}, fmt.Errorf("order_service: get position: %w", err)
	}
	return domain.Position{
		ID:        uuid.New().String(),
		Wallet:    wallet,
		MarketID:  marketID,
		Outcome:   outcome,
		CreatedAt: now,
	}, nil
}

func (s *OrderService) applyPositionBuy(ctx context.Context, wallet, marketID string, outcome domain.OrderOutcome, qty, priceMicros int64, now time.Time) error {
	pos, err := s.marketPosition(ctx, wallet, marketID, outcome, now)
	if err != nil {
		return err
	}
	pos.ApplyBuy(qty*domain.Micros, priceMicros)
	pos.UpdatedAt = now
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("order_service: upsert position: %w", err)
	}
	return nil
}

func (s *OrderService) applyPositionSell(ctx context.Context, wallet, marketID string, outcome domain.OrderOutcome, qty, priceMicros int64, now time.Time) error {
	pos, err := s.marketPosition(ctx, wallet, marketID, outcome, now)
	if err != nil {
		return err
	}
	// The filled quantity was escrowed at placement; the fill consumes the
	// escrow and the shares together.
	pos.ReservedMicros -= qty * domain.Micros
	pos.ApplySell(qty*domain.Micros, priceMicros)
	pos.UpdatedAt = now
	if err := s.positions.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("order_service: upsert position: %w", err)
	}
	return nil
}
