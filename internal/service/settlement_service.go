package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/paddockmarkets/paddock/internal/crypto"
	"github.com/paddockmarkets/paddock/internal/domain"
)

// DefaultSettlementTTL bounds how long a built settlement stays submittable.
const DefaultSettlementTTL = 5 * time.Minute

// sweepLockKey is the distributed lock key for the expiry sweeper, so a
// multi-instance deployment runs one sweep at a time.
const sweepLockKey = "settlement:sweep"

// BuildSettlementRequest describes the order-book buy a user wants to settle.
type BuildSettlementRequest struct {
	MarketID    string
	Wallet      string
	Outcome     domain.OrderOutcome
	PriceMicros int64
	Quantity    int64
}

// BuildSettlementResult returns the recorded terms plus the unsigned payload
// the client must have signed externally.
type BuildSettlementResult struct {
	Settlement domain.PendingSettlement
	Payload    crypto.SettlementPayload
}

// SettlementService implements the two-phase build/sign/submit protocol that
// gates order-book buys on an externally produced signature. It never holds
// user keys: it records terms, and later verifies a signature before applying
// the trade.
type SettlementService struct {
	settlements domain.SettlementStore
	markets     domain.MarketStore
	orders      *OrderService
	lockMgr     domain.LockManager
	events      publisher
	ttl         time.Duration
	chainID     int
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService. A zero ttl selects
// DefaultSettlementTTL.
func NewSettlementService(
	settlements domain.SettlementStore,
	markets domain.MarketStore,
	orders *OrderService,
	lockMgr domain.LockManager,
	bus domain.SignalBus,
	ttl time.Duration,
	chainID int,
	logger *slog.Logger,
) *SettlementService {
	if ttl <= 0 {
		ttl = DefaultSettlementTTL
	}
	return &SettlementService{
		settlements: settlements,
		markets:     markets,
		orders:      orders,
		lockMgr:     lockMgr,
		events:      publisher{bus: bus, logger: logger},
		ttl:         ttl,
		chainID:     chainID,
		logger:      logger,
	}
}

// Build validates the prospective buy, records a PendingSettlement bound to a
// fresh single-use nonce, and returns the unsigned payload. Nothing is locked
// or reserved yet; collateral moves only when the signed submit arrives.
func (s *SettlementService) Build(ctx context.Context, req BuildSettlementRequest) (BuildSettlementResult, error) {
	if err := validateOrder(PlaceOrderRequest{
		MarketID:    req.MarketID,
		Wallet:      req.Wallet,
		Outcome:     req.Outcome,
		Side:        domain.OrderSideBuy,
		PriceMicros: req.PriceMicros,
		Quantity:    req.Quantity,
	}); err != nil {
		return BuildSettlementResult{}, err
	}

	market, err := s.markets.Get(ctx, req.MarketID)
	if err != nil {
		return BuildSettlementResult{}, fmt.Errorf("settlement_service: get market %q: %w", req.MarketID, err)
	}
	if market.Status != domain.MarketStatusOpen {
		return BuildSettlementResult{}, domain.ErrMarketNotOpen
	}

	now := time.Now().UTC()
	settlement := domain.PendingSettlement{
		ID:               uuid.New().String(),
		Nonce:            uuid.New().String(),
		Wallet:           req.Wallet,
		MarketID:         req.MarketID,
		Outcome:          req.Outcome,
		Side:             domain.OrderSideBuy,
		PriceMicros:      req.PriceMicros,
		Quantity:         req.Quantity,
		CollateralMicros: req.PriceMicros * req.Quantity,
		Status:           domain.SettlementStatusPending,
		ExpiresAt:        now.Add(s.ttl),
		CreatedAt:        now,
	}

	if err := s.settlements.Create(ctx, settlement); err != nil {
		return BuildSettlementResult{}, fmt.Errorf("settlement_service: create settlement: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement_service: settlement built",
		slog.String("nonce", settlement.Nonce),
		slog.String("market_id", settlement.MarketID),
		slog.String("wallet", settlement.Wallet),
		slog.Int64("collateral_micros", settlement.CollateralMicros),
	)

	return BuildSettlementResult{
		Settlement: settlement,
		Payload:    payloadFor(settlement),
	}, nil
}

// payloadFor derives the unsigned EIP-712 payload from recorded terms.
func payloadFor(s domain.PendingSettlement) crypto.SettlementPayload {
	code := crypto.OutcomeCodeYes
	if s.Outcome == domain.OutcomeNo {
		code = crypto.OutcomeCodeNo
	}
	return crypto.SettlementPayload{
		Nonce:       s.Nonce,
		Wallet:      s.Wallet,
		MarketID:    s.MarketID,
		Outcome:     code,
		PriceMicros: s.PriceMicros,
		Quantity:    s.Quantity,
		Collateral:  s.CollateralMicros,
		Expiry:      s.ExpiresAt.Unix(),
	}
}

// Submit verifies a signed payload against the settlement recorded under
// nonce, consumes the nonce, and applies the buy through the order book. The
// checks run strictly before any mutation: a stale nonce, tampered terms, or
// a bad signature all fail with the ledger untouched, and verification
// failures leave the settlement submittable until it expires.
func (s *SettlementService) Submit(ctx context.Context, payload crypto.SettlementPayload, signatureHex, txRef string) (domain.Order, []domain.Fill, error) {
	settlement, err := s.settlements.GetByNonce(ctx, payload.Nonce)
	if err != nil {
		if err == domain.ErrNotFound {
			return domain.Order{}, nil, domain.ErrNonceUnknown
		}
		return domain.Order{}, nil, fmt.Errorf("settlement_service: get settlement: %w", err)
	}

	now := time.Now().UTC()
	switch {
	case settlement.Status == domain.SettlementStatusUsed:
		return domain.Order{}, nil, domain.ErrNonceUsed
	case settlement.Status == domain.SettlementStatusExpired || settlement.Expired(now):
		return domain.Order{}, nil, domain.ErrNonceExpired
	}

	if payloadFor(settlement) != payload {
		return domain.Order{}, nil, domain.ErrTermsMismatch
	}

	signer, err := crypto.RecoverSigner(payload, signatureHex, s.chainID)
	if err != nil || signer != common.HexToAddress(settlement.Wallet) {
		return domain.Order{}, nil, domain.ErrSignatureInvalid
	}

	if txRef == "" {
		txRef = "0x" + hex.EncodeToString(ethcrypto.Keccak256([]byte(signatureHex)))
	}

	// Consume is conditional on pending status, so of two racing submits
	// exactly one proceeds past this point.
	settlement, err = s.settlements.Consume(ctx, payload.Nonce, txRef, now)
	if err != nil {
		return domain.Order{}, nil, err
	}

	order, fills, err := s.orders.ApplyBuy(ctx, PlaceOrderRequest{
		MarketID:    settlement.MarketID,
		Wallet:      settlement.Wallet,
		Outcome:     settlement.Outcome,
		Side:        domain.OrderSideBuy,
		PriceMicros: settlement.PriceMicros,
		Quantity:    settlement.Quantity,
	})
	if err != nil {
		// The nonce is burned but no balance moved; the caller rebuilds.
		return domain.Order{}, nil, fmt.Errorf("settlement_service: apply buy: %w", err)
	}

	s.events.publish(ctx, ChannelSettlements, map[string]any{
		"event":     "settlement_applied",
		"nonce":     settlement.Nonce,
		"market_id": settlement.MarketID,
		"order_id":  order.ID,
		"tx_ref":    txRef,
	})

	s.logger.InfoContext(ctx, "settlement_service: settlement applied",
		slog.String("nonce", settlement.Nonce),
		slog.String("order_id", order.ID),
		slog.String("tx_ref", txRef),
	)

	return order, fills, nil
}

// Sweep marks expired pending settlements. Expiry is also checked lazily on
// submit; the sweep exists to reclaim them promptly for bookkeeping.
func (s *SettlementService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.settlements.ExpireBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("settlement_service: expire settlements: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "settlement_service: settlements expired",
			slog.Int64("count", n),
		)
	}
	return n, nil
}

// RunSweeper periodically runs Sweep until the context ends. When a lock
// manager is configured, each cycle runs under the distributed sweep lock so
// only one instance reaps.
func (s *SettlementService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		run := func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement_service: sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}

		if s.lockMgr == nil {
			run()
			continue
		}
		unlock, err := s.lockMgr.Acquire(ctx, sweepLockKey, interval)
		if err != nil {
			if err != domain.ErrLockHeld {
				s.logger.WarnContext(ctx, "settlement_service: sweep lock failed",
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		run()
		unlock()
	}
}
