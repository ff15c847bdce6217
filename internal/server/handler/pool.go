package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// PoolService defines the methods the pool handler requires from the trading
// side of the service layer.
type PoolService interface {
	GetPool(ctx context.Context, poolID string) (domain.Pool, error)
	ListPools(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error)
	Prices(ctx context.Context, poolID string) (map[string]int64, error)
	Quote(ctx context.Context, poolID, outcomeID string, deltaMicros int64) (domain.PoolQuote, error)
	Execute(ctx context.Context, poolID, outcomeID string, deltaMicros, quotedCostMicros int64, wallet string) (domain.PoolQuote, error)
}

// PoolRegistry defines the lifecycle methods the pool handler requires.
type PoolRegistry interface {
	CreatePool(ctx context.Context, seasonID string, kind domain.OutcomeKind, liquidityMicros int64, participants []string) (domain.Pool, error)
	LockPool(ctx context.Context, poolID string) error
	ResolvePool(ctx context.Context, poolID, winnerOutcomeID string) error
}

// PoolHandler serves championship-pool HTTP endpoints.
type PoolHandler struct {
	pools    PoolService
	registry PoolRegistry
	logger   *slog.Logger
}

// NewPoolHandler creates a PoolHandler with the given services and logger.
func NewPoolHandler(pools PoolService, registry PoolRegistry, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		pools:    pools,
		registry: registry,
		logger:   logger,
	}
}

// listPoolsResponse wraps the list endpoint output with pagination metadata.
type listPoolsResponse struct {
	Pools  []domain.Pool `json:"pools"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListPools returns pools with pagination.
// GET /api/pools?limit=50&offset=0
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	pools, err := h.pools.ListPools(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list pools")
		return
	}
	if pools == nil {
		pools = []domain.Pool{}
	}

	writeJSON(w, http.StatusOK, listPoolsResponse{
		Pools:  pools,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetPool returns a single pool, outcomes included.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	pool, err := h.pools.GetPool(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get pool")
		return
	}

	writeJSON(w, http.StatusOK, pool)
}

// GetPrices returns the current marginal price of every outcome in micros.
// GET /api/pools/{id}/prices
func (h *PoolHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	prices, err := h.pools.Prices(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id": id,
		"prices":  prices,
	})
}

// quoteRequest asks the AMM to price a trade without executing it. A positive
// delta buys shares, a negative delta sells them.
type quoteRequest struct {
	OutcomeID         string `json:"outcome_id"`
	DeltaSharesMicros int64  `json:"delta_shares_micros"`
}

// Quote prices a prospective AMM trade.
// POST /api/pools/{id}/quote
func (h *PoolHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}

	quote, err := h.pools.Quote(r.Context(), id, req.OutcomeID, req.DeltaSharesMicros)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to quote trade")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// tradeRequest executes a previously quoted AMM trade. QuotedCostMicros is
// the cost the client saw; execution is rejected if the live cost has drifted
// beyond the configured tolerance.
type tradeRequest struct {
	Wallet            string `json:"wallet"`
	OutcomeID         string `json:"outcome_id"`
	DeltaSharesMicros int64  `json:"delta_shares_micros"`
	QuotedCostMicros  int64  `json:"quoted_cost_micros"`
}

// Trade executes an AMM buy or sell against the pool.
// POST /api/pools/{id}/trades
func (h *PoolHandler) Trade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet is required", true)
		return
	}

	quote, err := h.pools.Execute(r.Context(), id, req.OutcomeID, req.DeltaSharesMicros, req.QuotedCostMicros, req.Wallet)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to execute trade")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// createPoolRequest describes a new championship pool.
type createPoolRequest struct {
	SeasonID        string   `json:"season_id"`
	Kind            string   `json:"kind"`
	LiquidityMicros int64    `json:"liquidity_micros"`
	Participants    []string `json:"participants"`
}

// CreatePool registers a new pool with uniform initial prices.
// POST /api/pools
func (h *PoolHandler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.SeasonID == "" {
		writeError(w, http.StatusBadRequest, "season_id is required", true)
		return
	}

	pool, err := h.registry.CreatePool(r.Context(), req.SeasonID, domain.OutcomeKind(req.Kind), req.LiquidityMicros, req.Participants)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create pool")
		return
	}

	writeJSON(w, http.StatusCreated, pool)
}

// LockPool halts trading on a pool ahead of resolution.
// POST /api/pools/{id}/lock
func (h *PoolHandler) LockPool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	if err := h.registry.LockPool(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err, "failed to lock pool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "locked",
		"pool_id": id,
	})
}

// resolvePoolRequest names the winning outcome.
type resolvePoolRequest struct {
	WinnerOutcomeID string `json:"winner_outcome_id"`
}

// ResolvePool settles a pool: winning shares redeem at one dollar each.
// Resolution is idempotent, so retries are safe.
// POST /api/pools/{id}/resolve
func (h *PoolHandler) ResolvePool(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing pool id", true)
		return
	}

	var req resolvePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}

	if err := h.registry.ResolvePool(r.Context(), id, req.WinnerOutcomeID); err != nil {
		respondError(w, r, h.logger, err, "failed to resolve pool")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "resolved",
		"pool_id": id,
		"winner":  req.WinnerOutcomeID,
	})
}
