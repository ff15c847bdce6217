package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/service"
)

// MarketRegistry defines the lifecycle methods the market handler requires.
type MarketRegistry interface {
	CreateMarket(ctx context.Context, seasonID, participant, question string) (domain.Market, error)
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	LockMarket(ctx context.Context, marketID string) error
	ResolveMarket(ctx context.Context, marketID string, winner domain.OrderOutcome) error
}

// BookSource aggregates resting liquidity for display.
type BookSource interface {
	Book(ctx context.Context, marketID string) (service.BookSnapshot, error)
}

// MarketHandler serves binary-market HTTP endpoints.
type MarketHandler struct {
	registry MarketRegistry
	books    BookSource
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and logger.
func NewMarketHandler(registry MarketRegistry, books BookSource, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		registry: registry,
		books:    books,
		logger:   logger,
	}
}

// listMarketsResponse wraps the list endpoint output with pagination metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.registry.ListMarkets(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id", true)
		return
	}

	market, err := h.registry.GetMarket(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetBook returns the aggregated order book of a market.
// GET /api/markets/{id}/book
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id", true)
		return
	}

	book, err := h.books.Book(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to build order book")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// createMarketRequest describes a new YES/NO market.
type createMarketRequest struct {
	SeasonID    string `json:"season_id"`
	Participant string `json:"participant"`
	Question    string `json:"question"`
}

// CreateMarket registers a new binary market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.SeasonID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "season_id and question are required", true)
		return
	}

	market, err := h.registry.CreateMarket(r.Context(), req.SeasonID, req.Participant, req.Question)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// LockMarket halts trading on a market ahead of resolution.
// POST /api/markets/{id}/lock
func (h *MarketHandler) LockMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id", true)
		return
	}

	if err := h.registry.LockMarket(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err, "failed to lock market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "locked",
		"market_id": id,
	})
}

// resolveMarketRequest names the winning side of the binary contract.
type resolveMarketRequest struct {
	Winner string `json:"winner"`
}

// ResolveMarket settles a market: open orders are cancelled with reserves
// released, and winning shares redeem at one dollar each. Idempotent.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id", true)
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}

	if err := h.registry.ResolveMarket(r.Context(), id, domain.OrderOutcome(req.Winner)); err != nil {
		respondError(w, r, h.logger, err, "failed to resolve market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "resolved",
		"market_id": id,
		"winner":    req.Winner,
	})
}
