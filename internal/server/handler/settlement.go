package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/paddockmarkets/paddock/internal/crypto"
	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/service"
)

// SettlementCoordinator defines the two-phase settlement protocol the
// settlement handler fronts.
type SettlementCoordinator interface {
	Build(ctx context.Context, req service.BuildSettlementRequest) (service.BuildSettlementResult, error)
	Submit(ctx context.Context, payload crypto.SettlementPayload, signatureHex, txRef string) (domain.Order, []domain.Fill, error)
}

// SettlementHandler serves the build/submit endpoints that gate order-book
// buys on an external signature.
type SettlementHandler struct {
	settlements SettlementCoordinator
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(settlements SettlementCoordinator, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		logger:      logger,
	}
}

// buildSettlementRequest describes the buy the client wants to settle.
type buildSettlementRequest struct {
	MarketID    string `json:"market_id"`
	Wallet      string `json:"wallet"`
	Outcome     string `json:"outcome"`
	PriceMicros int64  `json:"price_micros"`
	Quantity    int64  `json:"quantity"`
}

// Build records settlement terms under a fresh nonce and returns the unsigned
// payload for the client to sign. Nothing is reserved at this stage.
// POST /api/settlements
func (h *SettlementHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req buildSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.MarketID == "" || req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "market_id and wallet are required", true)
		return
	}

	result, err := h.settlements.Build(r.Context(), service.BuildSettlementRequest{
		MarketID:    req.MarketID,
		Wallet:      req.Wallet,
		Outcome:     domain.OrderOutcome(req.Outcome),
		PriceMicros: req.PriceMicros,
		Quantity:    req.Quantity,
	})
	if err != nil {
		respondError(w, r, h.logger, err, "failed to build settlement")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// submitSettlementRequest carries the signed payload back. The payload must
// byte-for-byte match the terms recorded at build time.
type submitSettlementRequest struct {
	Payload   crypto.SettlementPayload `json:"payload"`
	Signature string                   `json:"signature"`
	TxRef     string                   `json:"tx_ref"`
}

// Submit verifies the signature against the recorded terms, consumes the
// nonce, and applies the buy.
// POST /api/settlements/submit
func (h *SettlementHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required", true)
		return
	}

	order, fills, err := h.settlements.Submit(r.Context(), req.Payload, req.Signature, req.TxRef)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to submit settlement")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{Order: order, Fills: fills})
}
