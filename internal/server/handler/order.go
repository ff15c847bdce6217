package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/service"
)

// OrderBook defines the methods the order handler requires from the matching
// engine. Buys are absent on purpose: they enter through the settlement
// coordinator, never directly.
type OrderBook interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (domain.Order, []domain.Fill, error)
	CancelOrder(ctx context.Context, orderID, wallet string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order-book HTTP endpoints.
type OrderHandler struct {
	orders OrderBook
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderBook, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for sell order placement.
type placeOrderRequest struct {
	MarketID    string     `json:"market_id"`
	Wallet      string     `json:"wallet"`
	Outcome     string     `json:"outcome"`
	Side        string     `json:"side"`
	PriceMicros int64      `json:"price_micros"`
	Quantity    int64      `json:"quantity"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// placeOrderResponse returns the placed order and any immediate fills.
type placeOrderResponse struct {
	Order domain.Order  `json:"order"`
	Fills []domain.Fill `json:"fills"`
}

// PlaceOrder places a sell limit order. Buy orders are rejected here and must
// go through the settlement build/submit endpoints.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}
	if req.MarketID == "" || req.Wallet == "" {
		writeError(w, http.StatusBadRequest, "market_id and wallet are required", true)
		return
	}

	order, fills, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		MarketID:    req.MarketID,
		Wallet:      req.Wallet,
		Outcome:     domain.OrderOutcome(req.Outcome),
		Side:        domain.OrderSide(req.Side),
		PriceMicros: req.PriceMicros,
		Quantity:    req.Quantity,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		respondError(w, r, h.logger, err, "failed to place order")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{Order: order, Fills: fills})
}

// GetOrder returns a single order by its ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id", true)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// listOrdersResponse wraps the list orders output.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns a wallet's orders, newest first.
// GET /api/orders?wallet=0x...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required", true)
		return
	}

	orders, err := h.orders.ListByWallet(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// CancelOrder cancels an open order. Only the owning wallet may cancel;
// the caller identifies itself with the wallet query parameter.
// DELETE /api/orders/{id}?wallet=0x...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id", true)
		return
	}
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required", true)
		return
	}

	if err := h.orders.CancelOrder(r.Context(), id, wallet); err != nil {
		respondError(w, r, h.logger, err, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
