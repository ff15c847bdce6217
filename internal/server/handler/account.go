package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// AccountService defines the ledger methods the account handler requires.
type AccountService interface {
	Account(ctx context.Context, wallet string) (domain.Account, error)
	Deposit(ctx context.Context, wallet string, amountMicros int64) (domain.Account, error)
	Withdraw(ctx context.Context, wallet string, amountMicros int64) (domain.Account, error)
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// AccountHandler serves collateral-account HTTP endpoints.
type AccountHandler struct {
	ledger AccountService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(ledger AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
		logger: logger,
	}
}

// GetAccount returns a wallet's collateral balances. Unknown wallets read as
// zero rather than 404ing, since an account exists once anyone names it.
// GET /api/accounts/{wallet}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet", true)
		return
	}

	account, err := h.ledger.Account(r.Context(), wallet)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// amountRequest carries a deposit or withdrawal amount in micros.
type amountRequest struct {
	AmountMicros int64 `json:"amount_micros"`
}

// Deposit credits external funds to a wallet's available balance.
// POST /api/accounts/{wallet}/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet", true)
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}

	account, err := h.ledger.Deposit(r.Context(), wallet, req.AmountMicros)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to deposit")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Withdraw debits available funds. Locked collateral cannot be withdrawn.
// POST /api/accounts/{wallet}/withdrawals
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet", true)
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), true)
		return
	}

	account, err := h.ledger.Withdraw(r.Context(), wallet, req.AmountMicros)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to withdraw")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// listPositionsResponse wraps the positions output.
type listPositionsResponse struct {
	Wallet    string            `json:"wallet"`
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns every AMM and order-book position a wallet holds.
// GET /api/accounts/{wallet}/positions
func (h *AccountHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet", true)
		return
	}

	positions, err := h.ledger.Positions(r.Context(), wallet)
	if err != nil {
		respondError(w, r, h.logger, err, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Wallet:    wallet,
		Positions: positions,
	})
}
