package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/service"
	"github.com/paddockmarkets/paddock/internal/store/memory"
)

// testAPI wires the handlers against in-memory stores behind a real ServeMux
// so path parameters resolve the same way they do in production.
type testAPI struct {
	mux    *http.ServeMux
	ledger *memory.LedgerStore

	pools    *service.PoolService
	orders   *service.OrderService
	registry *service.RegistryService
	ledgers  *service.LedgerService
	settles  *service.SettlementService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ledger := memory.NewLedgerStore()
	pools := memory.NewPoolStore()
	markets := memory.NewMarketStore()
	orders := memory.NewOrderStore()
	positions := memory.NewPositionStore()
	settlements := memory.NewSettlementStore()
	fills := memory.NewFillStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := service.NewEntityLocks()

	poolSvc := service.NewPoolService(pools, positions, ledger, nil, nil, locks, 0, logger)
	orderSvc := service.NewOrderService(markets, orders, positions, ledger, fills, nil, nil, locks, logger)
	settleSvc := service.NewSettlementService(settlements, markets, orderSvc, nil, nil, 0, 137, logger)
	registrySvc := service.NewRegistryService(pools, markets, orders, positions, fills, ledger, nil, locks, nil, logger)
	ledgerSvc := service.NewLedgerService(ledger, positions, locks, logger)

	poolH := NewPoolHandler(poolSvc, registrySvc, logger)
	marketH := NewMarketHandler(registrySvc, orderSvc, logger)
	orderH := NewOrderHandler(orderSvc, logger)
	settleH := NewSettlementHandler(settleSvc, logger)
	accountH := NewAccountHandler(ledgerSvc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pools", poolH.ListPools)
	mux.HandleFunc("POST /api/pools", poolH.CreatePool)
	mux.HandleFunc("GET /api/pools/{id}", poolH.GetPool)
	mux.HandleFunc("GET /api/pools/{id}/prices", poolH.GetPrices)
	mux.HandleFunc("POST /api/pools/{id}/quote", poolH.Quote)
	mux.HandleFunc("POST /api/pools/{id}/trades", poolH.Trade)
	mux.HandleFunc("POST /api/pools/{id}/lock", poolH.LockPool)
	mux.HandleFunc("POST /api/pools/{id}/resolve", poolH.ResolvePool)
	mux.HandleFunc("GET /api/markets", marketH.ListMarkets)
	mux.HandleFunc("POST /api/markets", marketH.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", marketH.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/book", marketH.GetBook)
	mux.HandleFunc("POST /api/orders", orderH.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", orderH.CancelOrder)
	mux.HandleFunc("POST /api/settlements", settleH.Build)
	mux.HandleFunc("GET /api/accounts/{wallet}", accountH.GetAccount)
	mux.HandleFunc("POST /api/accounts/{wallet}/deposits", accountH.Deposit)
	mux.HandleFunc("POST /api/accounts/{wallet}/withdrawals", accountH.Withdraw)
	mux.HandleFunc("GET /api/accounts/{wallet}/positions", accountH.ListPositions)

	return &testAPI{
		mux:      mux,
		ledger:   ledger,
		pools:    poolSvc,
		orders:   orderSvc,
		registry: registrySvc,
		ledgers:  ledgerSvc,
		settles:  settleSvc,
	}
}

// do runs a request through the mux and decodes the JSON response into out
// when out is non-nil.
func (a *testAPI) do(t *testing.T, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String())
	}
	return rec
}

func (a *testAPI) fund(t *testing.T, wallet string, amountMicros int64) {
	t.Helper()
	require.NoError(t, a.ledger.Credit(context.Background(), wallet, amountMicros))
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	var pool domain.Pool
	rec := api.do(t, http.MethodPost, "/api/pools", map[string]any{
		"season_id":        "season-2026",
		"kind":             "driver",
		"liquidity_micros": 100 * domain.Micros,
		"participants":     []string{"verstappen", "norris", "leclerc", "piastri"},
	}, &pool)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, pool.Outcomes, 4)

	var got domain.Pool
	rec = api.do(t, http.MethodGet, "/api/pools/"+pool.ID, nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pool.ID, got.ID)

	var prices struct {
		PoolID string           `json:"pool_id"`
		Prices map[string]int64 `json:"prices"`
	}
	rec = api.do(t, http.MethodGet, "/api/pools/"+pool.ID+"/prices", nil, &prices)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, prices.Prices, 4)
	for _, p := range prices.Prices {
		assert.InDelta(t, 250_000, p, 1)
	}
}

func TestPoolQuoteAndTradeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.fund(t, "0xalice", 100*domain.Micros)

	var pool domain.Pool
	api.do(t, http.MethodPost, "/api/pools", map[string]any{
		"season_id":        "season-2026",
		"kind":             "driver",
		"liquidity_micros": 100 * domain.Micros,
		"participants":     []string{"verstappen", "norris"},
	}, &pool)
	outcome := pool.Outcomes[0].ID

	var quote domain.PoolQuote
	rec := api.do(t, http.MethodPost, "/api/pools/"+pool.ID+"/quote", map[string]any{
		"outcome_id":          outcome,
		"delta_shares_micros": 10 * domain.Micros,
	}, &quote)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Positive(t, quote.CostMicros)

	var executed domain.PoolQuote
	rec = api.do(t, http.MethodPost, "/api/pools/"+pool.ID+"/trades", map[string]any{
		"wallet":              "0xalice",
		"outcome_id":          outcome,
		"delta_shares_micros": 10 * domain.Micros,
		"quoted_cost_micros":  quote.CostMicros,
	}, &executed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, quote.CostMicros, executed.CostMicros)

	// A wildly stale quote is rejected with a conflict.
	rec = api.do(t, http.MethodPost, "/api/pools/"+pool.ID+"/trades", map[string]any{
		"wallet":              "0xalice",
		"outcome_id":          outcome,
		"delta_shares_micros": 10 * domain.Micros,
		"quoted_cost_micros":  quote.CostMicros - 5*domain.Micros,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownPoolReturns404(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/pools/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectBuyOrderIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	api.fund(t, "0xalice", 100*domain.Micros)

	var market domain.Market
	api.do(t, http.MethodPost, "/api/markets", map[string]any{
		"season_id":   "season-2026",
		"participant": "norris",
		"question":    "Will norris win the championship?",
	}, &market)

	rec := api.do(t, http.MethodPost, "/api/orders", map[string]any{
		"market_id":    market.ID,
		"wallet":       "0xalice",
		"outcome":      "yes",
		"side":         "buy",
		"price_micros": 600_000,
		"quantity":     10,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidOrderIsBadRequest(t *testing.T) {
	api := newTestAPI(t)

	var market domain.Market
	api.do(t, http.MethodPost, "/api/markets", map[string]any{
		"season_id": "season-2026",
		"question":  "Will it rain?",
	}, &market)

	rec := api.do(t, http.MethodPost, "/api/orders", map[string]any{
		"market_id":    market.ID,
		"wallet":       "0xalice",
		"outcome":      "yes",
		"side":         "sell",
		"price_micros": 5_000, // below the $0.01 floor
		"quantity":     10,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorBodiesCarryRecoverable(t *testing.T) {
	api := newTestAPI(t)

	var market domain.Market
	api.do(t, http.MethodPost, "/api/markets", map[string]any{
		"season_id": "season-2026",
		"question":  "Will it rain?",
	}, &market)

	// A rejected price can be corrected and retried.
	var body struct {
		Error       string `json:"error"`
		Recoverable bool   `json:"recoverable"`
	}
	rec := api.do(t, http.MethodPost, "/api/orders", map[string]any{
		"market_id":    market.ID,
		"wallet":       "0xalice",
		"outcome":      "yes",
		"side":         "sell",
		"price_micros": 5_000,
		"quantity":     10,
	}, &body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body.Error)
	assert.True(t, body.Recoverable)

	// A missing pool is not something a retry can fix.
	rec = api.do(t, http.MethodGet, "/api/pools/nope", nil, &body)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.Recoverable)
}

func TestSettlementBuildOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.fund(t, "0xalice", 100*domain.Micros)

	var market domain.Market
	api.do(t, http.MethodPost, "/api/markets", map[string]any{
		"season_id": "season-2026",
		"question":  "Will norris win the championship?",
	}, &market)

	var result service.BuildSettlementResult
	rec := api.do(t, http.MethodPost, "/api/settlements", map[string]any{
		"market_id":    market.ID,
		"wallet":       "0xalice",
		"outcome":      "yes",
		"price_micros": 600_000,
		"quantity":     10,
	}, &result)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, result.Settlement.Nonce)
	assert.Equal(t, int64(6*domain.Micros), result.Payload.Collateral)
}

func TestAccountDepositWithdrawOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	var acct domain.Account
	rec := api.do(t, http.MethodPost, "/api/accounts/0xalice/deposits", map[string]any{
		"amount_micros": 25 * domain.Micros,
	}, &acct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25*domain.Micros, acct.AvailableMicros)

	rec = api.do(t, http.MethodPost, "/api/accounts/0xalice/withdrawals", map[string]any{
		"amount_micros": 10 * domain.Micros,
	}, &acct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15*domain.Micros, acct.AvailableMicros)

	// Overdraw maps to 402.
	rec = api.do(t, http.MethodPost, "/api/accounts/0xalice/withdrawals", map[string]any{
		"amount_micros": 100 * domain.Micros,
	}, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Unknown wallets read as zero, not 404.
	rec = api.do(t, http.MethodGet, "/api/accounts/0xnobody", nil, &acct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, acct.AvailableMicros)
}

func TestBookEndpointAggregatesLevels(t *testing.T) {
	api := newTestAPI(t)
	api.fund(t, "0xalice", 100*domain.Micros)

	var market domain.Market
	api.do(t, http.MethodPost, "/api/markets", map[string]any{
		"season_id": "season-2026",
		"question":  "Will it rain?",
	}, &market)

	// Resting buys enter through the order service directly; the HTTP
	// surface requires a signed settlement for buys.
	_, _, err := api.orders.ApplyBuy(context.Background(), service.PlaceOrderRequest{
		MarketID:    market.ID,
		Wallet:      "0xalice",
		Outcome:     domain.OutcomeYes,
		Side:        domain.OrderSideBuy,
		PriceMicros: 300_000,
		Quantity:    10,
	})
	require.NoError(t, err)

	var book service.BookSnapshot
	rec := api.do(t, http.MethodGet, "/api/markets/"+market.ID+"/book", nil, &book)
	require.Equal(t, http.StatusOK, rec.Code)
	levels := book.Levels[domain.OutcomeYes][domain.OrderSideBuy]
	require.Len(t, levels, 1)
	assert.Equal(t, int64(300_000), levels[0].PriceMicros)
	assert.Equal(t, int64(10), levels[0].Quantity)
}
