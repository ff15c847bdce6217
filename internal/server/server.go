package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/server/handler"
	"github.com/paddockmarkets/paddock/internal/server/middleware"
	"github.com/paddockmarkets/paddock/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Rate limiting applies per client IP; a nil limiter disables it.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Pools       *handler.PoolHandler
	Markets     *handler.MarketHandler
	Orders      *handler.OrderHandler
	Settlements *handler.SettlementHandler
	Accounts    *handler.AccountHandler
}

// Server is the HTTP + WebSocket API server for the exchange.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limit, auth) applied.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Championship pool endpoints.
	mux.HandleFunc("GET /api/pools", handlers.Pools.ListPools)
	mux.HandleFunc("POST /api/pools", handlers.Pools.CreatePool)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("GET /api/pools/{id}/prices", handlers.Pools.GetPrices)
	mux.HandleFunc("POST /api/pools/{id}/quote", handlers.Pools.Quote)
	mux.HandleFunc("POST /api/pools/{id}/trades", handlers.Pools.Trade)
	mux.HandleFunc("POST /api/pools/{id}/lock", handlers.Pools.LockPool)
	mux.HandleFunc("POST /api/pools/{id}/resolve", handlers.Pools.ResolvePool)

	// Binary market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/book", handlers.Markets.GetBook)
	mux.HandleFunc("POST /api/markets/{id}/lock", handlers.Markets.LockMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)

	// Order endpoints (sells only; buys go through settlements).
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Settlement build/submit endpoints.
	mux.HandleFunc("POST /api/settlements", handlers.Settlements.Build)
	mux.HandleFunc("POST /api/settlements/submit", handlers.Settlements.Submit)

	// Collateral account endpoints.
	mux.HandleFunc("GET /api/accounts/{wallet}", handlers.Accounts.GetAccount)
	mux.HandleFunc("POST /api/accounts/{wallet}/deposits", handlers.Accounts.Deposit)
	mux.HandleFunc("POST /api/accounts/{wallet}/withdrawals", handlers.Accounts.Withdraw)
	mux.HandleFunc("GET /api/accounts/{wallet}/positions", handlers.Accounts.ListPositions)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
