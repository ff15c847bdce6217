package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paddockmarkets/paddock/internal/marketdata"
	"github.com/paddockmarkets/paddock/internal/notify"
	"github.com/paddockmarkets/paddock/internal/server"
	"github.com/paddockmarkets/paddock/internal/server/handler"
	"github.com/paddockmarkets/paddock/internal/server/ws"
	"github.com/paddockmarkets/paddock/internal/service"
)

// services bundles the constructed service layer.
type services struct {
	pools       *service.PoolService
	orders      *service.OrderService
	settlements *service.SettlementService
	registry    *service.RegistryService
	ledger      *service.LedgerService
}

// buildServices constructs the service layer on top of the wired stores and
// caches.
func (a *App) buildServices(deps *Dependencies) *services {
	locks := service.NewEntityLocks()

	pools := service.NewPoolService(
		deps.PoolStore, deps.PositionStore, deps.LedgerStore,
		deps.PriceCache, deps.SignalBus, locks,
		a.cfg.Engine.QuoteToleranceMicros, a.logger,
	)
	orders := service.NewOrderService(
		deps.MarketStore, deps.OrderStore, deps.PositionStore,
		deps.LedgerStore, deps.FillStore, deps.PriceCache,
		deps.SignalBus, locks, a.logger,
	)
	settlements := service.NewSettlementService(
		deps.SettlementStore, deps.MarketStore, orders,
		deps.LockManager, deps.SignalBus,
		a.cfg.Engine.SettlementTTL.Duration, a.cfg.Engine.ChainID, a.logger,
	)
	registry := service.NewRegistryService(
		deps.PoolStore, deps.MarketStore, deps.OrderStore,
		deps.PositionStore, deps.FillStore, deps.LedgerStore,
		deps.SignalBus, locks, deps.Archiver, a.logger,
	)
	ledger := service.NewLedgerService(
		deps.LedgerStore, deps.PositionStore, locks, a.logger,
	)

	return &services{
		pools:       pools,
		orders:      orders,
		settlements: settlements,
		registry:    registry,
		ledger:      ledger,
	}
}

// newServer assembles the HTTP server, handlers and middleware from the
// service layer. wsHub may be nil when no signal bus is available.
func (a *App) newServer(svcs *services, deps *Dependencies, wsHub *ws.Hub) *server.Server {
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Pools:       handler.NewPoolHandler(svcs.pools, svcs.registry, a.logger),
		Markets:     handler.NewMarketHandler(svcs.registry, svcs.orders, a.logger),
		Orders:      handler.NewOrderHandler(svcs.orders, a.logger),
		Settlements: handler.NewSettlementHandler(svcs.settlements, a.logger),
		Accounts:    handler.NewAccountHandler(svcs.ledger, a.logger),
	}

	return server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.RateLimiter, wsHub, a.logger)
}

// FullMode runs the complete exchange: HTTP API, WebSocket hub, settlement
// sweeper, resolution notifications, and the optional reference price
// refresher.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	// WebSocket hub bridging engine events to clients.
	wsHub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return ignoreCancel(wsHub.Run(ctx))
	})

	// HTTP API.
	if a.cfg.Server.Enabled {
		srv := a.newServer(svcs, deps, wsHub)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Settlement expiry sweeper.
	g.Go(func() error {
		return ignoreCancel(svcs.settlements.RunSweeper(ctx, a.cfg.Engine.SweepInterval.Duration))
	})

	// Operator notifications for resolutions and settlements.
	announcer := notify.NewAnnouncer(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return ignoreCancel(announcer.Run(ctx))
	})

	// Reference price refresher (display only).
	if a.cfg.MarketData.Enabled {
		source := marketdata.NewClient(a.cfg.MarketData.BaseURL, a.cfg.MarketData.APIKey)
		refresher := marketdata.NewRefresher(
			source, svcs.pools, deps.PriceCache,
			a.cfg.MarketData.RefreshInterval.Duration, a.logger,
		)
		g.Go(func() error {
			return ignoreCancel(refresher.Run(ctx))
		})
	}

	return g.Wait()
}

// DevMode runs the exchange entirely in memory: HTTP API plus the settlement
// sweeper, no Redis, no Postgres, no S3. Events and WebSocket push are
// unavailable because there is no signal bus.
func (a *App) DevMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dev mode (in-memory stores)")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	srv := a.newServer(svcs, deps, nil)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCancel(svcs.settlements.RunSweeper(ctx, a.cfg.Engine.SweepInterval.Duration))
	})

	return g.Wait()
}

// ignoreCancel maps context cancellation to a clean nil so an orderly
// shutdown is not reported as a worker failure.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
