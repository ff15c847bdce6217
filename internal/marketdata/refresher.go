package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// DefaultRefreshInterval is how often reference prices are re-fetched when
// the configuration does not say otherwise.
const DefaultRefreshInterval = 30 * time.Second

// PoolLister supplies the pools whose participants need reference prices.
type PoolLister interface {
	ListPools(ctx context.Context, opts domain.ListOpts) ([]domain.Pool, error)
}

// Refresher periodically pulls reference prices for every participant in an
// open pool and writes them into the price cache under "ref:{participant}".
type Refresher struct {
	source   domain.MarketDataSource
	pools    PoolLister
	cache    domain.PriceCache
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a Refresher. A zero interval selects
// DefaultRefreshInterval.
func NewRefresher(source domain.MarketDataSource, pools PoolLister, cache domain.PriceCache, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		source:   source,
		pools:    pools,
		cache:    cache,
		interval: interval,
		logger:   logger.With(slog.String("component", "marketdata_refresher")),
	}
}

// Run refreshes prices on a fixed interval until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reference price refresher started",
		slog.Duration("interval", r.interval),
	)
	defer r.logger.Info("reference price refresher stopped")

	for {
		if err := r.refresh(ctx); err != nil {
			r.logger.Warn("reference price refresh failed",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) error {
	pools, err := r.pools.ListPools(ctx, domain.ListOpts{})
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var participants []string
	for _, pool := range pools {
		if pool.Status != domain.PoolStatusOpen {
			continue
		}
		for _, o := range pool.Outcomes {
			if !seen[o.Participant] {
				seen[o.Participant] = true
				participants = append(participants, o.Participant)
			}
		}
	}
	if len(participants) == 0 {
		return nil
	}

	prices, err := r.source.ReferencePrices(ctx, participants)
	if err != nil {
		return err
	}

	for _, p := range prices {
		if err := r.cache.SetPrice(ctx, "ref:"+p.Participant, p.PriceMicros, p.FetchedAt); err != nil {
			r.logger.Debug("cache reference price failed",
				slog.String("participant", p.Participant),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Debug("reference prices refreshed",
		slog.Int("participants", len(participants)),
		slog.Int("prices", len(prices)),
	)
	return nil
}
