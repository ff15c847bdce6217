package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/paddockmarkets/paddock/internal/blob/s3"
	"github.com/paddockmarkets/paddock/internal/cache/redis"
	"github.com/paddockmarkets/paddock/internal/config"
	"github.com/paddockmarkets/paddock/internal/domain"
	"github.com/paddockmarkets/paddock/internal/notify"
	"github.com/paddockmarkets/paddock/internal/service"
	"github.com/paddockmarkets/paddock/internal/store/memory"
	"github.com/paddockmarkets/paddock/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire (or WireDev) and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	PoolStore       domain.PoolStore
	MarketStore     domain.MarketStore
	OrderStore      domain.OrderStore
	PositionStore   domain.PositionStore
	LedgerStore     domain.LedgerStore
	FillStore       domain.FillStore
	SettlementStore domain.SettlementStore

	// Caches (nil in dev mode)
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   service.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PoolStore = postgres.NewPoolStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.LedgerStore = postgres.NewLedgerStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 archive storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// WireDev constructs an all-in-memory dependency set with no external
// services. Used by dev mode for local hacking and integration tests.
func WireDev(logger *slog.Logger) *Dependencies {
	return &Dependencies{
		PoolStore:       memory.NewPoolStore(),
		MarketStore:     memory.NewMarketStore(),
		OrderStore:      memory.NewOrderStore(),
		PositionStore:   memory.NewPositionStore(),
		LedgerStore:     memory.NewLedgerStore(),
		FillStore:       memory.NewFillStore(),
		SettlementStore: memory.NewSettlementStore(),
		Notifier:        notify.NewNotifier(nil, nil, logger),
	}
}
