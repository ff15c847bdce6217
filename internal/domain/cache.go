package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest display prices keyed by
// outcome or market id.
type PriceCache interface {
	SetPrice(ctx context.Context, key string, priceMicros int64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (int64, time.Time, error)
}

// LockManager provides distributed locking, used so only one instance runs
// the settlement expiry sweep at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for engine events (fills, price moves,
// settlement outcomes) consumed by the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// BusMessage is one message delivered by the signal bus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// RateLimiter bounds request rates per key across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ReferencePrice is a third-party display price. Reference prices are never a
// pricing or matching input; the AMM and the book are self-contained.
type ReferencePrice struct {
	Participant string
	PriceMicros int64
	VolumeUSD   float64
	FetchedAt   time.Time
}

// MarketDataSource supplies reference prices from an external prediction
// market API, for display only.
type MarketDataSource interface {
	ReferencePrices(ctx context.Context, participants []string) ([]ReferencePrice, error)
}
