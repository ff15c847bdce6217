package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each display
// price is stored at "price:{key}" with fields "price" (micros) and "ts"
// (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(key string) string {
	return "price:" + key
}

// SetPrice stores the latest price and timestamp for a key.
func (pc *PriceCache) SetPrice(ctx context.Context, key string, priceMicros int64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatInt(priceMicros, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(key), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a key. It returns
// domain.ErrNotFound when nothing has been cached yet.
func (pc *PriceCache) GetPrice(ctx context.Context, key string) (int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(key)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves several keys' prices in one pipeline. Keys without a
// cached price are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.HGetAll(ctx, priceKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]int64, len(keys))
	for key, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		price, err := strconv.ParseInt(vals["price"], 10, 64)
		if err != nil {
			continue
		}
		result[key] = price
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
