package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// SignalBus implements domain.SignalBus using Redis Pub/Sub. The trading
// services publish fills, price moves and settlement outcomes; the WebSocket
// hub subscribes and relays them to clients.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to one or more channels and returns a read-only
// message channel. Channels containing glob wildcards use pattern
// subscription. The subscription closes with the context, closing the
// returned channel.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("redis: subscribe: no channels given")
	}

	var pubsub *redis.PubSub
	if hasPattern(channels) {
		pubsub = sb.rdb.PSubscribe(ctx, channels...)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channels...)
	}

	// Receive the confirmation so a dead broker fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func hasPattern(channels []string) bool {
	for _, c := range channels {
		if strings.ContainsAny(c, "*?[") {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
