package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Event channels published on the signal bus. The WebSocket hub relays them
// to subscribed clients; the engine itself never depends on a subscriber
// being present.
const (
	ChannelFills       = "fills"
	ChannelPrices      = "prices"
	ChannelOrders      = "orders"
	ChannelSettlements = "settlements"
	ChannelResolutions = "resolutions"
)

// publisher wraps the signal bus with fire-and-forget JSON publishing. A
// failed publish is logged and swallowed: event push is a convenience layer,
// never part of trade correctness.
type publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func (p publisher) publish(ctx context.Context, channel string, v any) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.WarnContext(ctx, "service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.WarnContext(ctx, "service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
