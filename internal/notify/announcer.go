package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Announcer bridges engine events to operator notifications. It subscribes
// to the resolution and settlement channels on the signal bus and forwards a
// formatted message for each event through the Notifier.
type Announcer struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Announcer {
	return &Announcer{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "announcer")),
	}
}

// resolutionEvent is the JSON shape published on "resolutions".
type resolutionEvent struct {
	Event    string `json:"event"`
	PoolID   string `json:"pool_id"`
	MarketID string `json:"market_id"`
	Winner   string `json:"winner"`
}

// settlementEvent is the JSON shape published on "settlements".
type settlementEvent struct {
	Event    string `json:"event"`
	Nonce    string `json:"nonce"`
	MarketID string `json:"market_id"`
	OrderID  string `json:"order_id"`
	TxRef    string `json:"tx_ref"`
}

// Run consumes bus events until the context is cancelled.
func (a *Announcer) Run(ctx context.Context) error {
	ch, err := a.bus.Subscribe(ctx, "resolutions", "settlements")
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	a.logger.Info("announcer started")
	defer a.logger.Info("announcer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Announcer) handle(ctx context.Context, msg domain.BusMessage) {
	switch msg.Channel {
	case "resolutions":
		var ev resolutionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			a.logger.Debug("announcer: bad resolution payload",
				slog.String("error", err.Error()),
			)
			return
		}
		var title, body string
		switch ev.Event {
		case "pool_resolved":
			title = "Pool resolved"
			body = fmt.Sprintf("Pool %s resolved, winning outcome %s.", ev.PoolID, ev.Winner)
		case "market_resolved":
			title = "Market resolved"
			body = fmt.Sprintf("Market %s resolved %s.", ev.MarketID, ev.Winner)
		default:
			return
		}
		if err := a.notifier.Notify(ctx, ev.Event, title, body); err != nil {
			a.logger.Warn("announcer: notify failed",
				slog.String("event", ev.Event),
				slog.String("error", err.Error()),
			)
		}

	case "settlements":
		var ev settlementEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			a.logger.Debug("announcer: bad settlement payload",
				slog.String("error", err.Error()),
			)
			return
		}
		if ev.Event != "settlement_applied" {
			return
		}
		body := fmt.Sprintf("Settlement %s applied on market %s (order %s).", ev.Nonce, ev.MarketID, ev.OrderID)
		if ev.TxRef != "" {
			body += " tx: " + ev.TxRef
		}
		if err := a.notifier.Notify(ctx, ev.Event, "Settlement applied", body); err != nil {
			a.logger.Warn("announcer: notify failed",
				slog.String("event", ev.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}
