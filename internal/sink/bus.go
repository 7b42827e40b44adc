package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// Bus channels for live consumers.
const (
	TradeChannel = "trades"
	TradeStream  = "stream:trades"
)

// BusSink publishes trades onto the signal bus for live consumers: a fire and
// forget pub/sub channel for websocket fan-out plus a capped stream for
// consumers that need replay. Snapshots and deltas stay on the durable sinks.
type BusSink struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBus wraps a SignalBus as a RecordSink.
func NewBus(bus domain.SignalBus, logger *slog.Logger) *BusSink {
	return &BusSink{
		bus:    bus,
		logger: logger.With(slog.String("component", "bus_sink")),
	}
}

func (b *BusSink) WriteSnapshot(context.Context, domain.BookSnapshot) error { return nil }
func (b *BusSink) WriteDelta(context.Context, domain.PriceDelta) error     { return nil }

func (b *BusSink) WriteTrade(ctx context.Context, t domain.Trade) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("sink: marshal trade: %w", err)
	}

	if err := b.bus.Publish(ctx, TradeChannel, payload); err != nil {
		return fmt.Errorf("sink: publish trade: %w", err)
	}
	if err := b.bus.StreamAppend(ctx, TradeStream, payload); err != nil {
		// Pub/sub delivery already happened; log rather than fail the write.
		b.logger.WarnContext(ctx, "stream append failed",
			slog.String("dedupe_key", t.DedupeKey),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (b *BusSink) Flush(context.Context) error { return nil }
func (b *BusSink) Close() error                { return nil }

var _ domain.RecordSink = (*BusSink)(nil)
