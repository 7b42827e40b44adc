package sink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
	streamErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not used")
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.streamErr != nil {
		return b.streamErr
	}
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func TestBusSinkPublishesTrades(t *testing.T) {
	bus := newFakeBus()
	s := NewBus(bus, slog.Default())
	ctx := context.Background()

	trade := domain.Trade{
		Source:     domain.TradeSourceChain,
		MarketSlug: "btc-updown-5m-1771211700",
		Side:       "BUY",
		Price:      0.54,
		DedupeKey:  "0xfeed:3",
	}
	require.NoError(t, s.WriteTrade(ctx, trade))

	require.Len(t, bus.published[TradeChannel], 1)
	require.Len(t, bus.streamed[TradeStream], 1)

	var got domain.Trade
	require.NoError(t, json.Unmarshal(bus.published[TradeChannel][0], &got))
	assert.Equal(t, trade.DedupeKey, got.DedupeKey)
	assert.Equal(t, trade.Price, got.Price)

	// Snapshots and deltas stay off the bus.
	require.NoError(t, s.WriteSnapshot(ctx, domain.BookSnapshot{}))
	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{}))
	assert.Len(t, bus.published[TradeChannel], 1)
}

func TestBusSinkToleratesStreamFailure(t *testing.T) {
	bus := newFakeBus()
	bus.streamErr = errors.New("stream full")
	s := NewBus(bus, slog.Default())

	// Pub/sub delivery succeeded, so the write is not an error.
	require.NoError(t, s.WriteTrade(context.Background(), domain.Trade{DedupeKey: "k"}))
	assert.Len(t, bus.published[TradeChannel], 1)
}
