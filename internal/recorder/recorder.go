// Package recorder consumes the streaming feed's event channel and turns
// book snapshots, price deltas, and trade confirmations into normalized
// records for the output sink.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/platform/polymarket"
)

// Recorder dispatches inbound feed events by type. Events whose asset is not
// in the tracked scope are dropped silently; that is the expected path for
// late events on retired markets.
type Recorder struct {
	resolver domain.TokenResolver
	sink     domain.RecordSink
	logger   *slog.Logger
	session  string

	mu   sync.Mutex
	seqs map[string]uint64 // market slug -> last snapshot seq

	counter atomic.Uint64 // per-connection trade counter for dedupe keys

	books  atomic.Uint64
	deltas atomic.Uint64
	trades atomic.Uint64
}

// New creates a Recorder. session is the connection manager's session ID,
// mixed into feed-trade dedupe keys so identical-looking fills from distinct
// connections never coalesce.
func New(resolver domain.TokenResolver, sink domain.RecordSink, session string, logger *slog.Logger) *Recorder {
	return &Recorder{
		resolver: resolver,
		sink:     sink,
		logger:   logger.With(slog.String("component", "recorder")),
		session:  session,
		seqs:     make(map[string]uint64),
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, events <-chan polymarket.RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.dispatch(ctx, ev)
		}
	}
}

// Counts returns the number of books, deltas, and trades handled so far.
func (r *Recorder) Counts() (books, deltas, trades uint64) {
	return r.books.Load(), r.deltas.Load(), r.trades.Load()
}

func (r *Recorder) dispatch(ctx context.Context, ev polymarket.RawEvent) {
	var err error
	switch ev.Type {
	case "book":
		err = r.handleBook(ctx, ev)
	case "price_change":
		err = r.handlePriceChange(ctx, ev)
	case "last_trade_price":
		err = r.handleTrade(ctx, ev)
	default:
		return
	}

	if err != nil {
		// Malformed payloads are logged with context and dropped; the loop
		// continues.
		r.logger.WarnContext(ctx, "event dropped",
			slog.String("event_type", ev.Type),
			slog.String("asset_id", ev.AssetID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Recorder) handleBook(ctx context.Context, ev polymarket.RawEvent) error {
	var msg polymarket.BookMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return fmt.Errorf("recorder: %w: %v", domain.ErrDecode, err)
	}

	assetID := firstNonEmpty(msg.AssetID, ev.AssetID)
	ref, err := r.resolver.ResolveToken(assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	snap := domain.BookSnapshot{
		MarketSlug:  ref.MarketSlug,
		ConditionID: firstNonEmpty(msg.Market, ref.ConditionID),
		AssetID:     assetID,
		Outcome:     ref.Outcome,
		SnapshotSeq: r.nextSeq(ref.MarketSlug),
		ServerTsMs:  parseMillis(msg.Timestamp),
		ReceiveTsMs: ev.ReceiveTs,
		Bids:        bestFirst(coalesceLevels(msg.Bids, msg.Buys)),
		Asks:        bestFirst(coalesceLevels(msg.Asks, msg.Sells)),
	}

	if err := r.sink.WriteSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("recorder: write snapshot: %w", err)
	}
	r.books.Add(1)
	return nil
}

func (r *Recorder) handlePriceChange(ctx context.Context, ev polymarket.RawEvent) error {
	var msg polymarket.PriceChangeMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return fmt.Errorf("recorder: %w: %v", domain.ErrDecode, err)
	}

	serverTs := parseMillis(msg.Timestamp)
	for _, ch := range msg.Changes {
		assetID := firstNonEmpty(ch.AssetID, msg.AssetID, ev.AssetID)
		ref, err := r.resolver.ResolveToken(assetID)
		if err != nil {
			continue // not in tracked scope
		}

		delta := domain.PriceDelta{
			MarketSlug:  ref.MarketSlug,
			ConditionID: firstNonEmpty(msg.Market, ref.ConditionID),
			AssetID:     assetID,
			Outcome:     ref.Outcome,
			Side:        ch.Side,
			Price:       ch.Price,
			Size:        ch.Size,
			BestBid:     ch.BestBid,
			BestAsk:     ch.BestAsk,
			ServerTsMs:  serverTs,
			ReceiveTsMs: ev.ReceiveTs,
		}
		if err := r.sink.WriteDelta(ctx, delta); err != nil {
			return fmt.Errorf("recorder: write delta: %w", err)
		}
		r.deltas.Add(1)
	}
	return nil
}

func (r *Recorder) handleTrade(ctx context.Context, ev polymarket.RawEvent) error {
	var msg polymarket.TradeMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return fmt.Errorf("recorder: %w: %v", domain.ErrDecode, err)
	}

	assetID := firstNonEmpty(msg.AssetID, ev.AssetID)
	ref, err := r.resolver.ResolveToken(assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	price, _ := strconv.ParseFloat(msg.Price, 64)
	size, _ := strconv.ParseFloat(msg.Size, 64)
	serverTs := parseMillis(msg.Timestamp)

	// The feed carries no transaction hash, so the key is built from the
	// event attributes plus a per-connection counter: identical-looking but
	// distinct fills must not coalesce.
	seq := r.counter.Add(1)
	key := fmt.Sprintf("%d|%s|%s|%s|%s|%s:%d",
		serverTs, assetID, msg.Side, msg.Price, msg.Size, r.session, seq)

	trade := domain.Trade{
		Source:        domain.TradeSourceFeed,
		MarketSlug:    ref.MarketSlug,
		ConditionID:   firstNonEmpty(msg.Market, ref.ConditionID),
		EventID:       ref.EventID,
		WindowStartTs: ref.WindowStartTs,
		AssetID:       assetID,
		Outcome:       ref.Outcome,
		Side:          msg.Side,
		Price:         price,
		Size:          size,
		Notional:      price * size,
		FeeRateBps:    msg.FeeRateBps,
		TimestampMs:   serverTs,
		ReceiveTsMs:   ev.ReceiveTs,
		DedupeKey:     key,
	}
	if err := r.sink.WriteTrade(ctx, trade); err != nil {
		return fmt.Errorf("recorder: write trade: %w", err)
	}
	r.trades.Add(1)
	return nil
}

// nextSeq assigns the next snapshot seq for a market. Strictly increasing
// per market for the recorder's lifetime.
func (r *Recorder) nextSeq(slug string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[slug]++
	return r.seqs[slug]
}

// bestFirst reorders venue levels so index 0 is the best price; the feed
// sends levels best-last.
func bestFirst(entries []polymarket.BookEntry) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, domain.BookLevel{Price: entries[i].Price, Size: entries[i].Size})
	}
	return out
}

func coalesceLevels(primary, fallback []polymarket.BookEntry) []polymarket.BookEntry {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
