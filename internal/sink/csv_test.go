package sink

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

func newTestCSV(t *testing.T) *CSVSink {
	t.Helper()
	s, err := NewCSV(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSnapshotRowsBestFirst(t *testing.T) {
	s := newTestCSV(t)
	ctx := context.Background()

	snap := domain.BookSnapshot{
		MarketSlug:  "btc-updown-5m-1771211700",
		ConditionID: "0xc1",
		AssetID:     "111",
		Outcome:     "Up",
		SnapshotSeq: 1,
		ServerTsMs:  1_771_211_712_000,
		ReceiveTsMs: 1_771_211_712_050,
		Bids: []domain.BookLevel{
			{Price: "0.54", Size: "100"},
			{Price: "0.52", Size: "250"},
		},
		Asks: []domain.BookLevel{
			{Price: "0.56", Size: "80"},
		},
	}
	require.NoError(t, s.WriteSnapshot(ctx, snap))
	require.NoError(t, s.Flush(ctx))

	rows := readCSV(t, filepath.Join(s.root, snap.MarketSlug, bookFile))
	require.Len(t, rows, 4)
	assert.Equal(t, bookHeaders, rows[0])

	// Level index 0 is the best bid.
	assert.Equal(t, "bid", rows[1][7])
	assert.Equal(t, "0.54", rows[1][8])
	assert.Equal(t, "0", rows[1][10])
	assert.Equal(t, "0.52", rows[2][8])
	assert.Equal(t, "1", rows[2][10])
	assert.Equal(t, "ask", rows[3][7])
	assert.Equal(t, "0.56", rows[3][8])
}

func TestDeltaAndTradeRouting(t *testing.T) {
	s := newTestCSV(t)
	ctx := context.Background()

	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{
		MarketSlug: "btc-updown-5m-1771211700",
		AssetID:    "111",
		Side:       "bid",
		Price:      "0.54",
		Size:       "0",
		BestBid:    "0.52",
		BestAsk:    "0.56",
	}))
	require.NoError(t, s.WriteTrade(ctx, domain.Trade{
		Source:     domain.TradeSourceFeed,
		MarketSlug: "btc-updown-5m-1771211700",
		AssetID:    "111",
		Side:       "BUY",
		Price:      0.54,
		Size:       100,
		DedupeKey:  "feed-1",
	}))
	require.NoError(t, s.WriteTrade(ctx, domain.Trade{
		Source:     domain.TradeSourceChain,
		MarketSlug: "btc-updown-5m-1771211700",
		Side:       "SELL",
		Price:      0.46,
		Size:       100,
		Notional:   46,
		TxHash:     "0xfeed",
		DedupeKey:  "0xfeed:3",
	}))
	require.NoError(t, s.Flush(ctx))

	dir := filepath.Join(s.root, "btc-updown-5m-1771211700")

	deltas := readCSV(t, filepath.Join(dir, deltaFile))
	require.Len(t, deltas, 2)
	assert.Equal(t, "0.52", deltas[1][9])
	assert.Equal(t, "0.56", deltas[1][10])

	feed := readCSV(t, filepath.Join(dir, feedTradeFile))
	require.Len(t, feed, 2)
	assert.Equal(t, "feed-1", feed[1][10])

	chain := readCSV(t, filepath.Join(dir, chainTradeFile))
	require.Len(t, chain, 2)
	assert.Equal(t, "46", chain[1][8])
	assert.Equal(t, "0xfeed:3", chain[1][14])
}

func TestHeadersWrittenOncePerRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewCSV(dir, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m", Price: "0.5"}))
	require.NoError(t, s.Close())

	// A new sink over the same directory appends without a second header.
	s, err = NewCSV(dir, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m", Price: "0.6"}))
	require.NoError(t, s.Close())

	rows := readCSV(t, filepath.Join(dir, "m", deltaFile))
	require.Len(t, rows, 3)
	assert.Equal(t, deltaHeaders, rows[0])
	assert.Equal(t, "0.5", rows[1][7])
	assert.Equal(t, "0.6", rows[2][7])
}

func TestRetireMarketClosesFiles(t *testing.T) {
	s := newTestCSV(t)
	ctx := context.Background()

	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m1", Price: "0.5"}))
	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m2", Price: "0.7"}))

	dir, err := s.RetireMarket("m1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.root, "m1"), dir)

	// m1's rows are flushed to disk, m2 stays open for writes.
	rows := readCSV(t, filepath.Join(dir, deltaFile))
	assert.Len(t, rows, 2)
	require.NoError(t, s.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m2", Price: "0.8"}))
}

func TestCompositeFansOutAndJoinsErrors(t *testing.T) {
	a := newTestCSV(t)
	b := newTestCSV(t)
	c := NewComposite(a, b)
	ctx := context.Background()

	require.NoError(t, c.WriteDelta(ctx, domain.PriceDelta{MarketSlug: "m", Price: "0.5"}))
	require.NoError(t, c.Flush(ctx))

	for _, s := range []*CSVSink{a, b} {
		rows := readCSV(t, filepath.Join(s.root, "m", deltaFile))
		assert.Len(t, rows, 2)
	}
}
