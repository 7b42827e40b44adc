// Package sink provides the output sinks for normalized records: per-market
// CSV files, Postgres, a live trade bus, and a fan-out composite.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

var (
	bookHeaders = []string{
		"snapshot_seq", "server_ts_ms", "receive_ts_ms", "receive_utc",
		"asset_id", "outcome", "condition_id", "side", "price", "size", "level_index",
	}
	deltaHeaders = []string{
		"server_ts_ms", "receive_ts_ms", "receive_utc",
		"asset_id", "outcome", "condition_id", "side", "price", "size", "best_bid", "best_ask",
	}
	feedTradeHeaders = []string{
		"server_ts_ms", "receive_ts_ms", "receive_utc",
		"asset_id", "outcome", "condition_id", "side", "price", "size", "fee_rate_bps", "dedupe_key",
	}
	chainTradeHeaders = []string{
		"market_slug", "window_start_ts", "condition_id", "event_id",
		"trade_timestamp", "trade_utc", "price", "size", "notional",
		"side", "outcome", "asset", "proxy_wallet", "transaction_hash", "dedupe_key",
	}
)

const (
	bookFile       = "book_snapshots.csv"
	deltaFile      = "price_changes.csv"
	feedTradeFile  = "ws_trades.csv"
	chainTradeFile = "trades.csv"
)

// csvFile is one open CSV output with its buffered writer.
type csvFile struct {
	f *os.File
	w *csv.Writer
}

// CSVSink writes records into per-market directories under a data root, one
// file per record kind, headers written on create. Safe for concurrent use;
// the recorder and chain listener workers share it.
type CSVSink struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]*csvFile // slug/filename -> open file
}

// NewCSV creates a CSVSink rooted at dir.
func NewCSV(dir string, logger *slog.Logger) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create data dir: %w", err)
	}
	return &CSVSink{
		root:   dir,
		logger: logger.With(slog.String("component", "csv_sink")),
		files:  make(map[string]*csvFile),
	}, nil
}

// WriteSnapshot emits one row per price level, level index 0 first (best
// price), bids before asks.
func (s *CSVSink) WriteSnapshot(_ context.Context, snap domain.BookSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(snap.MarketSlug, bookFile, bookHeaders)
	if err != nil {
		return err
	}

	writeSide := func(side string, levels []domain.BookLevel) error {
		for i, lv := range levels {
			row := []string{
				strconv.FormatUint(snap.SnapshotSeq, 10),
				strconv.FormatInt(snap.ServerTsMs, 10),
				strconv.FormatInt(snap.ReceiveTsMs, 10),
				utcFromMillis(snap.ReceiveTsMs),
				snap.AssetID, snap.Outcome, snap.ConditionID,
				side, lv.Price, lv.Size, strconv.Itoa(i),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("sink: write snapshot row: %w", err)
			}
		}
		return nil
	}

	if err := writeSide("bid", snap.Bids); err != nil {
		return err
	}
	return writeSide("ask", snap.Asks)
}

// WriteDelta persists one price-change row verbatim.
func (s *CSVSink) WriteDelta(_ context.Context, d domain.PriceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(d.MarketSlug, deltaFile, deltaHeaders)
	if err != nil {
		return err
	}
	row := []string{
		strconv.FormatInt(d.ServerTsMs, 10),
		strconv.FormatInt(d.ReceiveTsMs, 10),
		utcFromMillis(d.ReceiveTsMs),
		d.AssetID, d.Outcome, d.ConditionID,
		d.Side, d.Price, d.Size, d.BestBid, d.BestAsk,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("sink: write delta row: %w", err)
	}
	return nil
}

// WriteTrade routes feed and chain trades to their respective files.
func (s *CSVSink) WriteTrade(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Source == domain.TradeSourceChain {
		w, err := s.writer(t.MarketSlug, chainTradeFile, chainTradeHeaders)
		if err != nil {
			return err
		}
		row := []string{
			t.MarketSlug,
			strconv.FormatInt(t.WindowStartTs, 10),
			t.ConditionID, t.EventID,
			strconv.FormatInt(t.TimestampMs, 10),
			utcFromMillis(t.TimestampMs),
			formatFloat(t.Price), formatFloat(t.Size), formatFloat(t.Notional),
			t.Side, t.Outcome, t.AssetID, t.ProxyWallet, t.TxHash, t.DedupeKey,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("sink: write chain trade row: %w", err)
		}
		return nil
	}

	w, err := s.writer(t.MarketSlug, feedTradeFile, feedTradeHeaders)
	if err != nil {
		return err
	}
	row := []string{
		strconv.FormatInt(t.TimestampMs, 10),
		strconv.FormatInt(t.ReceiveTsMs, 10),
		utcFromMillis(t.ReceiveTsMs),
		t.AssetID, t.Outcome, t.ConditionID,
		t.Side, formatFloat(t.Price), formatFloat(t.Size), t.FeeRateBps, t.DedupeKey,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("sink: write feed trade row: %w", err)
	}
	return nil
}

// Flush flushes every open writer and syncs the files.
func (s *CSVSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, cf := range s.files {
		cf.w.Flush()
		if err := cf.w.Error(); err != nil {
			return fmt.Errorf("sink: flush %s: %w", name, err)
		}
		if err := cf.f.Sync(); err != nil {
			return fmt.Errorf("sink: sync %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes every open file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, cf := range s.files {
		cf.w.Flush()
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sink: close %s: %w", name, err)
		}
		delete(s.files, name)
	}
	return firstErr
}

// RetireMarket flushes and closes the market's files and returns its
// directory, ready for archival.
func (s *CSVSink) RetireMarket(slug string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, slug)
	for _, name := range []string{bookFile, deltaFile, feedTradeFile, chainTradeFile} {
		key := filepath.Join(slug, name)
		cf, ok := s.files[key]
		if !ok {
			continue
		}
		cf.w.Flush()
		if err := cf.f.Close(); err != nil {
			return "", fmt.Errorf("sink: retire %s: %w", key, err)
		}
		delete(s.files, key)
	}
	s.logger.Info("market files closed", slog.String("slug", slug), slog.String("dir", dir))
	return dir, nil
}

// writer returns the open CSV writer for slug/name, creating the file with
// its header row on first use. Caller must hold s.mu.
func (s *CSVSink) writer(slug, name string, headers []string) (*csv.Writer, error) {
	key := filepath.Join(slug, name)
	if cf, ok := s.files[key]; ok {
		return cf.w, nil
	}

	dir := filepath.Join(s.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create market dir: %w", err)
	}

	path := filepath.Join(dir, name)
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	// Write headers only on a fresh or empty file so restarts append.
	if statErr != nil || info.Size() == 0 {
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("sink: write headers %s: %w", path, err)
		}
	}

	s.files[key] = &csvFile{f: f, w: w}
	return w, nil
}

func utcFromMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ domain.RecordSink = (*CSVSink)(nil)
