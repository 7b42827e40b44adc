package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// flushThreshold caps the number of buffered rows before an implicit flush.
const flushThreshold = 500

const insertSnapshotRow = `
	INSERT INTO book_snapshots
		(market_slug, condition_id, asset_id, outcome, snapshot_seq,
		 server_ts_ms, receive_ts_ms, side, price, size, level_index)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const insertDeltaRow = `
	INSERT INTO price_changes
		(market_slug, condition_id, asset_id, outcome,
		 server_ts_ms, receive_ts_ms, side, price, size, best_bid, best_ask)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const insertTradeRow = `
	INSERT INTO trades
		(source, market_slug, window_start_ts, condition_id, event_id,
		 asset_id, outcome, side, price, size, notional, fee_rate_bps,
		 trade_ts_ms, receive_ts_ms, proxy_wallet, transaction_hash, dedupe_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (dedupe_key) DO NOTHING`

// RecordStore buffers rows and writes them in pgx batches. Trades rely on the
// unique dedupe_key for idempotent replays after a restart.
type RecordStore struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	batch *pgx.Batch
}

// NewRecordStore creates a RecordStore over the client's pool.
func NewRecordStore(client *Client) *RecordStore {
	return &RecordStore{pool: client.Pool(), batch: &pgx.Batch{}}
}

func (s *RecordStore) WriteSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := func(side string, levels []domain.BookLevel) {
		for i, lv := range levels {
			s.batch.Queue(insertSnapshotRow,
				snap.MarketSlug, snap.ConditionID, snap.AssetID, snap.Outcome,
				int64(snap.SnapshotSeq), snap.ServerTsMs, snap.ReceiveTsMs,
				side, lv.Price, lv.Size, i,
			)
		}
	}
	queue("bid", snap.Bids)
	queue("ask", snap.Asks)

	return s.maybeFlushLocked(ctx)
}

func (s *RecordStore) WriteDelta(ctx context.Context, d domain.PriceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch.Queue(insertDeltaRow,
		d.MarketSlug, d.ConditionID, d.AssetID, d.Outcome,
		d.ServerTsMs, d.ReceiveTsMs, d.Side, d.Price, d.Size, d.BestBid, d.BestAsk,
	)
	return s.maybeFlushLocked(ctx)
}

func (s *RecordStore) WriteTrade(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch.Queue(insertTradeRow,
		string(t.Source), t.MarketSlug, t.WindowStartTs, t.ConditionID, t.EventID,
		t.AssetID, t.Outcome, t.Side, t.Price, t.Size, t.Notional, t.FeeRateBps,
		t.TimestampMs, t.ReceiveTsMs, t.ProxyWallet, t.TxHash, t.DedupeKey,
	)
	return s.maybeFlushLocked(ctx)
}

// Flush sends all buffered rows in one round trip.
func (s *RecordStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Close flushes any remaining rows; the pool itself is closed by the Client.
func (s *RecordStore) Close() error {
	return s.Flush(context.Background())
}

func (s *RecordStore) maybeFlushLocked(ctx context.Context) error {
	if s.batch.Len() < flushThreshold {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *RecordStore) flushLocked(ctx context.Context) error {
	if s.batch.Len() == 0 {
		return nil
	}
	batch := s.batch
	s.batch = &pgx.Batch{}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: batch insert row %d: %w", i, err)
		}
	}
	return nil
}

var _ domain.RecordSink = (*RecordStore)(nil)
