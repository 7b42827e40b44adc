package chain

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
)

type fakeEthClient struct {
	mu          sync.Mutex
	logs        []types.Log
	filterErr   error
	filterCalls int
}

func (f *fakeEthClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not used")
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	return f.logs, nil
}

func (f *fakeEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: 1_771_211_712}, nil
}

type memSink struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *memSink) WriteSnapshot(context.Context, domain.BookSnapshot) error { return nil }
func (s *memSink) WriteDelta(context.Context, domain.PriceDelta) error     { return nil }
func (s *memSink) WriteTrade(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}
func (s *memSink) Flush(context.Context) error { return nil }
func (s *memSink) Close() error                { return nil }

// flakySink fails the first n trade writes, then behaves like memSink.
type flakySink struct {
	memSink
	failures int
}

func (s *flakySink) WriteTrade(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("backend unavailable")
	}
	s.mu.Unlock()
	return s.memSink.WriteTrade(ctx, t)
}

type memCheckpoint struct {
	mu sync.Mutex
	cp domain.Checkpoint
}

func (m *memCheckpoint) Load(context.Context) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp, nil
}
func (m *memCheckpoint) Save(_ context.Context, cp domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = cp
	return nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 2}
}

func head(num uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(num), Time: 1_771_211_712}
}

func TestProcessHeadEmitsTrades(t *testing.T) {
	client := &fakeEthClient{logs: []types.Log{
		orderFilledLog(assetUp, usdc, big.NewInt(50_000_000), big.NewInt(27_000_000), 3),
		orderFilledLog(usdc, assetDown, big.NewInt(23_000_000), big.NewInt(50_000_000), 7),
	}}
	sink := &memSink{}
	ckpt := &memCheckpoint{}
	l := New(client, testResolver(), sink, ckpt, Config{}, fastPolicy(), slog.Default())

	l.processHead(context.Background(), head(5000))

	require.Len(t, sink.trades, 2)
	assert.Equal(t, "SELL", sink.trades[0].Side)
	assert.Equal(t, "BUY", sink.trades[1].Side)
	assert.Equal(t, TimestampMs(1_771_211_712, 3), sink.trades[0].TimestampMs)
	assert.Equal(t, TimestampMs(1_771_211_712, 7), sink.trades[1].TimestampMs)
	assert.Equal(t, uint64(2), l.Emitted())

	cp, err := ckpt.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), cp.LastBlock)
}

func TestDuplicateHeadSuppressed(t *testing.T) {
	client := &fakeEthClient{logs: []types.Log{
		orderFilledLog(assetUp, usdc, big.NewInt(50_000_000), big.NewInt(27_000_000), 3),
	}}
	sink := &memSink{}
	l := New(client, testResolver(), sink, nil, Config{}, fastPolicy(), slog.Default())

	l.processHead(context.Background(), head(5000))
	l.processHead(context.Background(), head(5000))

	assert.Len(t, sink.trades, 1)
	assert.Equal(t, 1, client.filterCalls)
}

func TestReplacementBlockAtSameHeightProcessed(t *testing.T) {
	client := &fakeEthClient{logs: []types.Log{
		orderFilledLog(assetUp, usdc, big.NewInt(50_000_000), big.NewInt(27_000_000), 3),
	}}
	sink := &memSink{}
	l := New(client, testResolver(), sink, nil, Config{}, fastPolicy(), slog.Default())

	h1 := head(5000)
	l.processHead(context.Background(), h1)

	// A shallow reorg delivers a different block at the same height; its
	// fills must not be lost to duplicate suppression.
	h2 := head(5000)
	h2.Extra = []byte{0x01}
	require.NotEqual(t, h1.Hash(), h2.Hash())

	client.mu.Lock()
	client.logs = []types.Log{
		orderFilledLog(usdc, assetDown, big.NewInt(23_000_000), big.NewInt(50_000_000), 7),
	}
	client.mu.Unlock()

	l.processHead(context.Background(), h2)

	assert.Equal(t, 2, client.filterCalls)
	assert.Len(t, sink.trades, 2)
}

func TestDuplicateLogSuppressedAcrossBlocks(t *testing.T) {
	lg := orderFilledLog(assetUp, usdc, big.NewInt(50_000_000), big.NewInt(27_000_000), 3)
	client := &fakeEthClient{logs: []types.Log{lg, lg}}
	sink := &memSink{}
	l := New(client, testResolver(), sink, nil, Config{}, fastPolicy(), slog.Default())

	l.processHead(context.Background(), head(5000))

	assert.Len(t, sink.trades, 1)
}

func TestFailedTradeWriteDoesNotSuppressRetry(t *testing.T) {
	lg := orderFilledLog(assetUp, usdc, big.NewInt(50_000_000), big.NewInt(27_000_000), 3)
	client := &fakeEthClient{logs: []types.Log{lg}}
	sink := &flakySink{failures: 1}
	l := New(client, testResolver(), sink, nil, Config{}, fastPolicy(), slog.Default())

	h1 := head(5000)
	l.processHead(context.Background(), h1)
	assert.Empty(t, sink.trades)

	// The same fill observed again (replacement block after a reorg) must
	// still be written: a failed write does not mark the key as seen.
	h2 := head(5000)
	h2.Extra = []byte{0x01}
	l.processHead(context.Background(), h2)

	require.Len(t, sink.trades, 1)
	assert.Equal(t, lg.TxHash.Hex()+":3", sink.trades[0].DedupeKey)
}

func TestFailedLogFetchSkipsBlockWithoutCheckpoint(t *testing.T) {
	client := &fakeEthClient{filterErr: errors.New("rpc timeout")}
	sink := &memSink{}
	ckpt := &memCheckpoint{}
	l := New(client, testResolver(), sink, ckpt, Config{}, fastPolicy(), slog.Default())

	l.processHead(context.Background(), head(5000))

	// Retried, then skipped as a gap: nothing emitted, checkpoint untouched.
	assert.Equal(t, 2, client.filterCalls)
	assert.Empty(t, sink.trades)
	cp, _ := ckpt.Load(context.Background())
	assert.Zero(t, cp.LastBlock)

	// The listener advances: the next block processes normally.
	client.mu.Lock()
	client.filterErr = nil
	client.logs = []types.Log{orderFilledLog(assetUp, usdc, big.NewInt(1_000_000), big.NewInt(500_000), 0)}
	client.mu.Unlock()

	l.processHead(context.Background(), head(5001))
	assert.Len(t, sink.trades, 1)
	cp, _ = ckpt.Load(context.Background())
	assert.Equal(t, uint64(5001), cp.LastBlock)
}

func TestRemovedAndUntrackedLogsIgnored(t *testing.T) {
	removed := orderFilledLog(assetUp, usdc, big.NewInt(1_000_000), big.NewInt(500_000), 1)
	removed.Removed = true
	untracked := orderFilledLog(big.NewInt(999), usdc, big.NewInt(1_000_000), big.NewInt(500_000), 2)

	client := &fakeEthClient{logs: []types.Log{removed, untracked}}
	sink := &memSink{}
	l := New(client, testResolver(), sink, nil, Config{}, fastPolicy(), slog.Default())

	l.processHead(context.Background(), head(5000))
	assert.Empty(t, sink.trades)
}
