package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/dedup"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
)

// EthClient is the subset of the RPC client the listener needs.
type EthClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Config tunes the listener's concurrency and dedup windows.
type Config struct {
	Workers     int
	HeadBuffer  int
	LogWindow   int // recency window for log dedupe keys
	BlockWindow int // recency window for duplicate block notifications
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.HeadBuffer < 1 {
		c.HeadBuffer = 64
	}
	if c.LogWindow < 1 {
		c.LogWindow = dedup.DefaultCapacity
	}
	if c.BlockWindow < 1 {
		c.BlockWindow = dedup.BlockCapacity
	}
	return c
}

// Listener subscribes to new heads and, per block, fetches and decodes
// OrderFilled logs from the settlement contracts. Fills are resolved against
// the tracker, deduplicated on txHash:logIndex, and emitted to the sink. A
// block whose log fetch keeps failing is skipped with a gap warning; on-chain
// data is recoverable later, so the listener advances rather than stalls.
type Listener struct {
	client   EthClient
	resolver domain.TokenResolver
	sink     domain.RecordSink
	ckpt     domain.CheckpointStore
	logger   *slog.Logger

	cfg    Config
	retry  retry.Policy
	logs   *dedup.Set
	blocks *dedup.Set

	lastBlock atomic.Uint64
	emitted   atomic.Uint64
}

// New creates a Listener. ckpt may be nil when no checkpoint persistence is
// configured.
func New(client EthClient, resolver domain.TokenResolver, sink domain.RecordSink, ckpt domain.CheckpointStore, cfg Config, policy retry.Policy, logger *slog.Logger) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		client:   client,
		resolver: resolver,
		sink:     sink,
		ckpt:     ckpt,
		logger:   logger.With(slog.String("component", "chain_listener")),
		cfg:      cfg,
		retry:    policy,
		logs:     dedup.New(cfg.LogWindow),
		blocks:   dedup.New(cfg.BlockWindow),
	}
}

// Emitted returns the number of trades written so far.
func (l *Listener) Emitted() uint64 {
	return l.emitted.Load()
}

// LastBlock returns the highest block processed so far.
func (l *Listener) LastBlock() uint64 {
	return l.lastBlock.Load()
}

// Run subscribes to new heads and processes blocks until ctx is cancelled.
// The subscription itself is re-established with backoff on failure.
func (l *Listener) Run(ctx context.Context) error {
	if l.ckpt != nil {
		if cp, err := l.ckpt.Load(ctx); err == nil && cp.LastBlock > 0 {
			l.lastBlock.Store(cp.LastBlock)
			l.logger.InfoContext(ctx, "resuming after checkpoint",
				slog.Uint64("last_block", cp.LastBlock),
			)
		}
	}

	work := make(chan *types.Header, l.cfg.HeadBuffer)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < l.cfg.Workers; i++ {
		g.Go(func() error {
			for head := range work {
				l.processHead(ctx, head)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		return l.pumpHeads(ctx, work)
	})

	return g.Wait()
}

// pumpHeads maintains the new-head subscription and forwards heads to the
// worker pool.
func (l *Listener) pumpHeads(ctx context.Context, work chan<- *types.Header) error {
	backoff := retry.NewBackoff(time.Second, 60*time.Second)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		heads := make(chan *types.Header, l.cfg.HeadBuffer)
		sub, err := l.client.SubscribeNewHead(ctx, heads)
		if err != nil {
			delay := backoff.Next()
			l.logger.WarnContext(ctx, "head subscription failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		err = l.consumeHeads(ctx, sub, heads, work, backoff)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.WarnContext(ctx, "head subscription lost, resubscribing",
			slog.String("error", err.Error()),
		)
	}
}

func (l *Listener) consumeHeads(ctx context.Context, sub ethereum.Subscription, heads <-chan *types.Header, work chan<- *types.Header, backoff *retry.Backoff) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("chain: subscription closed")
			}
			return fmt.Errorf("chain: subscription: %w", err)
		case head := <-heads:
			if head == nil {
				continue
			}
			backoff.Reset()
			select {
			case work <- head:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// processHead handles one block: duplicate suppression, log fetch with
// bounded retries, decode, classify, dedupe, emit, checkpoint.
func (l *Listener) processHead(ctx context.Context, head *types.Header) {
	num := head.Number.Uint64()
	// Keyed on the block hash, not the height: a replacement block after a
	// shallow reorg arrives at an already-seen height and must still be
	// fetched.
	if l.blocks.Seen(head.Hash().Hex()) {
		return
	}

	blockTime := head.Time
	if blockTime == 0 {
		// Some providers omit the timestamp on the notification; fetch the
		// header before deriving trade timestamps.
		err := l.retry.Do(ctx, func(ctx context.Context) error {
			h, err := l.client.HeaderByNumber(ctx, head.Number)
			if err != nil {
				return err
			}
			blockTime = h.Time
			return nil
		})
		if err != nil {
			l.logger.WarnContext(ctx, "block skipped, timestamp unavailable",
				slog.Uint64("block", num),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	query := ethereum.FilterQuery{
		FromBlock: head.Number,
		ToBlock:   head.Number,
		Addresses: []common.Address{CTFExchange, NegRiskCTFExchange},
		Topics:    [][]common.Hash{{OrderFilledTopic}},
	}

	var logs []types.Log
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		logs, ferr = l.client.FilterLogs(ctx, query)
		return ferr
	})
	if err != nil {
		// Recoverable data gap, not fatal: advance past the block.
		l.logger.WarnContext(ctx, "block skipped after retries, data gap",
			slog.Uint64("block", num),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		key := DedupeKey(lg.TxHash, lg.Index)
		if l.logs.Contains(key) {
			continue
		}

		fill, err := DecodeOrderFilled(lg)
		if err != nil {
			l.logger.WarnContext(ctx, "malformed log dropped",
				slog.String("tx", lg.TxHash.Hex()),
				slog.Uint64("block", num),
				slog.String("error", err.Error()),
			)
			continue
		}

		trade, ok := Classify(fill, l.resolver, blockTime)
		if !ok {
			continue // token outside tracked scope
		}

		if err := l.sink.WriteTrade(ctx, trade); err != nil {
			// Not recorded as seen: a transient sink failure must not
			// suppress the fill if it is observed again.
			l.logger.ErrorContext(ctx, "trade write failed",
				slog.String("dedupe_key", trade.DedupeKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		l.logs.Add(key)
		l.emitted.Add(1)
	}

	l.advanceCheckpoint(ctx, num)
}

func (l *Listener) advanceCheckpoint(ctx context.Context, block uint64) {
	for {
		cur := l.lastBlock.Load()
		if block <= cur {
			return
		}
		if l.lastBlock.CompareAndSwap(cur, block) {
			break
		}
	}

	if l.ckpt == nil {
		return
	}
	cp := domain.Checkpoint{LastBlock: block, UpdatedAt: time.Now().UTC()}
	if err := l.ckpt.Save(ctx, cp); err != nil {
		l.logger.WarnContext(ctx, "checkpoint save failed",
			slog.Uint64("block", block),
			slog.String("error", err.Error()),
		)
	}
}
