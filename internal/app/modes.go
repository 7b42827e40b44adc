package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/chain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/platform/polymarket"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/recorder"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/server/ws"
)

// RecordMode runs market discovery, the market data websocket, and the order
// book recorder.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startCapture(ctx, g, deps)
	return g.Wait()
}

// StreamMode runs market discovery and the on-chain trade listener without
// the order book feed.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Tracker.Run(ctx, a.cfg.Discovery.PollInterval.Duration, func(added, removed []domain.Market) {
			a.retireMarkets(ctx, deps, removed)
		})
	})

	if err := a.startChainListener(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs everything: order book capture, the chain listener, and the
// websocket fan-out server when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startCapture(ctx, g, deps)

	if err := a.startChainListener(ctx, g, deps); err != nil {
		return err
	}

	if a.cfg.Server.Enabled && deps.Bus != nil {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// startCapture wires discovery, the venue websocket, and the recorder into
// the group. Discovery changes drive the websocket subscription set and
// retire finished markets.
func (a *App) startCapture(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	wsClient := polymarket.NewClient(a.cfg.Feed.WsHost, deps.Tracker.TokenIDs, a.cfg.Feed.BufferSize, a.logger)
	rec := recorder.New(deps.Tracker, deps.Sink, wsClient.Session(), a.logger)

	g.Go(func() error {
		return deps.Tracker.Run(ctx, a.cfg.Discovery.PollInterval.Duration, func(added, removed []domain.Market) {
			if ids := tokenIDs(added); len(ids) > 0 {
				wsClient.Subscribe(ids)
			}
			if ids := tokenIDs(removed); len(ids) > 0 {
				wsClient.Unsubscribe(ids)
			}
			a.retireMarkets(ctx, deps, removed)
		})
	})
	g.Go(func() error {
		return wsClient.Run(ctx)
	})
	g.Go(func() error {
		return rec.Run(ctx, wsClient.Events())
	})
	g.Go(func() error {
		return a.statusLoop(ctx, deps, rec)
	})
}

// statusLoop emits a periodic health line with tracked-set sizes and event
// counters.
func (a *App) statusLoop(ctx context.Context, deps *Dependencies, rec *recorder.Recorder) error {
	ticker := time.NewTicker(a.cfg.Discovery.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			books, deltas, trades := rec.Counts()
			a.logger.InfoContext(ctx, "capture status",
				slog.Int("active_markets", deps.Tracker.ActiveCount()),
				slog.Int("tracked_tokens", deps.Tracker.TokenCount()),
				slog.Time("last_poll", deps.Tracker.LastPollAt()),
				slog.Uint64("books", books),
				slog.Uint64("deltas", deltas),
				slog.Uint64("trades", trades),
			)
		}
	}
}

// startChainListener dials the RPC endpoint and runs the OrderFilled
// listener.
func (a *App) startChainListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	ethClient, err := ethclient.DialContext(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("app: dial chain rpc: %w", err)
	}
	a.closers = append(a.closers, ethClient.Close)

	listener := chain.New(ethClient, deps.Tracker, deps.Sink, deps.Checkpoint, chain.Config{
		Workers:     a.cfg.Chain.Workers,
		HeadBuffer:  a.cfg.Chain.HeadBuffer,
		LogWindow:   a.cfg.Chain.LogWindow,
		BlockWindow: a.cfg.Chain.BlockWindow,
	}, retry.DefaultPolicy(), a.logger)

	g.Go(func() error {
		return listener.Run(ctx)
	})
	return nil
}

// startServer exposes the live trade feed over a websocket endpoint.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: mux,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "websocket server listening", slog.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})
}

// retireMarkets closes a retired market's capture files and hands the
// directory to the archiver when one is configured.
func (a *App) retireMarkets(ctx context.Context, deps *Dependencies, removed []domain.Market) {
	for _, m := range removed {
		dir, err := deps.CSV.RetireMarket(m.Slug)
		if err != nil {
			a.logger.ErrorContext(ctx, "market retire failed",
				slog.String("slug", m.Slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		if deps.Archiver == nil {
			continue
		}
		files, err := deps.Archiver.ArchiveMarket(ctx, m.Slug, dir)
		if err != nil {
			a.logger.ErrorContext(ctx, "market archive failed",
				slog.String("slug", m.Slug),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "retired market archived",
			slog.String("slug", m.Slug),
			slog.Int("files", files),
		)
	}
}

// tokenIDs flattens the asset IDs of the given markets.
func tokenIDs(markets []domain.Market) []string {
	var ids []string
	for _, m := range markets {
		for _, tok := range m.Tokens {
			if tok.AssetID != "" {
				ids = append(ids, tok.AssetID)
			}
		}
	}
	return ids
}
