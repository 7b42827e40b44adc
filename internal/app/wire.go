package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/blob/s3"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/cache/redis"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/checkpoint"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/config"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/market"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/platform/polymarket"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/sink"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Tracker    *market.Tracker
	Sink       domain.RecordSink
	CSV        *sink.CSVSink
	Checkpoint domain.CheckpointStore
	Bus        domain.SignalBus
	Archiver   domain.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- CSV capture files (always on; the raw log is the primary output) ---
	csvSink, err := sink.NewCSV(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: csv sink: %w", err)
	}
	closers = append(closers, func() { _ = csvSink.Close() })
	deps.CSV = csvSink
	sinks := []domain.RecordSink{csvSink}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		recordStore := postgres.NewRecordStore(pgClient)
		closers = append(closers, func() { _ = recordStore.Close() })
		sinks = append(sinks, recordStore)
		deps.Checkpoint = postgres.NewCheckpointStore(pgClient)
	}

	// --- Redis trade bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		sinks = append(sinks, sink.NewBus(deps.Bus, logger))
	}

	// --- S3 archival for retired markets ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewMarketArchiver(s3blob.NewWriter(s3Client), logger)
	}

	// --- Chain checkpoint fallback ---
	if deps.Checkpoint == nil {
		fileStore, err := checkpoint.NewFileStore(cfg.Checkpoint.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: checkpoint: %w", err)
		}
		deps.Checkpoint = fileStore
	}

	deps.Sink = sink.NewComposite(sinks...)

	// --- Market discovery ---
	gamma := polymarket.NewGammaClient(cfg.Discovery.GammaHost, cfg.Discovery.TagID, retry.DefaultPolicy())
	tracker, err := market.NewTracker(gamma, cfg.Discovery.Timeframes, cfg.Discovery.GracePeriod.Duration, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: tracker: %w", err)
	}
	deps.Tracker = tracker

	return deps, cleanup, nil
}
