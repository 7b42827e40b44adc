// Package config defines the top-level configuration for the ingestion
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/market"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Feed       FeedConfig       `toml:"feed"`
	Chain      ChainConfig      `toml:"chain"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	DataDir    string           `toml:"data_dir"`
}

// DiscoveryConfig holds market discovery parameters.
type DiscoveryConfig struct {
	GammaHost    string   `toml:"gamma_host"`
	TagID        string   `toml:"tag_id"`
	Timeframes   []string `toml:"timeframes"`
	PollInterval duration `toml:"poll_interval"`
	GracePeriod  duration `toml:"grace_period"`
}

// FeedConfig holds the market data websocket parameters.
type FeedConfig struct {
	WsHost     string `toml:"ws_host"`
	BufferSize int    `toml:"buffer_size"`
}

// ChainConfig holds the Polygon RPC and listener parameters.
type ChainConfig struct {
	RPCURL      string `toml:"rpc_url"`
	Workers     int    `toml:"workers"`
	HeadBuffer  int    `toml:"head_buffer"`
	LogWindow   int    `toml:"log_window"`
	BlockWindow int    `toml:"block_window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the live trade bus.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for market archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the websocket fan-out server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// CheckpointConfig holds the fallback file checkpoint location, used when
// Postgres is disabled.
type CheckpointConfig struct {
	Path string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Discovery: DiscoveryConfig{
			GammaHost:    "https://gamma-api.polymarket.com",
			TagID:        market.BTCTagID,
			Timeframes:   []string{"5m"},
			PollInterval: duration{30 * time.Second},
			GracePeriod:  duration{60 * time.Second},
		},
		Feed: FeedConfig{
			WsHost:     "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			BufferSize: 4096,
		},
		Chain: ChainConfig{
			RPCURL:      "wss://polygon-rpc.com",
			Workers:     2,
			HeadBuffer:  64,
			LogWindow:   100_000,
			BlockWindow: 4096,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updown-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8000,
		},
		Checkpoint: CheckpointConfig{
			Path: "data/checkpoint.json",
		},
		Mode:     "full",
		LogLevel: "info",
		DataDir:  "data/orderbook",
	}
}

// validModes enumerates the accepted values for Config.Mode. "record" runs
// the order book capture only, "stream" runs the chain listener only, "full"
// runs both.
var validModes = map[string]bool{
	"record": true,
	"stream": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: record, stream, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}

	// Discovery
	if c.Discovery.GammaHost == "" {
		errs = append(errs, "discovery: gamma_host must not be empty")
	}
	if c.Discovery.TagID == "" {
		errs = append(errs, "discovery: tag_id must not be empty")
	}
	if len(c.Discovery.Timeframes) == 0 {
		errs = append(errs, "discovery: at least one timeframe must be set")
	}
	if c.Discovery.PollInterval.Duration < time.Second {
		errs = append(errs, "discovery: poll_interval must be >= 1s")
	}
	if c.Discovery.GracePeriod.Duration < 0 {
		errs = append(errs, "discovery: grace_period must not be negative")
	}

	// Feed
	needsFeed := c.Mode == "record" || c.Mode == "full"
	if needsFeed {
		if c.Feed.WsHost == "" {
			errs = append(errs, "feed: ws_host must not be empty")
		}
		if c.Feed.BufferSize < 1 {
			errs = append(errs, "feed: buffer_size must be >= 1")
		}
	}

	// Chain
	needsChain := c.Mode == "stream" || c.Mode == "full"
	if needsChain {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.Workers < 1 {
			errs = append(errs, "chain: workers must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if !c.Redis.Enabled {
			errs = append(errs, "server: redis must be enabled for the websocket feed")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Checkpoint file path is required when Postgres is not holding the cursor.
	if !c.Postgres.Enabled && c.Checkpoint.Path == "" {
		errs = append(errs, "checkpoint: path must not be empty when postgres is disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
