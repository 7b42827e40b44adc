package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/market"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, []string{"5m"}, cfg.Discovery.Timeframes)
	assert.Equal(t, market.BTCTagID, cfg.Discovery.TagID)
	assert.Equal(t, 30*time.Second, cfg.Discovery.PollInterval.Duration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.LogLevel = "verbose"
	cfg.Feed.BufferSize = 0
	cfg.Discovery.Timeframes = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "buffer_size")
	assert.Contains(t, err.Error(), "timeframe")
}

func TestValidateServerRequiresRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Enabled = true
	cfg.Redis.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis must be enabled")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "record"
data_dir = "/var/lib/updown"

[discovery]
timeframes = ["5m", "1h"]
poll_interval = "45s"
grace_period = "90s"

[feed]
buffer_size = 8192
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("UPDOWN_MODE", "stream")
	t.Setenv("UPDOWN_DISCOVERY_TIMEFRAMES", "15m")
	t.Setenv("UPDOWN_CHAIN_WORKERS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file, file wins over defaults.
	assert.Equal(t, "stream", cfg.Mode)
	assert.Equal(t, []string{"15m"}, cfg.Discovery.Timeframes)
	assert.Equal(t, 45*time.Second, cfg.Discovery.PollInterval.Duration)
	assert.Equal(t, 90*time.Second, cfg.Discovery.GracePeriod.Duration)
	assert.Equal(t, 8192, cfg.Feed.BufferSize)
	assert.Equal(t, 4, cfg.Chain.Workers)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Discovery.GammaHost)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
