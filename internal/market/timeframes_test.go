package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSlug(t *testing.T) {
	tests := []struct {
		slug          string
		wantTimeframe string
		wantStart     int64
		wantOK        bool
	}{
		{"btc-updown-5m-1771211700", "5m", 1771211700, true},
		{"btc-updown-15m-1771211700", "15m", 1771211700, true},
		{"btc-updown-1h-1771210800", "1h", 1771210800, true},
		{"btc-updown-hourly-1771210800", "1h", 1771210800, true},
		{"btc-updown-60m-1771210800", "1h", 1771210800, true},
		{"btc-updown-4h-1771200000", "4h", 1771200000, true},
		{"btc-updown-4hour-1771200000", "4h", 1771200000, true},
		{"btc-updown-240m-1771200000", "4h", 1771200000, true},
		{"btc-updown-2m-1771211700", "", 0, false},
		{"eth-updown-5m-1771211700", "", 0, false},
		{"btc-updown-5m-", "", 0, false},
		{"btc-up-or-down-5m", "", 0, false},
	}

	for _, tt := range tests {
		tf, start, ok := ParseSlug(tt.slug)
		assert.Equal(t, tt.wantOK, ok, "slug %s", tt.slug)
		assert.Equal(t, tt.wantTimeframe, tf, "slug %s", tt.slug)
		assert.Equal(t, tt.wantStart, start, "slug %s", tt.slug)
	}
}

func TestParseSeriesSlug(t *testing.T) {
	tf, ok := ParseSeriesSlug("btc-up-or-down-5m")
	assert.True(t, ok)
	assert.Equal(t, "5m", tf)

	tf, ok = ParseSeriesSlug("btc-up-or-down-hourly")
	assert.True(t, ok)
	assert.Equal(t, "1h", tf)

	_, ok = ParseSeriesSlug("btc-updown-5m-1771211700")
	assert.False(t, ok)
}

func TestWindowDuration(t *testing.T) {
	d, ok := WindowDuration("5m")
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	d, ok = WindowDuration("4h")
	assert.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)

	_, ok = WindowDuration("2m")
	assert.False(t, ok)
}
