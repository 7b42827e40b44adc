// Package market tracks the active set of BTC up/down markets and owns the
// asset-ID resolution table shared by the recorder and the chain listener.
package market

import (
	"regexp"
	"strconv"
	"time"
)

// BTCTagID is the Gamma category tag for BTC up/down markets.
const BTCTagID = "235"

// slugPattern matches market slugs like "btc-updown-5m-1771211700":
// timeframe token followed by the window start in unix seconds.
var slugPattern = regexp.MustCompile(`^btc-updown-([a-z0-9]+)-(\d+)$`)

// seriesPattern matches series slugs like "btc-up-or-down-5m".
var seriesPattern = regexp.MustCompile(`^btc-up-or-down-([a-z0-9]+)$`)

// timeframeAliases maps accepted timeframe spellings to the canonical form.
var timeframeAliases = map[string]string{
	"5m":     "5m",
	"15m":    "15m",
	"1h":     "1h",
	"60m":    "1h",
	"hourly": "1h",
	"4h":     "4h",
	"4hour":  "4h",
	"240m":   "4h",
}

// windowDurations gives the market window length per canonical timeframe.
var windowDurations = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
}

// CanonicalTimeframe normalizes a timeframe alias ("hourly", "60m", ...) to
// its canonical form. ok is false for unknown spellings.
func CanonicalTimeframe(alias string) (string, bool) {
	tf, ok := timeframeAliases[alias]
	return tf, ok
}

// WindowDuration returns the window length for a canonical timeframe.
func WindowDuration(timeframe string) (time.Duration, bool) {
	d, ok := windowDurations[timeframe]
	return d, ok
}

// ParseSlug extracts the canonical timeframe and window start from a market
// slug. ok is false when the slug is not a BTC up/down market or uses an
// unknown timeframe.
func ParseSlug(slug string) (timeframe string, windowStart int64, ok bool) {
	m := slugPattern.FindStringSubmatch(slug)
	if m == nil {
		return "", 0, false
	}
	tf, known := timeframeAliases[m[1]]
	if !known {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return tf, ts, true
}

// ParseSeriesSlug extracts the canonical timeframe from a series slug.
func ParseSeriesSlug(slug string) (timeframe string, ok bool) {
	m := seriesPattern.FindStringSubmatch(slug)
	if m == nil {
		return "", false
	}
	tf, known := timeframeAliases[m[1]]
	return tf, known
}
