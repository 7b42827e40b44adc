package domain

import "time"

// MarketStatus represents the lifecycle state of a tracked market.
type MarketStatus string

const (
	MarketStatusPending    MarketStatus = "pending"
	MarketStatusSubscribed MarketStatus = "subscribed"
	MarketStatusGrace      MarketStatus = "grace"
	MarketStatusRetired    MarketStatus = "retired"
)

// Token is one tradable outcome token of a binary market.
type Token struct {
	AssetID string // ERC-1155 token ID (76-digit decimal string)
	Outcome string // "Up" or "Down"
}

// Market is a short-duration BTC up/down prediction market. The slug encodes
// the timeframe and window start, e.g. "btc-updown-5m-1771211700".
type Market struct {
	Slug          string
	ConditionID   string
	EventID       string
	Question      string
	Timeframe     string // canonical: "5m", "15m", "1h", "4h"
	WindowStartTs int64  // unix seconds
	ExpiryTs      int64  // unix seconds, WindowStartTs + window duration
	Tokens        [2]Token
	Status        MarketStatus
	DiscoveredAt  time.Time
}

// TokenRef is the resolution of an asset ID back to its market and outcome.
// Invariant: an asset ID maps to exactly one active market at a time.
type TokenRef struct {
	MarketSlug    string
	ConditionID   string
	EventID       string
	Outcome       string
	WindowStartTs int64
}

// TokenResolver resolves asset IDs to market identity. A miss returns
// ErrNotFound and is expected for tokens outside the tracked scope.
type TokenResolver interface {
	ResolveToken(assetID string) (TokenRef, error)
}
