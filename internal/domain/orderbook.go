package domain

// BookLevel is one aggregated price level, kept verbatim as reported by the
// venue. Position in the containing slice is the level index, best price
// first.
type BookLevel struct {
	Price string
	Size  string
}

// BookSnapshot is a full order book for one asset at one instant.
// SnapshotSeq is monotonically increasing per market; rows derived from a
// snapshot share the same seq and are ordered by level index.
type BookSnapshot struct {
	MarketSlug  string
	ConditionID string
	AssetID     string
	Outcome     string
	SnapshotSeq uint64
	ServerTsMs  int64 // venue-reported timestamp
	ReceiveTsMs int64 // local receive timestamp
	Bids        []BookLevel
	Asks        []BookLevel
}

// PriceDelta is an incremental level update, persisted verbatim. Size "0"
// denotes removal of the level. Deltas carry no snapshot seq; reconstruction
// is a read-time concern.
type PriceDelta struct {
	MarketSlug  string
	ConditionID string
	AssetID     string
	Outcome     string
	Side        string // "BUY" or "SELL"
	Price       string
	Size        string
	BestBid     string
	BestAsk     string
	ServerTsMs  int64
	ReceiveTsMs int64
}
