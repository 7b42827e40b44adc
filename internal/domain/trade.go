package domain

// TradeSource distinguishes the two independent trade confirmation paths.
type TradeSource string

const (
	TradeSourceChain TradeSource = "chain"
	TradeSourceFeed  TradeSource = "feed"
)

// Trade is a normalized trade record. Chain-derived trades carry TxHash and
// ProxyWallet and a TimestampMs of blockTime*1000+logIndex, which gives a
// deterministic sub-second ordering of same-block fills. Feed-derived trades
// carry the venue server timestamp and a fee rate instead.
type Trade struct {
	Source        TradeSource
	MarketSlug    string
	ConditionID   string
	EventID       string
	WindowStartTs int64
	AssetID       string
	Outcome       string
	Side          string // "BUY" or "SELL"
	Price         float64
	Size          float64
	Notional      float64
	FeeRateBps    string // feed trades only
	TimestampMs   int64
	ReceiveTsMs   int64
	ProxyWallet   string // chain trades only (maker address)
	TxHash        string // chain trades only
	DedupeKey     string
}
