package polymarket

import (
	"encoding/json"
	"strings"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma API.
type APIMarket struct {
	ID           string     `json:"id"`
	Question     string     `json:"question"`
	ConditionID  string     `json:"conditionId"`
	Slug         string     `json:"slug"`
	Active       flexBool   `json:"active"`
	Closed       bool       `json:"closed"`
	Outcomes     string     `json:"outcomes"`     // JSON-encoded: e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs string     `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	EndDateISO   string     `json:"endDateIso"`
	Events       []APIEvent `json:"events"`
}

// APIEvent is the event entry embedded in a Gamma market response. An event
// groups one or more related markets.
type APIEvent struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// ToDomainMarket converts a Gamma market DTO to a domain.Market. Outcome
// labels and token IDs arrive as JSON-encoded string arrays and are paired
// positionally.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		Slug:        m.Slug,
		ConditionID: m.ConditionID,
		Question:    m.Question,
	}
	if len(m.Events) > 0 {
		dm.EventID = m.Events[0].ID
	}

	var tokenIDs, outcomes []string
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs)
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)

	for i := 0; i < 2 && i < len(tokenIDs); i++ {
		dm.Tokens[i].AssetID = tokenIDs[i]
		if i < len(outcomes) {
			dm.Tokens[i].Outcome = outcomes[i]
		}
	}
	return dm
}

// --------------------------------------------------------------------------
// CLOB WebSocket DTOs
// --------------------------------------------------------------------------

// wsSubscribe is the initial subscription sent on connect. The full token
// set is always sent so a reconnect can never leave stale partial state.
type wsSubscribe struct {
	AssetIDs             []string `json:"assets_ids"`
	Type                 string   `json:"type"`
	CustomFeatureEnabled bool     `json:"custom_feature_enabled"`
}

// wsOperation is the incremental subscribe/unsubscribe message used on a
// live connection.
type wsOperation struct {
	AssetIDs  []string `json:"assets_ids"`
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
}

// RawEvent is one inbound market event, split out of the JSON array frames
// the feed sends. Data is the unparsed event object; the recorder dispatches
// on Type.
type RawEvent struct {
	Type      string
	AssetID   string
	Data      json.RawMessage
	ReceiveTs int64 // local receive timestamp, unix ms
}

// eventEnvelope is the discriminant portion of every feed event.
type eventEnvelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
}

// BookMessage is a full order book snapshot event.
type BookMessage struct {
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"` // condition ID
	Timestamp string      `json:"timestamp"`
	Bids      []BookEntry `json:"bids"`
	Asks      []BookEntry `json:"asks"`
	// Older feed versions used buys/sells for the same payload.
	Buys  []BookEntry `json:"buys"`
	Sells []BookEntry `json:"sells"`
}

// BookEntry is one price level in a book snapshot, best price last as sent
// by the venue.
type BookEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage is an incremental level update event. Each change
// entry may carry its own asset ID; the envelope value is the fallback.
type PriceChangeMessage struct {
	AssetID   string        `json:"asset_id"`
	Market    string        `json:"market"`
	Timestamp string        `json:"timestamp"`
	Changes   []PriceChange `json:"price_changes"`
}

// PriceChange is one entry of a price_change event. Size "0" removes the
// level.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// TradeMessage is a last_trade_price event: a trade confirmation pushed by
// the feed.
type TradeMessage struct {
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	FeeRateBps string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"`
}
