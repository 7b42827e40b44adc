package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// DiscoveryClient lists the currently open markets in the tracked category.
type DiscoveryClient interface {
	ListOpenMarkets(ctx context.Context) ([]domain.Market, error)
}

// tracked is a market plus its lifecycle bookkeeping.
type tracked struct {
	market     domain.Market
	graceUntil time.Time // zero while the market is still listed
}

// Tracker discovers markets on a fixed interval and maintains the active set
// and the assetID -> market resolution table. Markets absent from a poll (or
// past expiry) enter a grace period before retirement so late events are
// still captured.
type Tracker struct {
	discovery  DiscoveryClient
	timeframes map[string]bool
	grace      time.Duration
	logger     *slog.Logger

	mu       sync.RWMutex
	active   map[string]*tracked         // slug -> market state
	table    map[string]domain.TokenRef  // assetID -> resolution, swapped atomically
	lastPoll time.Time
}

// NewTracker creates a Tracker filtering discovery results to the given
// timeframes (aliases accepted). grace is the retention window after a
// market's expiry or delisting.
func NewTracker(discovery DiscoveryClient, timeframes []string, grace time.Duration, logger *slog.Logger) (*Tracker, error) {
	tfs := make(map[string]bool, len(timeframes))
	for _, alias := range timeframes {
		tf, ok := CanonicalTimeframe(alias)
		if !ok {
			return nil, fmt.Errorf("market: unknown timeframe %q", alias)
		}
		tfs[tf] = true
	}
	if len(tfs) == 0 {
		tfs["5m"] = true
	}

	return &Tracker{
		discovery:  discovery,
		timeframes: tfs,
		grace:      grace,
		logger:     logger.With(slog.String("component", "market_tracker")),
		active:     make(map[string]*tracked),
		table:      make(map[string]domain.TokenRef),
	}, nil
}

// PollOnce fetches the current open-market listing, diffs it against the
// known active set, and rebuilds the resolution table. Newly discovered
// markets are returned as added; markets whose grace period has elapsed are
// returned as removed and dropped from the table. On discovery failure the
// last known-good state is kept untouched.
func (t *Tracker) PollOnce(ctx context.Context) (added, removed []domain.Market, err error) {
	listed, err := t.discovery.ListOpenMarkets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("market: discovery poll: %w", err)
	}

	now := time.Now().UTC()

	inScope := make(map[string]domain.Market)
	for _, m := range listed {
		tf, windowStart, ok := ParseSlug(m.Slug)
		if !ok || !t.timeframes[tf] {
			continue
		}
		m.Timeframe = tf
		m.WindowStartTs = windowStart
		if d, ok := WindowDuration(tf); ok && m.ExpiryTs == 0 {
			m.ExpiryTs = windowStart + int64(d.Seconds())
		}
		inScope[m.Slug] = m
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for slug, m := range inScope {
		cur, known := t.active[slug]
		if !known {
			m.Status = domain.MarketStatusSubscribed
			m.DiscoveredAt = now
			t.active[slug] = &tracked{market: m}
			added = append(added, m)
			continue
		}
		// Re-listed during grace and not yet expired: keep it subscribed.
		if cur.market.ExpiryTs == 0 || now.Unix() < cur.market.ExpiryTs {
			cur.graceUntil = time.Time{}
			cur.market.Status = domain.MarketStatusSubscribed
		}
	}

	for slug, cur := range t.active {
		_, listed := inScope[slug]
		expired := cur.market.ExpiryTs > 0 && now.Unix() >= cur.market.ExpiryTs

		if listed && !expired {
			continue
		}

		if cur.graceUntil.IsZero() {
			cur.market.Status = domain.MarketStatusGrace
			cur.graceUntil = now.Add(t.grace)
			if expiry := time.Unix(cur.market.ExpiryTs, 0); cur.market.ExpiryTs > 0 && expiry.Add(t.grace).After(cur.graceUntil) {
				cur.graceUntil = expiry.Add(t.grace)
			}
			continue
		}

		if now.After(cur.graceUntil) {
			cur.market.Status = domain.MarketStatusRetired
			removed = append(removed, cur.market)
			delete(t.active, slug)
		}
	}

	// Rebuild the resolution table in one shot so readers never observe a
	// partially updated mapping.
	table := make(map[string]domain.TokenRef, 2*len(t.active))
	for _, cur := range t.active {
		for _, tok := range cur.market.Tokens {
			if tok.AssetID == "" {
				continue
			}
			table[tok.AssetID] = domain.TokenRef{
				MarketSlug:    cur.market.Slug,
				ConditionID:   cur.market.ConditionID,
				EventID:       cur.market.EventID,
				Outcome:       tok.Outcome,
				WindowStartTs: cur.market.WindowStartTs,
			}
		}
	}
	t.table = table
	t.lastPoll = now

	return added, removed, nil
}

// Run polls on the given interval until ctx is done, invoking onChange for
// each poll that produced subscription changes. Failed polls keep the last
// known-good set and are retried next interval.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, onChange func(added, removed []domain.Market)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		added, removed, err := t.PollOnce(ctx)
		if err != nil {
			t.logger.WarnContext(ctx, "discovery poll failed, keeping last known set",
				slog.String("error", err.Error()),
			)
		} else {
			if onChange != nil && (len(added) > 0 || len(removed) > 0) {
				onChange(added, removed)
			}
			t.logger.InfoContext(ctx, "discovery poll complete",
				slog.Int("active_markets", t.ActiveCount()),
				slog.Int("tracked_tokens", t.TokenCount()),
				slog.Int("added", len(added)),
				slog.Int("removed", len(removed)),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResolveToken resolves an asset ID to its market and outcome. Misses return
// domain.ErrNotFound; callers drop the event rather than erroring.
func (t *Tracker) ResolveToken(assetID string) (domain.TokenRef, error) {
	t.mu.RLock()
	ref, ok := t.table[assetID]
	t.mu.RUnlock()
	if !ok {
		return domain.TokenRef{}, fmt.Errorf("market: resolve token %s: %w", assetID, domain.ErrNotFound)
	}
	return ref, nil
}

// ResolveMarket returns the tracked market for slug, including markets still
// in their grace period.
func (t *Tracker) ResolveMarket(slug string) (domain.Market, error) {
	t.mu.RLock()
	cur, ok := t.active[slug]
	t.mu.RUnlock()
	if !ok {
		return domain.Market{}, fmt.Errorf("market: resolve market %s: %w", slug, domain.ErrNotFound)
	}
	return cur.market, nil
}

// TokenIDs returns the full subscription set: every token of every market in
// subscribed or grace state.
func (t *Tracker) TokenIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.table))
	for id := range t.table {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount returns the number of markets currently tracked.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// TokenCount returns the size of the resolution table.
func (t *Tracker) TokenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}

// LastPollAt returns the time of the last successful poll.
func (t *Tracker) LastPollAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastPoll
}

var _ domain.TokenResolver = (*Tracker)(nil)
