package market

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

type fakeDiscovery struct {
	markets []domain.Market
	err     error
}

func (f *fakeDiscovery) ListOpenMarkets(ctx context.Context) ([]domain.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Market, len(f.markets))
	copy(out, f.markets)
	return out, nil
}

func testMarket(slug string, expiry int64) domain.Market {
	return domain.Market{
		Slug:        slug,
		ConditionID: "0xcond-" + slug,
		EventID:     "ev-" + slug,
		ExpiryTs:    expiry,
		Tokens: [2]domain.Token{
			{AssetID: "up-" + slug, Outcome: "Up"},
			{AssetID: "down-" + slug, Outcome: "Down"},
		},
	}
}

func newTestTracker(t *testing.T, disc DiscoveryClient, grace time.Duration) *Tracker {
	t.Helper()
	tr, err := NewTracker(disc, []string{"5m"}, grace, slog.Default())
	require.NoError(t, err)
	return tr
}

func TestPollOnceDiscoversAndResolves(t *testing.T) {
	m := testMarket("btc-updown-5m-1771211700", time.Now().Add(time.Hour).Unix())
	disc := &fakeDiscovery{markets: []domain.Market{m}}
	tr := newTestTracker(t, disc, time.Minute)

	added, removed, err := tr.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Empty(t, removed)
	assert.Equal(t, "5m", added[0].Timeframe)
	assert.Equal(t, int64(1771211700), added[0].WindowStartTs)

	ref, err := tr.ResolveToken("up-btc-updown-5m-1771211700")
	require.NoError(t, err)
	assert.Equal(t, "btc-updown-5m-1771211700", ref.MarketSlug)
	assert.Equal(t, "Up", ref.Outcome)

	ref, err = tr.ResolveToken("down-btc-updown-5m-1771211700")
	require.NoError(t, err)
	assert.Equal(t, "Down", ref.Outcome)

	_, err = tr.ResolveToken("not-tracked")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := tr.ResolveMarket("btc-updown-5m-1771211700")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusSubscribed, got.Status)

	_, err = tr.ResolveMarket("btc-updown-5m-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ElementsMatch(t, []string{
		"up-btc-updown-5m-1771211700",
		"down-btc-updown-5m-1771211700",
	}, tr.TokenIDs())
}

func TestPollOnceFiltersTimeframesAndForeignSlugs(t *testing.T) {
	disc := &fakeDiscovery{markets: []domain.Market{
		testMarket("btc-updown-5m-1771211700", 0),
		testMarket("btc-updown-1h-1771210800", 0),
		testMarket("eth-updown-5m-1771211700", 0),
	}}
	tr := newTestTracker(t, disc, time.Minute)

	added, _, err := tr.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "btc-updown-5m-1771211700", added[0].Slug)
}

func TestDelistedMarketRetiresAfterGrace(t *testing.T) {
	slug := "btc-updown-5m-1771211700"
	m := testMarket(slug, time.Now().Add(-time.Minute).Unix())
	disc := &fakeDiscovery{markets: []domain.Market{m}}
	tr := newTestTracker(t, disc, 20*time.Millisecond)

	_, _, err := tr.PollOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, tr.ActiveCount())

	// Delisted: first absent poll enters the grace period, tokens remain
	// resolvable.
	disc.markets = nil
	added, removed, err := tr.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	_, err = tr.ResolveToken("up-" + slug)
	require.NoError(t, err)

	// After the grace period elapses the next poll retires it.
	time.Sleep(40 * time.Millisecond)
	_, removed, err = tr.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, slug, removed[0].Slug)
	assert.Equal(t, domain.MarketStatusRetired, removed[0].Status)

	_, err = tr.ResolveToken("up-" + slug)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, tr.ActiveCount())
	assert.Empty(t, tr.TokenIDs())
}

func TestFailedPollKeepsLastKnownSet(t *testing.T) {
	slug := "btc-updown-5m-1771211700"
	disc := &fakeDiscovery{markets: []domain.Market{testMarket(slug, time.Now().Add(time.Hour).Unix())}}
	tr := newTestTracker(t, disc, time.Minute)

	_, _, err := tr.PollOnce(context.Background())
	require.NoError(t, err)

	disc.err = errors.New("gamma 503")
	_, _, err = tr.PollOnce(context.Background())
	require.Error(t, err)

	// State untouched by the failed poll.
	assert.Equal(t, 1, tr.ActiveCount())
	_, err = tr.ResolveToken("up-" + slug)
	assert.NoError(t, err)
}

func TestRelistedDuringGraceStaysSubscribed(t *testing.T) {
	slug := "btc-updown-5m-1771211700"
	m := testMarket(slug, time.Now().Add(time.Hour).Unix())
	disc := &fakeDiscovery{markets: []domain.Market{m}}
	tr := newTestTracker(t, disc, time.Hour)

	_, _, err := tr.PollOnce(context.Background())
	require.NoError(t, err)

	disc.markets = nil
	_, _, err = tr.PollOnce(context.Background())
	require.NoError(t, err)

	disc.markets = []domain.Market{m}
	_, removed, err := tr.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 1, tr.ActiveCount())
}
