package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
)

// discoveryPageSize is the Gamma pagination limit per request.
const discoveryPageSize = 500

// GammaClient is the REST client for the Polymarket Gamma API, used for
// market discovery.
type GammaClient struct {
	baseURL    string
	tagID      string
	httpClient *http.Client
	retry      retry.Policy
}

// NewGammaClient creates a Gamma API client scoped to one category tag.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL, tagID string, policy retry.Policy) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		tagID:   tagID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: policy,
	}
}

// ListOpenMarkets returns every active, open market under the configured
// tag, following pagination until a short page.
func (g *GammaClient) ListOpenMarkets(ctx context.Context) ([]domain.Market, error) {
	var markets []domain.Market

	for offset := 0; ; offset += discoveryPageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(discoveryPageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("closed", "false")
		params.Set("active", "true")
		params.Set("tag_id", g.tagID)

		body, err := g.doGet(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
		}

		var page []APIMarket
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
		}

		for i := range page {
			markets = append(markets, page[i].ToDomainMarket())
		}

		if len(page) < discoveryPageSize {
			return markets, nil
		}
	}
}

// doGet sends an unauthenticated GET request, retrying transient failures
// with the shared policy.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	var body []byte

	err := g.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("gamma status %d: %s", resp.StatusCode, truncate(data, 200))
		}

		body = data
		return nil
	})
	return body, err
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
