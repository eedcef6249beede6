// Package price fetches USD token prices from DexScreener. Strategies use it
// for reporting and mid-price estimation; nothing in the signing path
// depends on it.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

const defaultBaseURL = "https://api.dexscreener.com"

// Feed answers current-price queries for a mint.
type Feed interface {
	GetCurrentPrice(ctx context.Context, mint string) (float64, error)
}

// DexScreenerFeed queries the public DexScreener token endpoint.
type DexScreenerFeed struct {
	baseURL string
	client  *http.Client
}

// NewDexScreenerFeed builds a feed against the public API.
func NewDexScreenerFeed() *DexScreenerFeed {
	return NewDexScreenerFeedWithURL(defaultBaseURL)
}

// NewDexScreenerFeedWithURL builds a feed against a custom base URL. For tests.
func NewDexScreenerFeedWithURL(baseURL string) *DexScreenerFeed {
	return &DexScreenerFeed{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetCurrentPrice returns the USD price of the first pair in the response.
// Pairs are neither re-ranked nor filtered by chain.
func (s *DexScreenerFeed) GetCurrentPrice(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", s.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "failed to build price request: %v", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "price request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "price api returned status %d", resp.StatusCode)
	}

	var result struct {
		Pairs []struct {
			PriceUsd string `json:"priceUsd"`
			ChainID  string `json:"chainId"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "malformed price response: %v", err)
	}
	if len(result.Pairs) == 0 {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "no pairs found for mint %s", mint)
	}

	price, err := strconv.ParseFloat(result.Pairs[0].PriceUsd, 64)
	if err != nil {
		return 0, domain.Errorf(domain.CodePriceFetchFailed, "failed to parse price %q: %v", result.Pairs[0].PriceUsd, err)
	}
	return price, nil
}
