package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// HTTPPriceSource queries the price aggregation service. The service answers
// with a USD price and a cross-source confidence score.
type HTTPPriceSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPriceSource creates a price source client
func NewHTTPPriceSource(baseURL string) *HTTPPriceSource {
	return &HTTPPriceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// GetPrice resolves one token's USD price
func (p *HTTPPriceSource) GetPrice(ctx context.Context, token string, chain types.Chain) (*types.PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/price?token=%s&chain=%s",
		p.baseURL, url.QueryEscape(token), url.QueryEscape(string(chain)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price service returned %d for %s", resp.StatusCode, token)
	}

	var quote types.PriceQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("malformed price response: %w", err)
	}
	quote.Token = token
	quote.Chain = chain
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now()
	}
	return &quote, nil
}
