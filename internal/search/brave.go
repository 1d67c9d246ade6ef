// internal/search/brave.go
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// ErrProviderStatus is returned when the search API answers with a non-200 status.
var ErrProviderStatus = errors.New("search provider returned an error status")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BraveProvider queries the Brave web search API.
type BraveProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

var _ schemas.SearchProvider = (*BraveProvider)(nil)

type braveResponse struct {
	Web struct {
		Results []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"results"`
	} `json:"web"`
}

// NewBraveProvider creates a provider. RateLimit is requests per second; the
// free Brave tier allows one.
func NewBraveProvider(cfg config.SearchConfig, logger *zap.Logger) (*BraveProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brave search requires search.api_key")
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BraveProvider{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newCompressionTransport(nil),
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("search.brave"),
	}, nil
}

// Search returns at most limit result URLs in ranking order.
func (p *BraveProvider) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limiter: %w", err)
	}

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	if limit > 0 {
		q.Set("count", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.Warn("Search API error.", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: %d", ErrProviderStatus, resp.StatusCode)
	}

	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	urls := make([]string, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		urls = append(urls, r.URL)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	p.logger.Debug("Search complete.", zap.String("query", query), zap.Int("results", len(urls)))
	return urls, nil
}
