// Package sentiment fetches the single scalar+label market-sentiment feed
// consumed by Strategy's short-safety rule and RiskManager's confidence
// adjustment (spec §6). Shaped as a thin polling client, the same role
// push_service.go's alert queue plays for outbound Firebase pushes.
package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

const staleAfter = 24 * time.Hour

type feedResponse struct {
	Score float64 `json:"score"`
}

// Client polls a single sentiment endpoint and caches the last reading,
// falling back to neutral when the feed goes stale (spec §6).
type Client struct {
	url        string
	httpClient *http.Client

	mu   sync.RWMutex
	last domain.Sentiment
}

func New(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		last:       domain.Sentiment{Score: 50, Label: domain.SentimentNeutral},
	}
}

// Refresh fetches the current reading. On failure the previous reading is
// kept (and will itself fall back to neutral via Current once stale).
func (c *Client) Refresh(ctx context.Context) error {
	if c.url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	c.mu.Lock()
	c.last = domain.Sentiment{
		Score: body.Score,
		Label: domain.ClassifySentiment(body.Score),
		AsOf:  time.Now(),
	}
	c.mu.Unlock()
	return nil
}

// Current returns the last reading, or neutral if it is stale or was never
// fetched (spec §6 "stale data (>24h) falls back to neutral").
func (c *Client) Current() domain.Sentiment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.last.AsOf.IsZero() || time.Since(c.last.AsOf) > staleAfter {
		return domain.Sentiment{Score: 50, Label: domain.SentimentNeutral, AsOf: time.Now()}
	}
	return c.last
}
