// Package aivalidator implements the optional high-risk-trade escalation
// hook (spec §4.6 step 8): one yes/no request with a hard deadline, failing
// open to approval on timeout or error so a slow or unreachable validator
// never blocks a trade outright.
package aivalidator

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

type request struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Confidence    float64         `json:"confidence"`
	Confirmations int             `json:"confirmations"`
	Qty           decimal.Decimal `json:"qty"`
	Entry         decimal.Decimal `json:"entry"`
	Stop          decimal.Decimal `json:"stop"`
	Reason        string          `json:"escalation_reason"`
}

type response struct {
	Approve    bool   `json:"approve"`
	Rationale  string `json:"rationale"`
}

// Client posts a single request per high-risk signal to an external
// validator endpoint, exactly once, under a hard timeout.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3500 * time.Millisecond
	}
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

// Validate returns true (approve) whenever the endpoint is unconfigured,
// unreachable, slow past the deadline, or returns a malformed body — the
// fail-open discipline spec §4.6 step 8 and §5 set for every AIValidator call.
func (c *Client) Validate(ctx context.Context, sig domain.Signal, intent domain.Intent, reason string) bool {
	if c == nil || c.endpoint == "" {
		return true
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{
		Symbol: sig.Symbol, Side: string(sig.Side), Confidence: sig.Confidence,
		Confirmations: sig.Confirmations, Qty: intent.Qty, Entry: intent.Entry,
		Stop: intent.Stop, Reason: reason,
	})
	if err != nil {
		log.Printf("⚠️ AIVALIDATOR: request marshal failed, failing open: %v", err)
		return true
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("⚠️ AIVALIDATOR: request build failed, failing open: %v", err)
		return true
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Printf("⚠️ AIVALIDATOR: %s call failed/timed out, failing open to approve: %v", sig.Symbol, err)
		return true
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("⚠️ AIVALIDATOR: %s malformed response, failing open to approve: %v", sig.Symbol, err)
		return true
	}

	if !out.Approve {
		log.Printf("🚨 AIVALIDATOR: %s rejected (%s): %s", sig.Symbol, reason, out.Rationale)
	}
	return out.Approve
}
