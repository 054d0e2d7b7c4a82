package aivalidator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

func testSignal() domain.Signal {
	return domain.Signal{Symbol: "AAPL", Side: domain.SideLong, Confidence: 80, Confirmations: 3}
}

func testIntentForValidator() domain.Intent {
	return domain.Intent{Symbol: "AAPL", Qty: decimal.NewFromInt(10), Entry: decimal.NewFromInt(100), Stop: decimal.NewFromInt(98)}
}

func TestValidateWithNoEndpointFailsOpen(t *testing.T) {
	c := New("", time.Second)
	assert.True(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"))
}

func TestValidateNilClientFailsOpen(t *testing.T) {
	var c *Client
	assert.True(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"))
}

func TestValidateApprovesWhenEndpointApproves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"approve": true, "rationale": "looks fine"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	assert.True(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"))
}

func TestValidateRejectsWhenEndpointRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"approve": false, "rationale": "too much exposure"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	assert.False(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"))
}

func TestValidateFailsOpenOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"approve": false}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Millisecond)
	assert.True(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"), "a slow validator must never block a trade")
}

func TestValidateFailsOpenOnMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	assert.True(t, c.Validate(context.Background(), testSignal(), testIntentForValidator(), "high_risk"))
}

func TestNewDefaultsTimeoutWhenNonPositive(t *testing.T) {
	c := New("http://example.com", 0)
	assert.Equal(t, 3500*time.Millisecond, c.timeout)
}
