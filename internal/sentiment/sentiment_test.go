package sentiment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

func TestCurrentWithoutRefreshReturnsNeutral(t *testing.T) {
	c := New("")
	got := c.Current()
	assert.Equal(t, domain.SentimentNeutral, got.Label)
	assert.Equal(t, 50.0, got.Score)
}

func TestRefreshWithEmptyURLIsNoop(t *testing.T) {
	c := New("")
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, domain.SentimentNeutral, c.Current().Label)
}

func TestRefreshFetchesAndClassifiesScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"score": 15}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Refresh(context.Background()))

	got := c.Current()
	assert.Equal(t, 15.0, got.Score)
	assert.Equal(t, domain.SentimentExtremeFear, got.Label)
}

func TestCurrentFallsBackToNeutralWhenStale(t *testing.T) {
	c := New("http://unused")
	c.last = domain.Sentiment{Score: 90, Label: domain.SentimentExtremeGreed, AsOf: time.Now().Add(-25 * time.Hour)}

	got := c.Current()
	assert.Equal(t, domain.SentimentNeutral, got.Label, "a reading older than 24h must fall back to neutral")
	assert.Equal(t, 50.0, got.Score)
}

func TestRefreshHTTPErrorLeavesPreviousReadingIntact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.last = domain.Sentiment{Score: 70, Label: domain.SentimentGreed, AsOf: time.Now()}

	err := c.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, domain.SentimentGreed, c.Current().Label, "a failed refresh must not clobber the previous good reading")
}
