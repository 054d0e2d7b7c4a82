package dailycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

func TestClassifyLabels(t *testing.T) {
	cases := []struct {
		name                       string
		price, ema200, ema9, ema21 float64
		want                       Label
	}{
		{"strong_uptrend", 110, 100, 105, 102, LabelStrongUptrend},
		{"uptrend_but_emas_not_stacked", 110, 100, 100, 105, LabelUptrend},
		{"range_price_equals_ema200", 100, 100, 101, 99, LabelRange},
		{"downtrend_but_emas_not_stacked", 90, 100, 95, 92, LabelDowntrend},
		{"strong_downtrend", 90, 100, 92, 95, LabelStrongDowntrend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.price, tc.ema200, tc.ema9, tc.ema21))
		})
	}
}

func TestEmaOfFallsBackToShorterSeriesInsteadOfZero(t *testing.T) {
	closes := []float64{10, 20, 30}
	got := emaOf(closes, 200)
	assert.Greater(t, got, 0.0, "fewer bars than the period must still produce a usable EMA, never 0")
}

func TestEmaOfEmptySeriesReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, emaOf(nil, 200))
}

type fakeDailyGateway struct {
	bars []marketdata.Bar
	err  error
}

func (f *fakeDailyGateway) GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int, since time.Time) ([]marketdata.Bar, error) {
	return f.bars, f.err
}

func makeDailyBars(n int, start float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(start + float64(i))
		bars[i] = marketdata.Bar{TsOpen: now.AddDate(0, 0, -(n - i)), Close: c, High: c, Low: c, Open: c}
	}
	return bars
}

func TestRefreshPopulatesContext(t *testing.T) {
	gw := &fakeDailyGateway{bars: makeDailyBars(250, 100)}
	c := New(gw)

	require.NoError(t, c.Refresh(context.Background(), "AAPL"))

	ctx, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.False(t, ctx.Degraded)
	assert.Equal(t, LabelStrongUptrend, ctx.Label, "a strictly rising close series should classify as a strong uptrend")
}

func TestRefreshTooFewBarsIsNoop(t *testing.T) {
	gw := &fakeDailyGateway{bars: makeDailyBars(5, 100)}
	c := New(gw)

	require.NoError(t, c.Refresh(context.Background(), "AAPL"))

	_, ok := c.Get("AAPL")
	assert.False(t, ok, "fewer than 21 bars should leave no context rather than compute a garbage one")
}

func TestRefreshFailureMarksExistingContextDegraded(t *testing.T) {
	gw := &fakeDailyGateway{bars: makeDailyBars(250, 100)}
	c := New(gw)
	require.NoError(t, c.Refresh(context.Background(), "AAPL"))

	gw.err = errors.New("data feed unavailable")
	err := c.Refresh(context.Background(), "AAPL")
	require.Error(t, err)

	ctx, ok := c.Get("AAPL")
	require.True(t, ok, "a prior context must survive a failed refresh")
	assert.True(t, ctx.Degraded)
}

func TestRefreshFailureWithNoPriorContextLeavesNothing(t *testing.T) {
	gw := &fakeDailyGateway{err: errors.New("data feed unavailable")}
	c := New(gw)

	err := c.Refresh(context.Background(), "AAPL")
	require.Error(t, err)

	_, ok := c.Get("AAPL")
	assert.False(t, ok)
}
