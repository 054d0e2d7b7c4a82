package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMASeedsWithSMAThenRecurses(t *testing.T) {
	ema := NewEMA(3)
	assert.False(t, ema.Ready())

	ema.Update(10)
	ema.Update(20)
	assert.False(t, ema.Ready(), "should not seed until `period` updates are seen")

	ema.Update(30)
	assert.True(t, ema.Ready())
	assert.InDelta(t, 20.0, ema.Value(), 0.0001, "seed value is the SMA of the first `period` prices")

	ema.Update(40)
	// k = 2/(3+1) = 0.5 -> value = 40*0.5 + 20*0.5 = 30
	assert.InDelta(t, 30.0, ema.Value(), 0.0001)
}

func TestCalculateEMASeriesMatchesStatefulEMA(t *testing.T) {
	prices := []float64{10, 20, 30, 40, 50}
	batch := calculateEMASeries(prices, 3)

	ema := NewEMA(3)
	for _, p := range prices {
		ema.Update(p)
	}
	assert.InDelta(t, ema.Value(), batch, 0.0001)
}

func TestCalculateEMASeriesShortSeriesReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, calculateEMASeries([]float64{1, 2}, 5))
}

func TestCalculateRSIAllGainsSaturatesAt100(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}
	rsi := calculateRSI(prices, 14)
	assert.Equal(t, 100.0, rsi)
}

func TestCalculateRSIInsufficientHistoryReturnsNeutral(t *testing.T) {
	rsi := calculateRSI([]float64{10, 11}, 14)
	assert.Equal(t, 50.0, rsi)
}

func TestCalculateATRInsufficientBarsReturnsZero(t *testing.T) {
	atr := calculateATR([]float64{1, 2}, []float64{1, 2}, []float64{1, 2})
	assert.Equal(t, 0.0, atr)
}
