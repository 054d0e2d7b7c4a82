package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebytelabs/daytrader-engine/internal/dailycache"
	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

func midDayTime() time.Time {
	return time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
}

// strongLongSetup produces Features with a bullish crossover and all four
// confirmations aligned, enough to clear the base long threshold.
func strongLongSetup() marketdata.Features {
	return marketdata.Features{
		HasPrev:     true,
		Price:       decimal.NewFromInt(105),
		PrevEMA9:    decimal.NewFromInt(99),
		PrevEMA21:   decimal.NewFromInt(100),
		EMA9:        decimal.NewFromInt(101),
		EMA21:       decimal.NewFromInt(100),
		RSI14:       55,
		MACD:        1.2,
		MACDSignal:  0.8,
		VWAP:        decimal.NewFromInt(103),
		VolumeRatio: 2.0,
		ADX14:       30,
		ATR14:       decimal.NewFromFloat(2.0),
	}
}

func baseInputs() Inputs {
	return Inputs{
		Symbol:     "AAPL",
		Features:   strongLongSetup(),
		DailyTrend: dailycache.Context{Label: dailycache.LabelStrongUptrend, EMA200: 90},
		DailyValid: true,
		Regime:     domain.Regime{Label: domain.RegimeBroadBullish, TradingAllowed: true, Multiplier: 1.0},
		Sentiment:  domain.Sentiment{Score: 50, Label: domain.SentimentNeutral},
		Now:        midDayTime(),
	}
}

func TestEvaluateApprovesStrongLongCrossover(t *testing.T) {
	s := New(Config{Enable200EMAFilter: true})
	sig, ok := s.Evaluate(baseInputs())

	require.True(t, ok)
	assert.Equal(t, domain.SideLong, sig.Side)
	assert.Equal(t, 4, sig.Confirmations)
	assert.GreaterOrEqual(t, sig.Confidence, 50.0)
}

func TestEvaluateFastSkipsOnPositionFrozenOrCooldown(t *testing.T) {
	s := New(Config{})

	t.Run("has_position", func(t *testing.T) {
		in := baseInputs()
		in.HasPosition = true
		_, ok := s.Evaluate(in)
		assert.False(t, ok)
	})
	t.Run("frozen", func(t *testing.T) {
		in := baseInputs()
		in.Frozen = true
		_, ok := s.Evaluate(in)
		assert.False(t, ok)
	})
	t.Run("cooldown_active", func(t *testing.T) {
		in := baseInputs()
		in.CooldownActive = true
		_, ok := s.Evaluate(in)
		assert.False(t, ok)
	})
}

func TestEvaluateNoCrossoverRejected(t *testing.T) {
	s := New(Config{})
	in := baseInputs()
	in.Features.PrevEMA9 = decimal.NewFromInt(101)
	in.Features.PrevEMA21 = decimal.NewFromInt(100)
	in.Features.EMA9 = decimal.NewFromInt(102) // already above before this bar too -> no cross

	_, ok := s.Evaluate(in)
	assert.False(t, ok)
}

func TestEvaluateInsufficientConfirmationsRejected(t *testing.T) {
	s := New(Config{})
	in := baseInputs()
	in.Features.VolumeRatio = 0.5 // drop the volume confirmation
	in.Features.RSI14 = 40       // drop RSI alignment too -> only 2 left

	_, ok := s.Evaluate(in)
	assert.False(t, ok)
}

func TestEvaluateDailyTrendFailsOpenWhenDegraded(t *testing.T) {
	s := New(Config{Enable200EMAFilter: true})
	in := baseInputs()
	in.DailyValid = false // degraded cache: filter must not block
	in.DailyTrend = dailycache.Context{Label: dailycache.LabelStrongDowntrend, EMA200: 200, Degraded: true}

	_, ok := s.Evaluate(in)
	assert.True(t, ok, "a degraded daily cache must fail open, not block the signal")
}

func TestEvaluateMultiTimeframeFilterRejectsDisagreeingDailyPosture(t *testing.T) {
	s := New(Config{EnableMultiTimeframeFilter: true})
	in := baseInputs() // a long crossover
	in.DailyTrend.EMA9Daily = 90
	in.DailyTrend.EMA21Daily = 100 // daily posture is bearish, intraday wants long

	_, ok := s.Evaluate(in)
	assert.False(t, ok)
}

func TestEvaluateMultiTimeframeFilterApprovesAgreeingDailyPosture(t *testing.T) {
	s := New(Config{EnableMultiTimeframeFilter: true})
	in := baseInputs()
	in.DailyTrend.EMA9Daily = 100
	in.DailyTrend.EMA21Daily = 90 // daily posture agrees with the long crossover

	_, ok := s.Evaluate(in)
	assert.True(t, ok)
}

func TestEvaluateMultiTimeframeFilterFailsOpenWhenDegraded(t *testing.T) {
	s := New(Config{EnableMultiTimeframeFilter: true})
	in := baseInputs()
	in.DailyValid = false
	in.DailyTrend.EMA9Daily = 90
	in.DailyTrend.EMA21Daily = 100 // would reject if the filter applied

	_, ok := s.Evaluate(in)
	assert.True(t, ok, "a degraded daily cache must fail open, not block the signal")
}

func TestEvaluateLongOnlyModeRejectsShortCrossover(t *testing.T) {
	s := New(Config{LongOnlyMode: true})
	in := baseInputs()
	// Flip to a bearish crossover.
	in.Features.PrevEMA9 = decimal.NewFromInt(101)
	in.Features.PrevEMA21 = decimal.NewFromInt(100)
	in.Features.EMA9 = decimal.NewFromInt(99)
	in.Features.EMA21 = decimal.NewFromInt(100)
	in.Features.RSI14 = 40
	in.Features.MACD = -1
	in.Features.MACDSignal = -0.5
	in.Features.VWAP = decimal.NewFromInt(106)

	_, ok := s.Evaluate(in)
	assert.False(t, ok)
}

func TestEvaluateNeverShortsUnderExtremeFear(t *testing.T) {
	s := New(Config{})
	in := baseInputs()
	in.Features.PrevEMA9 = decimal.NewFromInt(101)
	in.Features.PrevEMA21 = decimal.NewFromInt(100)
	in.Features.EMA9 = decimal.NewFromInt(99)
	in.Features.EMA21 = decimal.NewFromInt(100)
	in.Features.RSI14 = 40
	in.Features.MACD = -1
	in.Features.MACDSignal = -0.5
	in.Features.VWAP = decimal.NewFromInt(106)
	in.DailyTrend = dailycache.Context{Label: dailycache.LabelStrongDowntrend, EMA200: 90}
	in.Sentiment = domain.Sentiment{Score: 5, Label: domain.SentimentExtremeFear}

	_, ok := s.Evaluate(in)
	assert.False(t, ok, "extreme fear must veto every short signal regardless of confirmations")
}

func TestEvaluateBelowThresholdRejected(t *testing.T) {
	s := New(Config{})
	in := baseInputs()
	in.Features.ADX14 = 10        // drop the ADX confidence bonus
	in.DailyTrend = dailycache.Context{Label: dailycache.LabelRange, EMA200: 90}
	in.Regime = domain.Regime{Label: domain.RegimeChoppy, TradingAllowed: true, Multiplier: 0.5}

	_, ok := s.Evaluate(in)
	assert.False(t, ok, "confidence without ADX/trend bonuses should fall under the choppy-regime-raised threshold")
}
