// Package strategy turns (Features, DailyTrend, Regime, Sentiment,
// PositionMap, CooldownMap) into an optional Signal. It never touches the
// broker — it only decides (spec §4.5). The weighted-confirmation, "require
// N of M, threshold X" shape is lifted directly from signal_filter.go's
// Validate (cluster score vs RequiredClusterCnt), and the bonus ladder from
// app_signal_distributor.go's star-rating trend bonuses.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/dailycache"
	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

// Named constants for confirmation weights/thresholds, implemented at the
// midpoints of the ranges the design notes specify (spec §9).
const (
	baseThresholdLong  = 50.0
	baseThresholdShort = 55.0
	maxThreshold       = 75.0
	requiredConfirmations = 3

	regimeAdjustMax   = 15.0
	timeOfDayAdjust   = 3.0
	sentimentAdjustMax = 8.0

	minVolumeRatio = 1.5
)

type Config struct {
	LongOnlyMode               bool
	EnableTimeOfDayFilter      bool
	LunchStart, LunchEnd       string
	Enable200EMAFilter         bool
	EnableMultiTimeframeFilter bool
}

// Strategy is a stateless evaluator; all state it needs is passed in per call.
type Strategy struct {
	cfg Config
}

func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// Inputs bundles the pure-function arguments of spec §4.5.
type Inputs struct {
	Symbol      string
	Features    marketdata.Features
	DailyTrend  dailycache.Context
	DailyValid  bool // false => DailyCache degraded, filters depending on it fail-open
	Regime      domain.Regime
	Sentiment   domain.Sentiment
	HasPosition bool
	Frozen      bool
	CooldownActive bool
	Now         time.Time
}

// Evaluate runs the fast-filter-first pipeline and returns a Signal, or
// ok=false if nothing qualifies.
func (s *Strategy) Evaluate(in Inputs) (domain.Signal, bool) {
	// 1. position/freeze fast-skip.
	if in.HasPosition || in.Frozen || in.CooldownActive {
		return domain.Signal{}, false
	}

	// 2. time-of-day filter.
	if s.cfg.EnableTimeOfDayFilter && inLunchWindow(in.Now, s.cfg.LunchStart, s.cfg.LunchEnd) {
		return domain.Signal{}, false
	}

	// 4. crossover detection (primary timeframe).
	feat := in.Features
	if !feat.HasPrev {
		return domain.Signal{}, false
	}

	var side domain.Side
	switch {
	case feat.PrevEMA9.LessThanOrEqual(feat.PrevEMA21) && feat.EMA9.GreaterThan(feat.EMA21):
		side = domain.SideLong
	case feat.PrevEMA9.GreaterThanOrEqual(feat.PrevEMA21) && feat.EMA9.LessThan(feat.EMA21):
		side = domain.SideShort
	default:
		return domain.Signal{}, false
	}

	if side == domain.SideShort && s.cfg.LongOnlyMode {
		return domain.Signal{}, false
	}

	// 3. daily-trend filter (200 EMA), fail-open when degraded.
	if s.cfg.Enable200EMAFilter && in.DailyValid {
		if !dailyTrendAllows(side, in.DailyTrend) {
			return domain.Signal{}, false
		}
	}

	// 3b. multi-timeframe filter: the intraday crossover must agree with
	// the daily EMA9/21 posture, fail-open when DailyCache is degraded.
	if s.cfg.EnableMultiTimeframeFilter && in.DailyValid {
		if !multiTimeframeAligned(side, in.DailyTrend) {
			return domain.Signal{}, false
		}
	}

	// 5. confirmations.
	confirmations, rationale := countConfirmations(side, feat)
	if confirmations < requiredConfirmations {
		return domain.Signal{}, false
	}

	// 6. confidence.
	confidence := confidenceScore(side, feat, confirmations, in.DailyTrend, in.DailyValid, in.Sentiment)

	// Short-specific safety (spec §4.5): never short under extremeFear;
	// under fear, require the full confirmation count and a high bar.
	if side == domain.SideShort {
		switch in.Sentiment.Label {
		case domain.SentimentExtremeFear:
			return domain.Signal{}, false
		case domain.SentimentFear:
			if confirmations < 4 || confidence < 75 {
				return domain.Signal{}, false
			}
		}
	}

	// 7. adaptive threshold.
	threshold := adaptiveThreshold(side, in.Regime, in.Now, in.Sentiment)
	if confidence < threshold {
		return domain.Signal{}, false
	}

	return domain.Signal{
		Symbol:        in.Symbol,
		Side:          side,
		Confidence:    confidence,
		Confirmations: confirmations,
		Rationale:     rationale,
		FeaturesAsOf:  feat.AsOf,
		Price:         feat.Price,
		StopHint:      stopHint(side, feat),
	}, true
}

func inLunchWindow(now time.Time, start, end string) bool {
	if start == "" || end == "" {
		return false
	}
	hm := now.Format("15:04")
	return hm >= start && hm < end
}

// multiTimeframeAligned requires the daily EMA9/21 posture to agree with the
// intraday crossover's direction, rejecting intraday signals that fight the
// higher timeframe.
func multiTimeframeAligned(side domain.Side, trend dailycache.Context) bool {
	if side == domain.SideLong {
		return trend.EMA9Daily > trend.EMA21Daily
	}
	return trend.EMA9Daily < trend.EMA21Daily
}

func dailyTrendAllows(side domain.Side, trend dailycache.Context) bool {
	bearish := trend.Label == dailycache.LabelDowntrend || trend.Label == dailycache.LabelStrongDowntrend
	bullish := trend.Label == dailycache.LabelUptrend || trend.Label == dailycache.LabelStrongUptrend
	if side == domain.SideLong {
		return !(trend.EMA200 > 0 && bearish)
	}
	return !(trend.EMA200 > 0 && bullish)
}

// countConfirmations mirrors signal_filter.go's weighted-point tally, but
// each of the four indicator confirmations here is worth exactly one count
// rather than a variable weight, per spec §4.5 ("each worth one count").
func countConfirmations(side domain.Side, feat marketdata.Features) (int, []string) {
	count := 0
	var rationale []string

	rsiAligned := (side == domain.SideLong && feat.RSI14 > 50 && feat.RSI14 < 70) ||
		(side == domain.SideShort && feat.RSI14 < 50 && feat.RSI14 > 30)
	if rsiAligned {
		count++
		rationale = append(rationale, "rsi aligned")
	}

	macdAligned := (side == domain.SideLong && feat.MACD > feat.MACDSignal) ||
		(side == domain.SideShort && feat.MACD < feat.MACDSignal)
	if macdAligned {
		count++
		rationale = append(rationale, "macd aligned")
	}

	vwapAligned := (side == domain.SideLong && feat.Price.GreaterThan(feat.VWAP)) ||
		(side == domain.SideShort && feat.Price.LessThan(feat.VWAP))
	if vwapAligned {
		count++
		rationale = append(rationale, "vwap aligned")
	}

	if feat.VolumeRatio >= minVolumeRatio {
		count++
		rationale = append(rationale, "volume confirmed")
	}

	return count, rationale
}

// confidenceScore follows app_signal_distributor.go's star-rating bonus
// ladder: a base weighted sum plus trend-alignment bonuses and
// counter-sentiment penalties, clamped to [0,100].
func confidenceScore(side domain.Side, feat marketdata.Features, confirmations int, trend dailycache.Context, trendValid bool, sent domain.Sentiment) float64 {
	score := float64(confirmations) * 15.0 // up to 60 from confirmations alone

	if feat.ADX14 >= 25 {
		score += 10
	}

	if trendValid {
		aligned := (side == domain.SideLong && trend.Label == dailycache.LabelStrongUptrend) ||
			(side == domain.SideShort && trend.Label == dailycache.LabelStrongDowntrend)
		if aligned {
			score += 15
		}
	}

	counterSentiment := (side == domain.SideLong && sent.Label == domain.SentimentExtremeFear) ||
		(side == domain.SideShort && sent.Label == domain.SentimentExtremeGreed)
	if counterSentiment {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func adaptiveThreshold(side domain.Side, regime domain.Regime, now time.Time, sent domain.Sentiment) float64 {
	base := baseThresholdLong
	if side == domain.SideShort {
		base = baseThresholdShort
	}

	regimeAdjust := 0.0
	switch regime.Label {
	case domain.RegimeBroadBullish, domain.RegimeBroadBearish:
		regimeAdjust = 0
	case domain.RegimeNarrowBullish, domain.RegimeNarrowBearish:
		regimeAdjust = regimeAdjustMax / 2
	case domain.RegimeChoppy:
		regimeAdjust = regimeAdjustMax
	}

	todAdjust := 0.0
	hour := now.Hour()
	if hour < 10 || hour >= 15 {
		todAdjust = timeOfDayAdjust
	}

	sentAdjust := 0.0
	if sent.Label == domain.SentimentExtremeFear || sent.Label == domain.SentimentExtremeGreed {
		sentAdjust = sentimentAdjustMax
	} else if sent.Label == domain.SentimentFear || sent.Label == domain.SentimentGreed {
		sentAdjust = sentimentAdjustMax / 2
	}

	threshold := base + regimeAdjust + todAdjust + sentAdjust
	if threshold > maxThreshold {
		threshold = maxThreshold
	}
	return threshold
}

// stopHint gives RiskManager an ATR-based starting stop; RiskManager/
// OrderExecutor may recompute this against the realtime fill price.
func stopHint(side domain.Side, feat marketdata.Features) decimal.Decimal {
	atrStop := feat.ATR14.Mul(decimal.NewFromFloat(1.5))
	if side == domain.SideLong {
		return feat.Price.Sub(atrStop)
	}
	return feat.Price.Add(atrStop)
}
