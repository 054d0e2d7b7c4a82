// Package marketdata maintains the rolling intraday bar window and derived
// Features per watchlisted symbol (spec §4.2). The single-flight-per-symbol
// refresh and snapshot-on-read shape is new relative to the teacher (which
// fetched klines fresh on every call from trend_analyzer.go); it is grounded
// in stadam23-Eve-flipper's direct golang.org/x/sync dependency, the one
// pack repo that reaches for singleflight's package.
package marketdata

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

const windowSize = 220 // >= 200 bars of the primary intraday timeframe, per spec §4.2

// Gateway is the subset of BrokerGateway the cache needs; kept minimal and
// local to avoid a dependency cycle with internal/broker.
type Gateway interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, limit int, since time.Time) ([]Bar, error)
	GetLatestTrade(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
}

type symbolState struct {
	mu       sync.RWMutex
	bars     []Bar
	features Features
	ema9     *EMA
	ema21    *EMA
	ema50    *EMA
	adx      *ADX
	macd     *MACD
	vwap     *VWAPAccumulator
}

// Cache is the MarketDataCache component.
type Cache struct {
	gw   Gateway
	bus  *eventbus.Bus
	tf   Timeframe

	mu     sync.RWMutex
	states map[string]*symbolState

	sf singleflight.Group
}

func New(gw Gateway, bus *eventbus.Bus, tf Timeframe) *Cache {
	return &Cache{
		gw:     gw,
		bus:    bus,
		tf:     tf,
		states: make(map[string]*symbolState),
	}
}

func (c *Cache) stateFor(symbol string) *symbolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[symbol]
	if !ok {
		st = &symbolState{
			ema9:  NewEMA(9),
			ema21: NewEMA(21),
			ema50: NewEMA(50),
			adx:   NewADX(14),
			macd:  NewMACD(),
			vwap:  &VWAPAccumulator{},
		}
		c.states[symbol] = st
	}
	return st
}

// Refresh fetches new bars for symbol and recomputes Features, single-flight
// per symbol so a burst of callers during a slow backfill collapses into one
// broker round-trip (spec §4.2 "refresh is single-flight per symbol").
func (c *Cache) Refresh(ctx context.Context, symbol string) error {
	_, err, _ := c.sf.Do(symbol, func() (interface{}, error) {
		return nil, c.refreshOnce(ctx, symbol)
	})
	return err
}

func (c *Cache) refreshOnce(ctx context.Context, symbol string) error {
	st := c.stateFor(symbol)

	st.mu.RLock()
	since := time.Time{}
	if len(st.bars) > 0 {
		since = st.bars[len(st.bars)-1].TsOpen
	}
	st.mu.RUnlock()

	newBars, err := c.gw.GetBars(ctx, symbol, c.tf, windowSize, since)
	if err != nil {
		return err
	}
	if len(newBars) == 0 {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for _, bar := range newBars {
		// prevEma* must equal the previous bar's ema* (spec §3 invariant):
		// capture it before feeding the new bar into the stateful indicators.
		prevEMA9 := decimal.NewFromFloat(st.ema9.Value())
		prevEMA21 := decimal.NewFromFloat(st.ema21.Value())
		hadPrev := st.ema9.Ready() && st.ema21.Ready()

		closeF, _ := bar.Close.Float64()
		highF, _ := bar.High.Float64()
		lowF, _ := bar.Low.Float64()
		volF, _ := bar.Volume.Float64()

		st.ema9.Update(closeF)
		st.ema21.Update(closeF)
		st.ema50.Update(closeF)
		st.adx.Update(highF, lowF, closeF)
		st.macd.Update(closeF)

		if n := len(st.bars); n > 0 {
			y1, m1, d1 := st.bars[n-1].TsOpen.Date()
			y2, m2, d2 := bar.TsOpen.Date()
			if y1 != y2 || m1 != m2 || d1 != d2 {
				st.vwap.Reset()
			}
		}
		typical := bar.High.Add(bar.Low).Add(bar.Close).Div(decimal.NewFromInt(3))
		st.vwap.Add(typical, bar.Volume)

		st.bars = append(st.bars, bar)
		if len(st.bars) > windowSize {
			st.bars = st.bars[len(st.bars)-windowSize:]
		}

		closes, highs, lows, volumes := seriesOf(st.bars)
		_ = volF

		st.features = Features{
			Symbol:         symbol,
			AsOf:           bar.TsOpen,
			Price:          bar.Close,
			EMA9:           decimal.NewFromFloat(st.ema9.Value()),
			EMA21:          decimal.NewFromFloat(st.ema21.Value()),
			PrevEMA9:       prevEMA9,
			PrevEMA21:      prevEMA21,
			EMA50:          decimal.NewFromFloat(st.ema50.Value()),
			RSI14:          calculateRSI(closes, 14),
			MACD:           st.macd.Line(),
			MACDSignal:     st.macd.SignalLine(),
			ATR14:          decimal.NewFromFloat(calculateATR(highs, lows, closes)),
			ADX14:          st.adx.Value(),
			VWAP:           st.vwap.Value(),
			VolumeRatio:    volumeRatio(volumes),
			VolatilityRank: volatilityRank(atrSeries(highs, lows, closes)),
			HasPrev:        hadPrev,
		}
	}

	c.bus.Publish(eventbus.Event{
		Kind:      eventbus.KindFeaturesUpdated,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Payload:   st.features,
	})

	return nil
}

// Snapshot returns an immutable copy of the latest Features for symbol, so
// readers never observe a torn update mid-refresh (spec §4.2 concurrency).
func (c *Cache) Snapshot(symbol string) (Features, bool) {
	c.mu.RLock()
	st, ok := c.states[symbol]
	c.mu.RUnlock()
	if !ok {
		return Features{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.features.Symbol == "" {
		return Features{}, false
	}
	return st.features, true
}

// TradablePrice fetches the realtime last-trade price via the gateway
// (spec §4.2 "Price contract") and warns when it diverges from the
// features-derived price by more than the documented thresholds.
func (c *Cache) TradablePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, _, err := c.gw.GetLatestTrade(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if feat, ok := c.Snapshot(symbol); ok && !feat.Price.IsZero() {
		diff := price.Sub(feat.Price).Abs().Div(feat.Price)
		switch {
		case diff.GreaterThan(decimal.NewFromFloat(0.01)):
			log.Printf("🚨 MARKETDATA: %s realtime/features divergence %.3f%% (hard warning, resizing must use realtime)", symbol, diff.InexactFloat64()*100)
		case diff.GreaterThan(decimal.NewFromFloat(0.005)):
			log.Printf("⚠️ MARKETDATA: %s realtime/features divergence %.3f%%", symbol, diff.InexactFloat64()*100)
		}
	}

	return price, nil
}

func seriesOf(bars []Bar) (closes, highs, lows, volumes []float64) {
	closes = make([]float64, len(bars))
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	volumes = make([]float64, len(bars))
	for i, b := range bars {
		closes[i], _ = b.Close.Float64()
		highs[i], _ = b.High.Float64()
		lows[i], _ = b.Low.Float64()
		volumes[i], _ = b.Volume.Float64()
	}
	return
}

// atrSeries recomputes a trailing ATR value per bar for volatilityRank; the
// window is small (windowSize) so recomputation here is cheap relative to
// the stateful indicators above.
func atrSeries(highs, lows, closes []float64) []float64 {
	if len(highs) < 16 {
		return nil
	}
	out := make([]float64, 0, len(highs)-15)
	for end := 15; end < len(highs); end++ {
		out = append(out, calculateATR(highs[:end+1], lows[:end+1], closes[:end+1]))
	}
	return out
}
