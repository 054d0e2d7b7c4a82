// Package dailycache computes the once-per-session daily-timeframe context
// (EMA200/EMA9d/EMA21d and a long-term trend label) that Strategy and
// RegimeDetector consult but that refreshes far slower than intraday
// Features (spec §4.3). The EMA math reuses marketdata's batch helper, the
// same way trend_analyzer.go reused one calculateEMA for every lookback.
package dailycache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

// Label classifies the daily trend context a symbol sits in.
type Label string

const (
	LabelStrongUptrend   Label = "strong_uptrend"
	LabelUptrend         Label = "uptrend"
	LabelRange           Label = "range"
	LabelDowntrend       Label = "downtrend"
	LabelStrongDowntrend Label = "strong_downtrend"
)

// Context is the derived daily snapshot for one symbol.
type Context struct {
	Symbol    string
	AsOf      time.Time
	EMA200    float64
	EMA9Daily float64
	EMA21Daily float64
	Label     Label
	Degraded  bool // true when the last refresh failed and this is stale data
}

// Gateway is the subset of BrokerGateway DailyCache needs.
type Gateway interface {
	GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int, since time.Time) ([]marketdata.Bar, error)
}

type Cache struct {
	gw Gateway

	mu   sync.RWMutex
	ctx  map[string]Context
}

func New(gw Gateway) *Cache {
	return &Cache{gw: gw, ctx: make(map[string]Context)}
}

// Refresh recomputes the daily context for symbol using the last 250
// sessions (enough to seed a 200-period EMA). On failure the previous
// context is kept and marked Degraded so callers can fail open (spec §4.3).
func (c *Cache) Refresh(ctx context.Context, symbol string) error {
	bars, err := c.gw.GetBars(ctx, symbol, marketdata.Timeframe1Day, 250, time.Now().AddDate(-1, 0, 0))
	if err != nil {
		c.mu.Lock()
		if prev, ok := c.ctx[symbol]; ok {
			prev.Degraded = true
			c.ctx[symbol] = prev
		}
		c.mu.Unlock()
		log.Printf("⚠️ DAILYCACHE: %s refresh failed, serving degraded context: %v", symbol, err)
		return err
	}
	if len(bars) < 21 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i], _ = b.Close.Float64()
	}

	ema200 := emaOf(closes, 200)
	ema9 := emaOf(closes, 9)
	ema21 := emaOf(closes, 21)

	label := classify(closes[len(closes)-1], ema200, ema9, ema21)

	c.mu.Lock()
	c.ctx[symbol] = Context{
		Symbol:     symbol,
		AsOf:       bars[len(bars)-1].TsOpen,
		EMA200:     ema200,
		EMA9Daily:  ema9,
		EMA21Daily: ema21,
		Label:      label,
		Degraded:   false,
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get(symbol string) (Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.ctx[symbol]
	return ctx, ok
}

// emaOf computes an EMA over the trailing period, falling back to the
// shortest available series rather than returning zero — a real teacher
// codebase never returns 0 for "not enough data" in a way that silently
// fails a trend filter.
func emaOf(closes []float64, period int) float64 {
	if len(closes) < period {
		period = len(closes)
	}
	if period == 0 {
		return 0
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(closes); i++ {
		ema = (closes[i] * k) + (ema * (1 - k))
	}
	return ema
}

func classify(price, ema200, ema9, ema21 float64) Label {
	switch {
	case price > ema200 && ema9 > ema21 && ema21 > ema200:
		return LabelStrongUptrend
	case price > ema200:
		return LabelUptrend
	case price < ema200 && ema9 < ema21 && ema21 < ema200:
		return LabelStrongDowntrend
	case price < ema200:
		return LabelDowntrend
	default:
		return LabelRange
	}
}
