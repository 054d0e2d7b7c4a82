// Package regime classifies the standing breadth/trend/volatility
// environment into a Regime the Strategy and RiskManager scale sizing and
// thresholds by (spec §4.4). It generalizes predator_engine.go's
// evaluateCandidate trend-lock — previously a per-trade check — into a
// standing cache recomputed on a cadence instead of per symbol.
package regime

import (
	"context"
	"sync"
	"time"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

const cacheTTL = 5 * time.Minute

// Gateway is the subset of BrokerGateway/MarketDataCache the detector needs:
// index ETF bars and VIX-proxy bars (the last close is the VIX reading).
type Gateway interface {
	GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int, since time.Time) ([]marketdata.Bar, error)
}

// Detector computes and caches the Regime.
type Detector struct {
	gw          Gateway
	indexSymbol string
	vixSymbol   string

	mu      sync.RWMutex
	current domain.Regime
}

func New(gw Gateway, indexSymbol, vixSymbol string) *Detector {
	return &Detector{gw: gw, indexSymbol: indexSymbol, vixSymbol: vixSymbol}
}

// Current returns the cached regime, recomputing it first if stale.
func (d *Detector) Current(ctx context.Context, watchlistAdvancers, watchlistTotal int) (domain.Regime, error) {
	d.mu.RLock()
	stale := time.Since(d.current.AsOf) > cacheTTL
	cur := d.current
	d.mu.RUnlock()

	if !stale {
		return cur, nil
	}
	return d.Refresh(ctx, watchlistAdvancers, watchlistTotal)
}

func (d *Detector) Refresh(ctx context.Context, advancers, total int) (domain.Regime, error) {
	indexBars, err := d.gw.GetBars(ctx, d.indexSymbol, marketdata.Timeframe15Min, 30, time.Now().Add(-8*time.Hour))
	if err != nil {
		return domain.Regime{}, err
	}
	vixBars, err := d.gw.GetBars(ctx, d.vixSymbol, marketdata.Timeframe15Min, 5, time.Now().Add(-2*time.Hour))
	if err != nil {
		return domain.Regime{}, err
	}

	indexTrendUp := trendUp(indexBars)
	vix := 0.0
	if len(vixBars) > 0 {
		vix, _ = vixBars[len(vixBars)-1].Close.Float64()
	}

	breadth := 0.5
	if total > 0 {
		breadth = float64(advancers) / float64(total)
	}

	r := classify(breadth, indexTrendUp, vix)
	r.AsOf = time.Now()

	d.mu.Lock()
	d.current = r
	d.mu.Unlock()

	return r, nil
}

func trendUp(bars []marketdata.Bar) bool {
	if len(bars) < 2 {
		return false
	}
	first, _ := bars[0].Close.Float64()
	last, _ := bars[len(bars)-1].Close.Float64()
	return last > first
}

// classify implements the Label/Trigger/Multiplier/tradingAllowed table of
// spec §4.4, with the secondary VIX-band refinement of "choppy".
func classify(breadth float64, indexTrendUp bool, vix float64) domain.Regime {
	switch {
	case breadth > 0.6 && indexTrendUp && vix < 20:
		return domain.Regime{Label: domain.RegimeBroadBullish, VIX: vix, Multiplier: 1.5, TradingAllowed: true}
	case breadth < 0.4 && !indexTrendUp && vix < 25:
		return domain.Regime{Label: domain.RegimeBroadBearish, VIX: vix, Multiplier: 1.5, TradingAllowed: true}
	case vix < 22 && breadth >= 0.4 && breadth <= 0.6:
		return domain.Regime{Label: domain.RegimeBroadNeutral, VIX: vix, Multiplier: 1.0, TradingAllowed: true}
	case indexTrendUp && breadth <= 0.6:
		return domain.Regime{Label: domain.RegimeNarrowBullish, VIX: vix, Multiplier: 0.7, TradingAllowed: true}
	case !indexTrendUp && breadth >= 0.4:
		return domain.Regime{Label: domain.RegimeNarrowBearish, VIX: vix, Multiplier: 0.7, TradingAllowed: true}
	default:
		mult := choppyMultiplier(vix)
		return domain.Regime{Label: domain.RegimeChoppy, VIX: vix, Multiplier: mult, TradingAllowed: false}
	}
}

// choppyMultiplier refines the flat 0.5 choppy multiplier into a VIX-banded
// value (spec §4.4: "refines choppy → {0.25, 0.5, 0.75} for VIX {>30, 20-30, <20}").
func choppyMultiplier(vix float64) float64 {
	switch {
	case vix > 30:
		return 0.25
	case vix >= 20:
		return 0.5
	default:
		return 0.75
	}
}
