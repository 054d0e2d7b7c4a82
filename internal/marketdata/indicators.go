package marketdata

import (
	"math"

	"github.com/shopspring/decimal"
)

// EMA is a stateful exponential moving average, shaped after
// other_examples' indicators.EMA (Update/Ready/Value) rather than the
// teacher's one-shot calculateEMA(prices, period) recomputation — a rolling
// cache recomputing 200+ bars of EMA on every tick would be wasteful, so the
// stateful form replaces the teacher's batch helper here.
type EMA struct {
	period  int
	k       float64
	value   float64
	seeded  int
	seedSum float64
	ready   bool
}

func NewEMA(period int) *EMA {
	return &EMA{period: period, k: 2.0 / float64(period+1)}
}

func (e *EMA) Update(price float64) {
	if !e.ready {
		e.seedSum += price
		e.seeded++
		if e.seeded >= e.period {
			e.value = e.seedSum / float64(e.period)
			e.ready = true
		}
		return
	}
	e.value = (price * e.k) + (e.value * (1 - e.k))
}

func (e *EMA) Ready() bool    { return e.ready }
func (e *EMA) Value() float64 { return e.value }

// calculateEMASeries computes the EMA value of a full price series in one
// shot. The cache does not call it (it feeds the stateful EMA bar by bar);
// the tests use it as a batch reference for the stateful form. Ported from trend_analyzer.go's calculateEMA (SMA-seeded recurrence).
func calculateEMASeries(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(prices); i++ {
		ema = (prices[i] * k) + (ema * (1 - k))
	}
	return ema
}

// calculateRSI is Wilder-style RSI over the last `period` changes, ported
// from trend_analyzer.go's calculateRSI.
func calculateRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}
	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// calculateATR is the 14-period true-range average, ported verbatim in
// shape from trend_analyzer.go's CalculateATR.
func calculateATR(highs, lows, closes []float64) float64 {
	if len(highs) < 15 {
		return 0
	}
	trSum := 0.0
	n := len(highs)
	for i := n - 14; i < n; i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		trSum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return trSum / 14.0
}

// ADX is a stateful Wilder ADX(14), following the Update/Ready/Value shape
// of other_examples/d92d6479_rustyeddy-trader's indicators.ADX so the cache
// drives it the same way as EMA; Strategy reads its value as a confidence
// bonus (ADX14 >= 25).
type ADX struct {
	period                int
	prevHigh, prevLow, prevClose float64
	smoothedTR, smoothedPlusDM, smoothedMinusDM float64
	adxSum                float64
	count                 int
	ready                 bool
	value                 float64
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Update(high, low, close float64) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = high, low, close
		return
	}

	upMove := high - a.prevHigh
	downMove := a.prevLow - low

	var plusDM, minusDM float64
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))

	n := float64(a.period)
	if a.count <= a.period+1 {
		a.smoothedTR += tr
		a.smoothedPlusDM += plusDM
		a.smoothedMinusDM += minusDM
	} else {
		a.smoothedTR = a.smoothedTR - (a.smoothedTR / n) + tr
		a.smoothedPlusDM = a.smoothedPlusDM - (a.smoothedPlusDM / n) + plusDM
		a.smoothedMinusDM = a.smoothedMinusDM - (a.smoothedMinusDM / n) + minusDM
	}

	if a.smoothedTR > 0 && a.count > a.period {
		plusDI := 100 * (a.smoothedPlusDM / a.smoothedTR)
		minusDI := 100 * (a.smoothedMinusDM / a.smoothedTR)
		dx := 0.0
		if plusDI+minusDI > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		}
		if a.count <= 2*a.period {
			a.adxSum += dx
			if a.count == 2*a.period {
				a.value = a.adxSum / n
				a.ready = true
			}
		} else {
			a.value = (a.value*(n-1) + dx) / n
		}
	}

	a.prevHigh, a.prevLow, a.prevClose = high, low, close
}

func (a *ADX) Ready() bool    { return a.ready }
func (a *ADX) Value() float64 { return a.value }

// VWAPAccumulator tracks the session's cumulative price*volume / volume,
// grounded in other_examples/f0c7e8ca_...vwap_intraday.go's
// cumulativePV/cumulativeVol fields, reset by the cache when a bar opens on
// a new calendar day.
type VWAPAccumulator struct {
	cumulativePV  decimal.Decimal
	cumulativeVol decimal.Decimal
}

func (v *VWAPAccumulator) Reset() {
	v.cumulativePV = decimal.Zero
	v.cumulativeVol = decimal.Zero
}

func (v *VWAPAccumulator) Add(typicalPrice, volume decimal.Decimal) {
	v.cumulativePV = v.cumulativePV.Add(typicalPrice.Mul(volume))
	v.cumulativeVol = v.cumulativeVol.Add(volume)
}

func (v *VWAPAccumulator) Value() decimal.Decimal {
	if v.cumulativeVol.IsZero() {
		return decimal.Zero
	}
	return v.cumulativePV.Div(v.cumulativeVol)
}

// MACD computes the MACD line (EMA12 − EMA26 of price) and its signal line
// (EMA9 of the MACD line); unlike EMA/ADX there's no precedent for it in the pack, so this
// derives directly from the standard 12/26/9 definition in terms of the EMA
// type already defined above.
type MACD struct {
	fast, slow, signal *EMA
	line                float64
}

func NewMACD() *MACD {
	return &MACD{fast: NewEMA(12), slow: NewEMA(26), signal: NewEMA(9)}
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if m.fast.Ready() && m.slow.Ready() {
		m.line = m.fast.Value() - m.slow.Value()
		m.signal.Update(m.line)
	}
}

func (m *MACD) Ready() bool          { return m.signal.Ready() }
func (m *MACD) Line() float64        { return m.line }
func (m *MACD) SignalLine() float64  { return m.signal.Value() }

// volumeRatio compares the latest bar's volume against the trailing average,
// the same notion signal_filter.go used informally ("MinVolumeRatio": 1.5)
// but computed here from the actual rolling window instead of a single trade.
func volumeRatio(volumes []float64) float64 {
	if len(volumes) < 2 {
		return 1.0
	}
	latest := volumes[len(volumes)-1]
	sum := 0.0
	for _, v := range volumes[:len(volumes)-1] {
		sum += v
	}
	avg := sum / float64(len(volumes)-1)
	if avg == 0 {
		return 1.0
	}
	return latest / avg
}

// volatilityRank scores current ATR against its own trailing range into
// [0,100], a generalization of trend_analyzer.go's IsHighVolatility boolean
// threshold into a continuous rank the Strategy can weigh.
func volatilityRank(atrSeries []float64) float64 {
	if len(atrSeries) == 0 {
		return 0
	}
	minATR, maxATR := atrSeries[0], atrSeries[0]
	for _, v := range atrSeries {
		if v < minATR {
			minATR = v
		}
		if v > maxATR {
			maxATR = v
		}
	}
	if maxATR == minATR {
		return 50
	}
	latest := atrSeries[len(atrSeries)-1]
	return ((latest - minATR) / (maxATR - minATR)) * 100
}
