package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe enumerates the bar resolutions the cache tracks (spec §3 Bar).
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe15Min Timeframe = "15m"
	Timeframe1Day  Timeframe = "1d"
)

// Bar is one OHLCV candle, strictly ordered by TsOpen within (Symbol, Timeframe).
type Bar struct {
	Symbol    string
	TsOpen    time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timeframe Timeframe
}

// Features is the derived-indicator snapshot for a symbol as of a bar close.
// PrevEMA9/PrevEMA21 must equal the previous bar's EMA9/EMA21 — required for
// crossover detection in Strategy (spec §3 invariant).
type Features struct {
	Symbol         string
	AsOf           time.Time
	Price          decimal.Decimal
	EMA9           decimal.Decimal
	EMA21          decimal.Decimal
	PrevEMA9       decimal.Decimal
	PrevEMA21      decimal.Decimal
	EMA50          decimal.Decimal
	RSI14          float64
	MACD           float64
	MACDSignal     float64
	ATR14          decimal.Decimal
	ADX14          float64
	VWAP           decimal.Decimal
	VolumeRatio    float64
	VolatilityRank float64
	HasPrev        bool // true once EMA9 and EMA21 were both ready before the latest bar (22nd bar on)
}
