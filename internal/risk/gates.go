// Package risk implements RiskManager's ordered gate chain (spec §4.6), the
// final approval step before a Signal becomes a sized Intent. The Gate
// interface and chained-short-circuit shape is adopted directly from
// other_examples/8014f6f2_RajChodisetti-Trading-app's RiskGate
// (Name/Evaluate/Priority), generalized here from NAV/circuit-breaker state
// to this engine's own RiskData.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

// RiskData is the read-only snapshot of engine state gates evaluate against.
type RiskData struct {
	Now                time.Time
	TradingAllowed     bool
	CircuitBreakerTripped bool
	MarketOpen         bool
	ExtendedHoursAllowed bool
	OpenPositionCount  int
	MaxPositions       int
	TradesToday        int
	MaxDailyTrades      int
	PerSymbolToday      int
	MaxSymbolTrades     int
	Cooldown            domain.CooldownRecord
	Equity              decimal.Decimal
	BuyingPower         decimal.Decimal
	DaytradingBuyingPower decimal.Decimal
	IsPDT               bool
	Cash                decimal.Decimal
}

// Decision is RiskManager's output: either an approved, sized Intent, or an
// enumerated rejection reason with no retry (spec §4.6, §7 PolicyRejection).
type Decision struct {
	Approved bool
	Reason   string
	Intent   domain.Intent
}

// Gate mirrors RajChodisetti's RiskGate: Evaluate returns (ok, reason, err);
// a false ok short-circuits the chain with reason as the rejection code.
type Gate interface {
	Name() string
	Priority() int
	Evaluate(sig domain.Signal, data RiskData) (bool, string, error)
}

type gateFunc struct {
	name     string
	priority int
	fn       func(domain.Signal, RiskData) (bool, string, error)
}

func (g gateFunc) Name() string     { return g.name }
func (g gateFunc) Priority() int    { return g.priority }
func (g gateFunc) Evaluate(sig domain.Signal, data RiskData) (bool, string, error) {
	return g.fn(sig, data)
}

// DefaultGates is the ordered steps 1-5 of spec §4.6 (steps 6-7, sizing and
// the position/buying-power caps, run in Manager.size; step 8, the
// AIValidator hard-risk escalation, is applied after sizing since it needs a
// sized Intent to classify "high-risk").
func DefaultGates() []Gate {
	return []Gate{
		gateFunc{"regime_and_circuit_breaker", 1, func(sig domain.Signal, d RiskData) (bool, string, error) {
			if d.CircuitBreakerTripped {
				return false, "circuit_breaker_tripped", nil
			}
			if !d.TradingAllowed {
				return false, "regime_trading_disallowed", nil
			}
			return true, "", nil
		}},
		gateFunc{"market_open", 2, func(sig domain.Signal, d RiskData) (bool, string, error) {
			if !d.MarketOpen && !d.ExtendedHoursAllowed {
				return false, "market_closed", nil
			}
			return true, "", nil
		}},
		gateFunc{"position_count", 3, func(sig domain.Signal, d RiskData) (bool, string, error) {
			if d.OpenPositionCount >= d.MaxPositions {
				return false, "max_positions_reached", nil
			}
			return true, "", nil
		}},
		gateFunc{"trade_frequency", 4, func(sig domain.Signal, d RiskData) (bool, string, error) {
			if d.TradesToday >= d.MaxDailyTrades {
				return false, "max_daily_trades_reached", nil
			}
			if d.PerSymbolToday >= d.MaxSymbolTrades {
				return false, "max_symbol_trades_reached", nil
			}
			return true, "", nil
		}},
		gateFunc{"cooldown", 5, func(sig domain.Signal, d RiskData) (bool, string, error) {
			if d.Cooldown.Active(d.Now) {
				return false, "symbol_in_cooldown", nil
			}
			return true, "", nil
		}},
	}
}

// Evaluate runs gates in Priority order, short-circuiting on the first
// rejection, mirroring RajChodisetti's RiskManager.Evaluate loop.
func Evaluate(gates []Gate, sig domain.Signal, data RiskData) (bool, string, error) {
	ordered := make([]Gate, len(gates))
	copy(ordered, gates)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Priority() < ordered[i].Priority() {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	for _, g := range ordered {
		ok, reason, err := g.Evaluate(sig, data)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, reason, nil
		}
	}
	return true, "", nil
}
