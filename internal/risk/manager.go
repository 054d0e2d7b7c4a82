package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/broker"
	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

// AIValidator is the optional hard-risk escalation hook (spec §4.6 step 8).
type AIValidator interface {
	Validate(ctx context.Context, sig domain.Signal, intent domain.Intent, reason string) (approve bool)
}

type Config struct {
	RiskPerTradePct   float64
	MaxPositionPct    float64
	CircuitBreakerPct float64
	MaxPositions      int
	MaxDailyTrades    int
	MaxSymbolTrades   int
	CooldownLosses    int
	CooldownDuration  time.Duration
	EnableAIValidation bool
}

// Manager is the RiskManager component: gate chain + sizing + cooldown
// tracking + circuit breaker, combined behind one Evaluate call.
type Manager struct {
	cfg   Config
	gates []Gate
	ai    AIValidator

	mu         sync.Mutex
	cooldowns  map[string]domain.CooldownRecord
	counters   domain.DailyCounters
}

func New(cfg Config, ai AIValidator) *Manager {
	return &Manager{
		cfg:       cfg,
		gates:     DefaultGates(),
		ai:        ai,
		cooldowns: make(map[string]domain.CooldownRecord),
		counters:  domain.DailyCounters{PerSymbolToday: make(map[string]int)},
	}
}

// ResetSession clears daily counters and cooldowns at session start,
// recording sessionStartEquity for the circuit breaker (spec §3 DailyCounters).
func (m *Manager) ResetSession(startEquity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = domain.DailyCounters{
		PerSymbolToday:     make(map[string]int),
		SessionStartEquity: startEquity,
		CurrentEquity:      startEquity,
	}
	m.cooldowns = make(map[string]domain.CooldownRecord)
}

func (m *Manager) UpdateEquity(current decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters.CurrentEquity = current
}

// RecordTradeOutcome feeds the cooldown tracker: a loss increments the
// symbol's consecutive-loss count and, once it reaches CooldownLosses,
// freezes the symbol for CooldownDuration (the same lazy-window style as
// liquidation_monitor.go's per-symbol event buffer, applied to losses
// instead of liquidation notional).
func (m *Manager) RecordTradeOutcome(symbol string, realizedPnL decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.cooldowns[symbol]
	rec.Symbol = symbol
	if realizedPnL.IsNegative() {
		rec.ConsecutiveLosses++
	} else {
		rec.ConsecutiveLosses = 0
	}
	if rec.ConsecutiveLosses >= m.cfg.CooldownLosses {
		rec.FrozenUntil = now.Add(m.cfg.CooldownDuration)
	}
	m.cooldowns[symbol] = rec
}

func (m *Manager) circuitBreakerTripped() bool {
	return m.counters.DrawdownPct() >= m.cfg.CircuitBreakerPct
}

// Evaluate runs the full ordered policy (spec §4.6): gate chain, sizing,
// buying-power fallback, and the AIValidator high-risk escalation.
func (m *Manager) Evaluate(ctx context.Context, sig domain.Signal, acct Account, regime domain.Regime, timeOfDayMultiplier, confidenceMultiplier float64) Decision {
	m.mu.Lock()
	data := RiskData{
		Now:                   time.Now(),
		TradingAllowed:        regime.TradingAllowed,
		CircuitBreakerTripped: m.circuitBreakerTripped(),
		MarketOpen:            acct.MarketOpen,
		ExtendedHoursAllowed:  false,
		OpenPositionCount:     acct.OpenPositionCount,
		MaxPositions:          m.cfg.MaxPositions,
		TradesToday:           m.counters.TradesToday,
		MaxDailyTrades:        m.cfg.MaxDailyTrades,
		PerSymbolToday:        m.counters.PerSymbolToday[sig.Symbol],
		MaxSymbolTrades:       m.cfg.MaxSymbolTrades,
		Cooldown:              m.cooldowns[sig.Symbol],
		Equity:                acct.Equity,
		BuyingPower:           acct.BuyingPower,
		DaytradingBuyingPower: acct.DaytradingBuyingPower,
		IsPDT:                 acct.IsPDT,
		Cash:                  acct.Cash,
	}
	m.mu.Unlock()

	ok, reason, err := Evaluate(m.gates, sig, data)
	if err != nil {
		return Decision{Approved: false, Reason: fmt.Sprintf("gate_error: %v", err)}
	}
	if !ok {
		return Decision{Approved: false, Reason: reason}
	}

	intent, sizeErr := m.size(sig, acct, regime, timeOfDayMultiplier, confidenceMultiplier)
	if sizeErr != "" {
		return Decision{Approved: false, Reason: sizeErr}
	}

	highRisk := m.isHighRisk(sig, data, intent, acct)
	intent.HighRisk = highRisk
	intent.IdempotencyKey = broker.IdempotencyKey(sig.Symbol, string(sig.Side), sig.FeaturesAsOf)

	if highRisk && m.cfg.EnableAIValidation && m.ai != nil {
		if !m.ai.Validate(ctx, sig, intent, "high_risk_escalation") {
			return Decision{Approved: false, Reason: "ai_validator_rejected"}
		}
	}

	m.mu.Lock()
	m.counters.TradesToday++
	m.counters.PerSymbolToday[sig.Symbol]++
	m.mu.Unlock()

	return Decision{Approved: true, Intent: intent}
}

// Account is the subset of broker account/position state RiskManager reads.
type Account struct {
	Equity                decimal.Decimal
	BuyingPower           decimal.Decimal
	DaytradingBuyingPower decimal.Decimal
	Cash                  decimal.Decimal
	IsPDT                 bool
	MarketOpen            bool
	OpenPositionCount     int
	SymbolWinRate         float64
	SymbolRecentLosses    int
}

// size implements step 6-7 of spec §4.6: riskDollars formula, qty floor,
// position-pct and buying-power caps, and the PDT buying-power fallback.
func (m *Manager) size(sig domain.Signal, acct Account, regime domain.Regime, timeOfDayMultiplier, confidenceMultiplier float64) (domain.Intent, string) {
	entry := sig.Price
	stop := sig.StopHint
	stopDistance := entry.Sub(stop).Abs()
	if stopDistance.IsZero() {
		return domain.Intent{}, "zero_stop_distance"
	}

	riskDollars := acct.Equity.
		Mul(decimal.NewFromFloat(m.cfg.RiskPerTradePct)).
		Mul(decimal.NewFromFloat(regime.Multiplier)).
		Mul(decimal.NewFromFloat(timeOfDayMultiplier)).
		Mul(decimal.NewFromFloat(confidenceMultiplier))

	qtyF := math.Floor(riskDollars.Div(stopDistance).InexactFloat64())
	qty := decimal.NewFromFloat(qtyF)
	if qty.LessThanOrEqual(decimal.Zero) {
		return domain.Intent{}, "qty_not_positive"
	}

	notional := qty.Mul(entry)
	if notional.GreaterThan(acct.Equity.Mul(decimal.NewFromFloat(m.cfg.MaxPositionPct))) {
		return domain.Intent{}, "exceeds_max_position_pct"
	}

	buyingPower := acct.DaytradingBuyingPower
	if buyingPower.IsZero() && acct.IsPDT {
		buyingPower = decimal.Max(acct.Cash, acct.BuyingPower)
	}
	if notional.GreaterThan(buyingPower) {
		return domain.Intent{}, "exceeds_buying_power"
	}

	target := computeTarget(sig.Side, entry, stopDistance)

	return domain.Intent{
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Qty:    qty,
		Entry:  entry,
		Stop:   stop,
		Target: target,
	}, ""
}

func computeTarget(side domain.Side, entry, stopDistance decimal.Decimal) decimal.Decimal {
	const minRR = 2.0
	move := stopDistance.Mul(decimal.NewFromFloat(minRR))
	if side == domain.SideLong {
		return entry.Add(move)
	}
	return entry.Sub(move)
}

// isHighRisk implements spec §4.6 step 8's classification: any one factor
// is sufficient to mark a trade high-risk.
func (m *Manager) isHighRisk(sig domain.Signal, data RiskData, intent domain.Intent, acct Account) bool {
	if data.Cooldown.ConsecutiveLosses > 0 {
		return true
	}
	if acct.SymbolWinRate > 0 && acct.SymbolWinRate < 0.35 {
		return true
	}
	notionalPct := 0.0
	if !acct.Equity.IsZero() {
		n := intent.Qty.Mul(intent.Entry).Div(acct.Equity)
		notionalPct, _ = n.Float64()
	}
	if notionalPct > 0.08 {
		return true
	}
	if sig.Confidence < 75 {
		return true
	}
	if acct.SymbolRecentLosses >= 2 {
		return true
	}
	return false
}
