// Package domain holds the cross-cutting data model shared by Strategy,
// RiskManager, OrderExecutor, PositionProtector, and TradingEngine (spec §3),
// so those packages depend on plain structs instead of on each other.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Signal is Strategy's pure-function output: a candidate trade with no
// broker interaction performed yet.
type Signal struct {
	Symbol        string
	Side          Side
	Confidence    float64
	Confirmations int
	Rationale     []string
	FeaturesAsOf  time.Time
	Price         decimal.Decimal
	StopHint      decimal.Decimal
}

// Intent is RiskManager's sized, approved output handed to OrderExecutor.
type Intent struct {
	Symbol string
	Side   Side
	Qty    decimal.Decimal
	Entry  decimal.Decimal
	Stop   decimal.Decimal
	Target decimal.Decimal

	IdempotencyKey string
	HighRisk       bool
}

type OrderType string

const (
	OrderMarket       OrderType = "market"
	OrderLimit        OrderType = "limit"
	OrderStop         OrderType = "stop"
	OrderStopLimit    OrderType = "stopLimit"
	OrderTrailingStop OrderType = "trailingStop"
)

type OrderRole string

const (
	RoleEntry      OrderRole = "entry"
	RoleTakeProfit OrderRole = "takeProfit"
	RoleStopLoss   OrderRole = "stopLoss"
)

type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAccepted        OrderStatus = "accepted"
	OrderPartiallyFilled OrderStatus = "partiallyFilled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderHeld            OrderStatus = "held"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
)

type Order struct {
	ID             string
	Symbol         string
	Side           Side
	Qty            decimal.Decimal
	Type           OrderType
	Role           OrderRole
	Status         OrderStatus
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	SubmittedAt    time.Time
	FilledAt       time.Time
}

// IsFilled applies the multi-method fill contract of spec §4.7: any one of
// these signals is sufficient, since brokers are inconsistent about which
// field they populate first.
func (o Order) IsFilled(requestedQty decimal.Decimal) bool {
	switch o.Status {
	case OrderFilled:
		return true
	}
	if o.FilledQty.GreaterThanOrEqual(requestedQty) && requestedQty.IsPositive() {
		return true
	}
	if o.FilledAvgPrice.IsPositive() {
		return true
	}
	if !o.FilledAt.IsZero() {
		return true
	}
	return false
}

// BracketGroup links an entry order to its stop/target legs.
type BracketGroup struct {
	EntryOrder  Order
	StopOrder   Order
	TargetOrder Order
	LinkID      string
	Violation   FillViolation
}

// FillViolationKind enumerates the post-fill checks OrderExecutor runs
// against the actual fill price (spec §4.7). A zero-value Kind means the
// fill validated cleanly.
type FillViolationKind string

const (
	FillViolationRewardRisk FillViolationKind = "reward_risk_below_min"
	FillViolationSlippage   FillViolationKind = "slippage_exceeded"
)

// FillViolation carries what OrderExecutor found wrong with a fill plus
// enough data for the caller to act: close immediately (reward:risk) or
// widen the stop to the recommended level (slippage).
type FillViolation struct {
	Kind            FillViolationKind
	RewardRisk      float64
	SlippagePct     float64
	RecommendedStop decimal.Decimal
}

// CloseReason enumerates why a BracketGroup/position was torn down.
// Cancellation of a group by the engine preserves stop/target legs unless
// the reason is one of emergency/manual/riskLimit (spec §3 invariant).
type CloseReason string

const (
	CloseEmergency  CloseReason = "emergency"
	CloseManual     CloseReason = "manual"
	CloseRiskLimit  CloseReason = "riskLimit"
	CloseTakeProfit CloseReason = "takeProfit"
	CloseStopLoss   CloseReason = "stopLoss"
	CloseReconciled CloseReason = "reconciled"
)

func (r CloseReason) PreservesBrackets() bool {
	return r != CloseEmergency && r != CloseManual && r != CloseRiskLimit
}

// ProtectorState is PositionProtector's per-position state machine value
// (spec §4.8).
type ProtectorState string

const (
	StateInitial            ProtectorState = "initial"
	StateBreakevenProtected ProtectorState = "breakevenProtected"
	StateFirstPartial       ProtectorState = "firstPartial"
	StateSecondPartial      ProtectorState = "secondPartial"
	StateTrailing           ProtectorState = "trailing"
	StateExited             ProtectorState = "exited"
)

// Position is the live, owned record the TradingEngine maintains per symbol.
type Position struct {
	Symbol        string
	Side          Side
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	InitialRisk   decimal.Decimal
	EntryTime     time.Time
	PartialsTaken int
	TrailingActive bool
	HighWaterMark decimal.Decimal // low-water for shorts
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal

	State        ProtectorState
	Bracket      BracketGroup
	LastStopCheck time.Time
}

// RMultiple returns how many multiples of InitialRisk currentPrice has
// moved in the position's favor.
func (p Position) RMultiple(currentPrice decimal.Decimal) decimal.Decimal {
	if p.InitialRisk.IsZero() {
		return decimal.Zero
	}
	diff := currentPrice.Sub(p.AvgEntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Div(p.InitialRisk)
}

// CooldownRecord tracks a symbol's consecutive-loss freeze (spec §3).
type CooldownRecord struct {
	Symbol            string
	ConsecutiveLosses int
	FrozenUntil       time.Time
}

func (c CooldownRecord) Active(now time.Time) bool {
	return now.Before(c.FrozenUntil)
}

// DailyCounters tracks per-session trade frequency and equity drawdown.
type DailyCounters struct {
	TradesToday       int
	PerSymbolToday    map[string]int
	SessionStartEquity decimal.Decimal
	CurrentEquity      decimal.Decimal
}

func (d DailyCounters) DrawdownPct() float64 {
	if d.SessionStartEquity.IsZero() {
		return 0
	}
	dd := d.SessionStartEquity.Sub(d.CurrentEquity).Div(d.SessionStartEquity)
	f, _ := dd.Float64()
	return f
}

// RegimeLabel classifies the breadth/trend/volatility environment (spec §4.4).
type RegimeLabel string

const (
	RegimeBroadBullish   RegimeLabel = "broadBullish"
	RegimeBroadBearish   RegimeLabel = "broadBearish"
	RegimeBroadNeutral   RegimeLabel = "broadNeutral"
	RegimeNarrowBullish  RegimeLabel = "narrowBullish"
	RegimeNarrowBearish  RegimeLabel = "narrowBearish"
	RegimeChoppy         RegimeLabel = "choppy"
)

type Regime struct {
	Label          RegimeLabel
	VIX            float64
	Multiplier     float64
	TradingAllowed bool
	AsOf           time.Time
}

// SentimentLabel buckets Sentiment.Score into the categories Strategy's
// short-safety rule and RiskManager's adjustments key off.
type SentimentLabel string

const (
	SentimentExtremeFear SentimentLabel = "extremeFear"
	SentimentFear        SentimentLabel = "fear"
	SentimentNeutral     SentimentLabel = "neutral"
	SentimentGreed       SentimentLabel = "greed"
	SentimentExtremeGreed SentimentLabel = "extremeGreed"
)

type Sentiment struct {
	Score float64
	Label SentimentLabel
	AsOf  time.Time
}

func ClassifySentiment(score float64) SentimentLabel {
	switch {
	case score < 20:
		return SentimentExtremeFear
	case score < 30:
		return SentimentFear
	case score < 60:
		return SentimentNeutral
	case score < 80:
		return SentimentGreed
	default:
		return SentimentExtremeGreed
	}
}
