package eventbus

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies an event's payload shape, per spec §4.10.
type Kind string

const (
	KindFeaturesUpdated      Kind = "FeaturesUpdated"
	KindSignalGenerated      Kind = "SignalGenerated"
	KindOrderSubmitted       Kind = "OrderSubmitted"
	KindOrderFilled          Kind = "OrderFilled"
	KindOrderRejected        Kind = "OrderRejected"
	KindPositionOpened       Kind = "PositionOpened"
	KindPositionModified     Kind = "PositionModified"
	KindPositionClosed       Kind = "PositionClosed"
	KindRegimeChanged        Kind = "RegimeChanged"
	KindCircuitBreakerTripped Kind = "CircuitBreakerTripped"
	KindFillRiskViolation    Kind = "FillRiskViolation"
	KindEngineLog            Kind = "EngineLog"
)

// Event is the envelope every subscriber receives. Payload is one of the
// *Payload structs below depending on Kind.
type Event struct {
	Kind      Kind
	Symbol    string
	Timestamp time.Time
	Payload   interface{}
}

type OrderSubmittedPayload struct {
	OrderID        string
	Symbol         string
	Side           string
	Qty            decimal.Decimal
	Type           string
	Role           string
	IdempotencyKey string
}

type OrderFilledPayload struct {
	OrderID       string
	Symbol        string
	FilledQty     decimal.Decimal
	FilledAvgPrice decimal.Decimal
	FilledAt      time.Time
}

type OrderRejectedPayload struct {
	OrderID string
	Symbol  string
	Reason  string
}

type PositionOpenedPayload struct {
	Symbol        string
	Side          string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	InitialRisk   decimal.Decimal
}

type PositionModifiedPayload struct {
	Symbol        string
	NewStop       decimal.Decimal
	NewTarget     decimal.Decimal
	PartialsTaken int
	Reason        string
}

type PositionClosedPayload struct {
	Symbol      string
	Reason      string // takeProfit | stopLoss | manual | emergency | reconciled
	RealizedPnL decimal.Decimal
}

type CircuitBreakerTrippedPayload struct {
	DrawdownPct float64
}

// FillRiskViolationPayload reports a post-fill reward:risk or slippage
// breach (spec §4.7); the engine acts on it once the position exists.
type FillRiskViolationPayload struct {
	Symbol      string
	Kind        string
	RewardRisk  float64
	SlippagePct float64
}

type EngineLogPayload struct {
	Level   string // info | warn | error
	Message string
}
