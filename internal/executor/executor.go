// Package executor submits bracket orders and verifies fills with the
// multi-method detection spec §4.7 calls the single most
// correctness-sensitive piece of the engine. The adaptive-poll/timeout/
// final-verification shape is ported from execution_service.go's
// monitorLimitOrder and checkCriticalError.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/broker"
	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

// Gateway is the subset of BrokerGateway OrderExecutor needs.
type Gateway interface {
	SubmitBracket(ctx context.Context, symbol, side string, qty decimal.Decimal, limitPrice, takeProfit, stopLoss decimal.Decimal, clientOrderID string) (*orderRef, error)
	GetOrder(ctx context.Context, orderID string) (*orderRef, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetPositions(ctx context.Context) ([]positionRef, error)
}

// orderRef/positionRef are the minimal broker-shaped views executor needs;
// BrokerAdapter (adapter.go) converts broker.Gateway's alpaca types into these.
type orderRef struct {
	ID             string
	Status         string
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	FilledAt       time.Time
}

type positionRef struct {
	Symbol string
	Qty    decimal.Decimal
}

type Config struct {
	SlippageBufferPct float64
	FillTimeout       time.Duration
	MinRewardRisk     float64
	MaxSlippagePct    float64
}

type Executor struct {
	gw  Gateway
	bus *eventbus.Bus
	cfg Config
}

func New(gw Gateway, bus *eventbus.Bus, cfg Config) *Executor {
	return &Executor{gw: gw, bus: bus, cfg: cfg}
}

// Submit places the bracket and polls until filled, timed out, or rejected.
// On a confirmed fill it validates RR/slippage of the intent's stop/target
// against the actual fill price (spec §4.7). The stop and target are not
// recomputed; the bracket legs keep the intent's prices.
func (e *Executor) Submit(ctx context.Context, intent domain.Intent) (domain.BracketGroup, error) {
	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.FillTimeout+5*time.Second)
	defer cancel()

	limitPrice := slippageBufferedLimit(intent.Side, intent.Entry, e.cfg.SlippageBufferPct)

	order, err := e.gw.SubmitBracket(submitCtx, intent.Symbol, string(intent.Side), intent.Qty, limitPrice, intent.Target, intent.Stop, intent.IdempotencyKey)
	if err != nil {
		e.bus.Publish(eventbus.Event{Kind: eventbus.KindOrderRejected, Symbol: intent.Symbol, Timestamp: time.Now(),
			Payload: eventbus.OrderRejectedPayload{Symbol: intent.Symbol, Reason: err.Error()}})
		return domain.BracketGroup{}, err
	}

	e.bus.Publish(eventbus.Event{Kind: eventbus.KindOrderSubmitted, Symbol: intent.Symbol, Timestamp: time.Now(),
		Payload: eventbus.OrderSubmittedPayload{OrderID: order.ID, Symbol: intent.Symbol, Side: string(intent.Side), Qty: intent.Qty, Type: "bracket", Role: "entry", IdempotencyKey: intent.IdempotencyKey}})

	filled, err := e.awaitFill(submitCtx, order.ID, intent)
	if err != nil {
		return domain.BracketGroup{}, err
	}

	violation := e.validateAgainstFill(intent, filled)
	if violation.Kind != "" {
		e.bus.Publish(eventbus.Event{Kind: eventbus.KindFillRiskViolation, Symbol: intent.Symbol, Timestamp: time.Now(),
			Payload: eventbus.FillRiskViolationPayload{Symbol: intent.Symbol, Kind: string(violation.Kind), RewardRisk: violation.RewardRisk, SlippagePct: violation.SlippagePct}})
	}

	entryOrder := domain.Order{
		ID: order.ID, Symbol: intent.Symbol, Side: intent.Side, Qty: intent.Qty,
		Type: domain.OrderLimit, Role: domain.RoleEntry, Status: domain.OrderFilled,
		FilledQty: filled.FilledQty, FilledAvgPrice: filled.FilledAvgPrice, FilledAt: filled.FilledAt,
	}

	e.bus.Publish(eventbus.Event{Kind: eventbus.KindOrderFilled, Symbol: intent.Symbol, Timestamp: time.Now(),
		Payload: eventbus.OrderFilledPayload{OrderID: order.ID, Symbol: intent.Symbol, FilledQty: filled.FilledQty, FilledAvgPrice: filled.FilledAvgPrice, FilledAt: filled.FilledAt}})

	return domain.BracketGroup{EntryOrder: entryOrder, LinkID: order.ID, Violation: violation}, nil
}

// slippageBufferedLimit prices the entry leg at entry ± a slippage buffer
// (spec §4.7): a long buys up to bufferPct above the realtime price to
// improve fill odds, a short sells down to bufferPct below it.
func slippageBufferedLimit(side domain.Side, entry decimal.Decimal, bufferPct float64) decimal.Decimal {
	buffer := entry.Mul(decimal.NewFromFloat(bufferPct))
	if side == domain.SideShort {
		return entry.Sub(buffer)
	}
	return entry.Add(buffer)
}

// awaitFill is the adaptive-polling loop (0.5s floor, 2s cap) of spec §4.7,
// ported in shape from monitorLimitOrder's ticker-driven status checks.
func (e *Executor) awaitFill(ctx context.Context, orderID string, intent domain.Intent) (*orderRef, error) {
	interval := 500 * time.Millisecond
	const maxInterval = 2 * time.Second
	deadline := time.Now().Add(e.cfg.FillTimeout)

	for {
		order, err := e.gw.GetOrder(ctx, orderID)
		if err == nil && order.Status != "" {
			if isFilledStatus(order.Status) || order.FilledQty.GreaterThanOrEqual(intent.Qty) || order.FilledAvgPrice.IsPositive() || !order.FilledAt.IsZero() {
				return order, nil
			}
			if isTerminalNonFillStatus(order.Status) {
				return nil, fmt.Errorf("order %s terminated without fill: %s", orderID, order.Status)
			}
		} else if err != nil && broker.Classify(err) == broker.ClassPermanent {
			return nil, fmt.Errorf("permanent error polling order %s: %w", orderID, err)
		}

		if time.Now().After(deadline) {
			return e.finalVerification(ctx, orderID, intent)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// finalVerification attempts cancellation at timeout; an "already filled"
// response is itself proof of fill (spec §4.7's ambiguous-cancel-race
// handling, ported from checkCriticalError's string matching but expressed
// through Classify/ClassAlreadyTerminal instead).
func (e *Executor) finalVerification(ctx context.Context, orderID string, intent domain.Intent) (*orderRef, error) {
	cancelErr := e.gw.CancelOrder(ctx, orderID)
	if cancelErr != nil && broker.Classify(cancelErr) == broker.ClassAlreadyTerminal {
		order, err := e.gw.GetOrder(ctx, orderID)
		if err == nil {
			return order, nil
		}
	}
	if cancelErr == nil {
		positions, err := e.gw.GetPositions(ctx)
		if err == nil {
			for _, p := range positions {
				if p.Symbol == intent.Symbol && p.Qty.IsPositive() {
					log.Printf("⚠️ EXECUTOR: %s order %s cancel succeeded but a position exists — treating as filled via reconciliation", intent.Symbol, orderID)
					return &orderRef{ID: orderID, Status: "filled", FilledQty: p.Qty, FilledAvgPrice: intent.Entry, FilledAt: time.Now()}, nil
				}
			}
		}
		return nil, fmt.Errorf("order %s timed out with no fill, canceled cleanly", orderID)
	}
	return nil, fmt.Errorf("order %s timed out, cancel ambiguous: %w", orderID, cancelErr)
}

func isFilledStatus(status string) bool {
	switch status {
	case "filled", "executed", "complete", "Filled", "Executed", "Complete":
		return true
	}
	return false
}

func isTerminalNonFillStatus(status string) bool {
	switch status {
	case "canceled", "rejected", "expired", "Canceled", "Rejected", "Expired":
		return true
	}
	return false
}

// validateAgainstFill checks RR/slippage against the actual fill price and
// reports what it found so the caller can widen the stop or close the
// position once it exists (spec §4.7): a reward:risk breach is reported as
// a close signal, a slippage breach carries a recommended stop moved away
// from the position by the amount the fill slipped.
func (e *Executor) validateAgainstFill(intent domain.Intent, filled *orderRef) domain.FillViolation {
	fill := filled.FilledAvgPrice
	if fill.IsZero() {
		return domain.FillViolation{}
	}

	stopDist := fill.Sub(intent.Stop).Abs()
	targetDist := intent.Target.Sub(fill).Abs()
	if !stopDist.IsZero() {
		rr, _ := targetDist.Div(stopDist).Float64()
		if rr < e.cfg.MinRewardRisk {
			log.Printf("⚠️ EXECUTOR: %s reward:risk %.2f below minimum %.2f after fill at %s", intent.Symbol, rr, e.cfg.MinRewardRisk, fill)
			return domain.FillViolation{Kind: domain.FillViolationRewardRisk, RewardRisk: rr}
		}
	}

	slippage := fill.Sub(intent.Entry).Abs().Div(intent.Entry)
	if s, _ := slippage.Float64(); s > e.cfg.MaxSlippagePct {
		log.Printf("⚠️ EXECUTOR: %s slippage %.4f%% exceeds max %.4f%%", intent.Symbol, s*100, e.cfg.MaxSlippagePct*100)
		return domain.FillViolation{Kind: domain.FillViolationSlippage, SlippagePct: s, RecommendedStop: widenStopForSlippage(intent, fill)}
	}

	return domain.FillViolation{}
}

// widenStopForSlippage moves the stop away from the position (down for a
// long, up for a short) by the amount the fill slipped from the planned
// entry. For a fill better than planned the stop keeps the planned distance
// from the fill; for a worse fill the distance becomes the planned one plus
// twice the slip.
func widenStopForSlippage(intent domain.Intent, fill decimal.Decimal) decimal.Decimal {
	slip := fill.Sub(intent.Entry).Abs()
	if intent.Side == domain.SideLong {
		return intent.Stop.Sub(slip)
	}
	return intent.Stop.Add(slip)
}
