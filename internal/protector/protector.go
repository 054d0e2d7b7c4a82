// Package protector implements PositionProtector's per-position R-multiple
// state machine (spec §4.8). The ticking, per-position evaluate-then-act
// loop and monotonic-stop discipline are ported directly from
// execution_service.go's MonitorPosition (breakeven/home-run/trailing
// ladder) and co_pilot_service.go's evaluateSession (hysteresis via a
// recorded start time, generalized here to the stuck-stop scan timer).
package protector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

// Gateway is the subset of BrokerGateway/OrderExecutor the protector needs:
// modifying the bracket's stop/target legs and closing a position outright.
type Gateway interface {
	ReplaceStop(ctx context.Context, position domain.Position, newStop decimal.Decimal) error
	ReplaceTarget(ctx context.Context, position domain.Position, newTarget decimal.Decimal) error
	SubmitReduceOnly(ctx context.Context, position domain.Position, qty decimal.Decimal) error
	ClosePosition(ctx context.Context, position domain.Position, limitPrice decimal.Decimal) error
	StopOrderHealthy(ctx context.Context, position domain.Position) (bool, error)
}

type Config struct {
	PartialPct       float64 // e.g. 0.25
	TrailActivateR   float64 // e.g. 2.0
	ATRTrailMult     float64 // e.g. 1.0
	StuckStopScan    time.Duration
}

type Protector struct {
	gw  Gateway
	bus *eventbus.Bus
	cfg Config

	mu              sync.Mutex
	lastStopCheck   map[string]time.Time
}

func New(gw Gateway, bus *eventbus.Bus, cfg Config) *Protector {
	return &Protector{gw: gw, bus: bus, cfg: cfg, lastStopCheck: make(map[string]time.Time)}
}

// Evaluate runs one tick of the state machine for a single position against
// its current price and ATR (for trail distance), returning the possibly
// updated position. Called on the ≤1s profitProtection cadence (spec §4.9).
func (p *Protector) Evaluate(ctx context.Context, pos domain.Position, currentPrice, atr decimal.Decimal) domain.Position {
	r := pos.RMultiple(currentPrice)
	rFloat, _ := r.Float64()

	switch pos.State {
	case domain.StateInitial:
		if rFloat >= 1.0 {
			p.moveStopToBreakeven(ctx, &pos)
			pos.State = domain.StateBreakevenProtected
		}
	case domain.StateBreakevenProtected:
		if rFloat >= 2.0 {
			p.takePartial(ctx, &pos, 1)
			pos.State = domain.StateFirstPartial
		}
	case domain.StateFirstPartial:
		if rFloat >= 3.0 {
			p.takePartial(ctx, &pos, 2)
			pos.State = domain.StateSecondPartial
		}
	case domain.StateSecondPartial:
		if rFloat >= p.cfg.TrailActivateR {
			pos.TrailingActive = true
			pos.State = domain.StateTrailing
		}
	}

	if pos.TrailingActive {
		p.updateTrail(ctx, &pos, currentPrice, atr)
	}

	return pos
}

// moveStopToBreakeven never moves the stop adverse (invariant: long never
// down, short never up) — mirrors MonitorPosition's breakeven trigger's
// needsUpdate guard.
func (p *Protector) moveStopToBreakeven(ctx context.Context, pos *domain.Position) {
	newStop := pos.AvgEntryPrice
	if pos.Side == domain.SideLong && newStop.LessThanOrEqual(pos.StopLoss) {
		return
	}
	if pos.Side == domain.SideShort && newStop.GreaterThanOrEqual(pos.StopLoss) {
		return
	}
	if err := p.gw.ReplaceStop(ctx, *pos, newStop); err != nil {
		log.Printf("⚠️ PROTECTOR: %s failed to move stop to breakeven: %v", pos.Symbol, err)
		return
	}
	pos.StopLoss = newStop
	p.publishModified(*pos, "breakeven")
}

func (p *Protector) takePartial(ctx context.Context, pos *domain.Position, partialIndex int) {
	qty := pos.Qty.Mul(decimal.NewFromFloat(p.cfg.PartialPct))
	if qty.LessThanOrEqual(decimal.Zero) {
		return
	}
	if err := p.gw.SubmitReduceOnly(ctx, *pos, qty); err != nil {
		log.Printf("⚠️ PROTECTOR: %s partial exit %d failed: %v", pos.Symbol, partialIndex, err)
		return
	}
	pos.Qty = pos.Qty.Sub(qty)
	pos.PartialsTaken = partialIndex
	p.publishModified(*pos, "partial")
}

// updateTrail only ever tightens the stop in the favorable direction,
// mirroring MonitorPosition's trailing block's update-only-if-improved guard.
func (p *Protector) updateTrail(ctx context.Context, pos *domain.Position, currentPrice, atr decimal.Decimal) {
	improved := false
	if pos.Side == domain.SideLong && currentPrice.GreaterThan(pos.HighWaterMark) {
		pos.HighWaterMark = currentPrice
		improved = true
	}
	if pos.Side == domain.SideShort && (pos.HighWaterMark.IsZero() || currentPrice.LessThan(pos.HighWaterMark)) {
		pos.HighWaterMark = currentPrice
		improved = true
	}
	if !improved {
		return
	}

	trailDistance := decimal.Max(pos.InitialRisk.Mul(decimal.NewFromFloat(0.5)), atr.Mul(decimal.NewFromFloat(p.cfg.ATRTrailMult)))

	var newStop decimal.Decimal
	if pos.Side == domain.SideLong {
		newStop = pos.HighWaterMark.Sub(trailDistance)
		if newStop.LessThanOrEqual(pos.StopLoss) {
			return
		}
	} else {
		newStop = pos.HighWaterMark.Add(trailDistance)
		if newStop.GreaterThanOrEqual(pos.StopLoss) {
			return
		}
	}

	if err := p.gw.ReplaceStop(ctx, *pos, newStop); err != nil {
		log.Printf("⚠️ PROTECTOR: %s trailing stop update failed: %v", pos.Symbol, err)
		return
	}
	pos.StopLoss = newStop
	p.publishModified(*pos, "trailing")
}

// WidenStop relaxes a position's stop to newStop, used when OrderExecutor
// reports a slippage-violated fill that needs breathing room rather than an
// immediate close (spec §4.7). Unlike updateTrail this never validates
// direction against the current stop — the caller already decided widening
// is the correct corrective action.
func (p *Protector) WidenStop(ctx context.Context, pos *domain.Position, newStop decimal.Decimal) error {
	if err := p.gw.ReplaceStop(ctx, *pos, newStop); err != nil {
		return err
	}
	pos.StopLoss = newStop
	p.publishModified(*pos, "post_fill_slippage_widen")
	return nil
}

// StuckStopScan checks each position's broker stop at most once per
// StuckStopScan interval and, when it is missing or held (or canceled,
// rejected, expired), asks the gateway to replace that stop leg at the
// position's recorded stop price (spec §4.8). No new stop order is placed.
func (p *Protector) StuckStopScan(ctx context.Context, positions []domain.Position) {
	for _, pos := range positions {
		p.mu.Lock()
		last := p.lastStopCheck[pos.Symbol]
		due := time.Since(last) >= p.cfg.StuckStopScan
		if due {
			p.lastStopCheck[pos.Symbol] = time.Now()
		}
		p.mu.Unlock()
		if !due {
			continue
		}

		healthy, err := p.gw.StopOrderHealthy(ctx, pos)
		if err != nil || healthy {
			continue
		}

		log.Printf("🚨 PROTECTOR: %s stop order missing/held, re-submitting at %s", pos.Symbol, pos.StopLoss)
		if err := p.gw.ReplaceStop(ctx, pos, pos.StopLoss); err != nil {
			log.Printf("🚨 PROTECTOR: %s stop re-submission failed: %v", pos.Symbol, err)
		}
	}
}

// CloseNonEmergency closes a position via a limit order ±0.1% around the
// realtime price — never a market order, unless the reason is emergencyStop
// (spec §4.8 invariant, handled by the caller choosing a different path).
func (p *Protector) CloseNonEmergency(ctx context.Context, pos domain.Position, realtimePrice decimal.Decimal) error {
	buffer := realtimePrice.Mul(decimal.NewFromFloat(0.001))
	limitPrice := realtimePrice.Sub(buffer)
	if pos.Side == domain.SideShort {
		limitPrice = realtimePrice.Add(buffer)
	}
	return p.gw.ClosePosition(ctx, pos, limitPrice)
}

func (p *Protector) publishModified(pos domain.Position, reason string) {
	p.bus.Publish(eventbus.Event{
		Kind:      eventbus.KindPositionModified,
		Symbol:    pos.Symbol,
		Timestamp: time.Now(),
		Payload: eventbus.PositionModifiedPayload{
			Symbol: pos.Symbol, NewStop: pos.StopLoss, NewTarget: pos.TakeProfit,
			PartialsTaken: pos.PartialsTaken, Reason: reason,
		},
	})
}
