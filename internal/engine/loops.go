package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
	"github.com/codebytelabs/daytrader-engine/internal/risk"
	"github.com/codebytelabs/daytrader-engine/internal/strategy"
)

// marketDataTick refreshes bars/features for every watchlisted symbol
// (spec §4.9 marketData loop, ~60s).
func (e *Engine) marketDataTick(ctx context.Context) {
	for _, symbol := range e.cfg.Watchlist {
		if err := e.mdCache.Refresh(ctx, symbol); err != nil {
			e.bus.Logf("warn", "ENGINE: market data refresh failed for %s: %v", symbol, err)
		}
	}
}

// strategyTick runs Strategy → RiskManager → OrderExecutor per symbol, with
// per-symbol serialization so two loops never act on the same symbol at
// once (spec §5 ordering guarantee).
func (e *Engine) strategyTick(ctx context.Context) {
	if !e.isTradingEnabled() {
		return
	}

	advancers, total := e.breadthSnapshot()
	regimeState, err := e.regimeDet.Current(ctx, advancers, total)
	if err != nil {
		e.bus.Logf("warn", "ENGINE: regime refresh failed, skipping cycle: %v", err)
		return
	}

	acct, err := e.bgw.GetAccount(ctx)
	if err != nil {
		e.bus.Logf("warn", "ENGINE: account fetch failed, skipping strategy cycle: %v", err)
		return
	}
	e.riskMgr.UpdateEquity(acct.Equity)

	for _, symbol := range e.cfg.Watchlist {
		e.evaluateSymbol(ctx, symbol, regimeState, acct)
	}
}

func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, regimeState domain.Regime, acct Account) {
	lock := e.lockFor(symbol)
	lock.Lock()
	defer lock.Unlock()

	feat, ok := e.mdCache.Snapshot(symbol)
	if !ok {
		return
	}

	dailyCtx, dailyOK := e.dailyCache.Get(symbol)
	e.mu.Lock()
	_, hasPosition := e.positions[symbol]
	openCount := len(e.positions)
	e.mu.Unlock()

	sig, ok := e.strat.Evaluate(strategy.Inputs{
		Symbol:      symbol,
		Features:    feat,
		DailyTrend:  dailyCtx,
		DailyValid:  dailyOK && !dailyCtx.Degraded,
		Regime:      regimeState,
		Sentiment:   e.sentiment.Current(),
		HasPosition: hasPosition,
		Frozen:      !e.isTradingEnabled(),
		Now:         time.Now(),
	})
	if !ok {
		return
	}

	e.bus.Publish(eventbus.Event{Kind: eventbus.KindSignalGenerated, Symbol: symbol, Timestamp: time.Now(), Payload: sig})

	// A new entry must be sized and priced off the realtime trade price, not
	// the last completed bar's close the signal carries (spec §4.2/§4.6).
	tradablePrice, err := e.mdCache.TradablePrice(ctx, symbol)
	if err != nil {
		e.bus.Logf("warn", "ENGINE: %s tradable price fetch failed, skipping entry: %v", symbol, err)
		return
	}
	sig.Price = tradablePrice

	decision := e.riskMgr.Evaluate(ctx, sig, risk.Account{
		Equity: acct.Equity, BuyingPower: acct.BuyingPower, DaytradingBuyingPower: acct.DaytradingBuyingPower,
		Cash: acct.Cash, IsPDT: acct.IsPDT, MarketOpen: acct.MarketOpen, OpenPositionCount: openCount,
	}, regimeState, 1.0, confidenceMultiplier(sig.Confidence))
	if !decision.Approved {
		e.bus.Logf("info", "ENGINE: %s signal rejected: %s", symbol, decision.Reason)
		return
	}

	group, err := e.exec.Submit(ctx, decision.Intent)
	if err != nil {
		e.bus.Logf("warn", "ENGINE: %s order submission failed: %v", symbol, err)
		return
	}

	pos := domain.Position{
		Symbol: symbol, Side: decision.Intent.Side, Qty: group.EntryOrder.FilledQty,
		AvgEntryPrice: group.EntryOrder.FilledAvgPrice, StopLoss: decision.Intent.Stop, TakeProfit: decision.Intent.Target,
		InitialRisk: group.EntryOrder.FilledAvgPrice.Sub(decision.Intent.Stop).Abs(),
		EntryTime:   time.Now(), State: domain.StateInitial, Bracket: group,
	}
	if group.Violation.Kind != "" {
		e.handleFillViolation(ctx, &pos, group.Violation)
	}

	e.mu.Lock()
	e.positions[symbol] = pos
	e.mu.Unlock()

	e.bus.Publish(eventbus.Event{Kind: eventbus.KindPositionOpened, Symbol: symbol, Timestamp: time.Now(),
		Payload: eventbus.PositionOpenedPayload{
			Symbol: symbol, Side: string(pos.Side), Qty: pos.Qty, AvgEntryPrice: pos.AvgEntryPrice,
			StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit, InitialRisk: pos.InitialRisk,
		}})
}

// handleFillViolation acts on OrderExecutor's post-fill reward:risk/slippage
// check (spec §4.7): a reward:risk breach closes the position immediately
// since no stop adjustment alone restores an acceptable reward:risk against
// the already-fixed target; a slippage breach widens the stop to the
// executor's recommended level, moved away from the entry by the slip.
func (e *Engine) handleFillViolation(ctx context.Context, pos *domain.Position, v domain.FillViolation) {
	switch v.Kind {
	case domain.FillViolationRewardRisk:
		e.bus.Logf("warn", "ENGINE: %s reward:risk %.2f below minimum after fill, closing immediately", pos.Symbol, v.RewardRisk)
		if err := e.prot.CloseNonEmergency(ctx, *pos, pos.AvgEntryPrice); err != nil {
			e.bus.Logf("error", "ENGINE: %s corrective close failed: %v", pos.Symbol, err)
		}
	case domain.FillViolationSlippage:
		e.bus.Logf("warn", "ENGINE: %s widening stop to %s after %.4f%% fill slippage", pos.Symbol, v.RecommendedStop, v.SlippagePct*100)
		if err := e.prot.WidenStop(ctx, pos, v.RecommendedStop); err != nil {
			e.bus.Logf("error", "ENGINE: %s stop widen failed: %v", pos.Symbol, err)
		}
	}
}

func confidenceMultiplier(confidence float64) float64 {
	switch {
	case confidence >= 85:
		return 1.25
	case confidence >= 75:
		return 1.0
	default:
		return 0.75
	}
}

// breadthSnapshot counts how many watchlist symbols have a bullish EMA9>EMA21
// posture, the input RegimeDetector needs for market breadth.
func (e *Engine) breadthSnapshot() (advancers, total int) {
	for _, symbol := range e.cfg.Watchlist {
		feat, ok := e.mdCache.Snapshot(symbol)
		if !ok {
			continue
		}
		total++
		if feat.EMA9.GreaterThan(feat.EMA21) {
			advancers++
		}
	}
	if total == 0 {
		total = 1
	}
	return
}

// positionMonitorTick reconciles locally-owned positions against the
// broker's view (spec §4.9, ~10s), closing out any position the broker no
// longer shows (stop/target hit, reconciled elsewhere).
func (e *Engine) positionMonitorTick(ctx context.Context) {
	brokerPositions, err := e.bgw.BrokerPositions(ctx)
	if err != nil {
		e.bus.Logf("warn", "ENGINE: position reconciliation fetch failed: %v", err)
		return
	}

	e.mu.Lock()
	var closed []domain.Position
	for symbol, pos := range e.positions {
		qty, stillOpen := brokerPositions[symbol]
		if !stillOpen || qty.IsZero() {
			closed = append(closed, pos)
		}
	}
	for _, pos := range closed {
		delete(e.positions, pos.Symbol)
	}
	e.mu.Unlock()

	for _, pos := range closed {
		e.RecordClosedTrade(pos.Symbol, pos.UnrealizedPnL)
		e.bus.Publish(eventbus.Event{Kind: eventbus.KindPositionClosed, Symbol: pos.Symbol, Timestamp: time.Now(),
			Payload: eventbus.PositionClosedPayload{Symbol: pos.Symbol, Reason: string(domain.CloseReconciled), RealizedPnL: pos.UnrealizedPnL}})
	}
}

// profitProtectionTick runs PositionProtector across every open position on
// a tight ~1s cadence (spec §4.9) and the stuck-stop scan.
func (e *Engine) profitProtectionTick(ctx context.Context) {
	e.mu.Lock()
	positions := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		positions = append(positions, p)
	}
	e.mu.Unlock()

	if len(positions) == 0 {
		return
	}

	e.prot.StuckStopScan(ctx, positions)

	for _, pos := range positions {
		lock := e.lockFor(pos.Symbol)
		lock.Lock()
		price, err := e.mdCache.TradablePrice(ctx, pos.Symbol)
		if err != nil {
			lock.Unlock()
			continue
		}
		feat, _ := e.mdCache.Snapshot(pos.Symbol)
		updated := e.prot.Evaluate(ctx, pos, price, feat.ATR14)
		updated.UnrealizedPnL = unrealizedPnL(updated, price)
		e.mu.Lock()
		e.positions[pos.Symbol] = updated
		e.mu.Unlock()
		lock.Unlock()
	}
}

func unrealizedPnL(pos domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	diff := currentPrice.Sub(pos.AvgEntryPrice)
	if pos.Side == domain.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Qty)
}

// metricsTick logs the trade/win/loss/PnL totals RecordClosedTrade
// accumulates (spec §4.9, ~5min). It computes no profit factor or drawdown
// and does not update risk.Manager's DailyCounters.
func (e *Engine) metricsTick(ctx context.Context) {
	e.mu.Lock()
	m := e.metricsSnap
	e.mu.Unlock()
	e.bus.Logf("info", "ENGINE: metrics — trades=%d wins=%d losses=%d pnl=%s", m.TotalTrades, m.Wins, m.Losses, m.TotalPnL)
}

// RecordClosedTrade feeds realized PnL into both the cooldown tracker and
// the daily metrics snapshot; called by positionMonitorTick's reconciliation
// path once the broker confirms a position is gone.
func (e *Engine) RecordClosedTrade(symbol string, realizedPnL decimal.Decimal) {
	e.riskMgr.RecordTradeOutcome(symbol, realizedPnL, time.Now())

	e.mu.Lock()
	e.metricsSnap.TotalTrades++
	if realizedPnL.IsNegative() {
		e.metricsSnap.Losses++
	} else {
		e.metricsSnap.Wins++
	}
	e.metricsSnap.TotalPnL = e.metricsSnap.TotalPnL.Add(realizedPnL)
	if realizedPnL.GreaterThan(e.metricsSnap.BestTrade) {
		e.metricsSnap.BestTrade = realizedPnL
	}
	e.mu.Unlock()
}

// scannerTick refreshes a dynamic watchlist from an external source (spec
// §4.9, optional ~1h loop). No external scanner source is wired in this
// deployment, so this is a documented no-op hook rather than a blocking
// dependency on an unspecified vendor.
func (e *Engine) scannerTick(ctx context.Context) {}
