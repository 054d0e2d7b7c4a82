package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/broker"
)

// Account is the account snapshot the engine and RiskManager read.
type Account struct {
	Equity                decimal.Decimal
	BuyingPower           decimal.Decimal
	DaytradingBuyingPower decimal.Decimal
	Cash                  decimal.Decimal
	IsPDT                 bool
	MarketOpen            bool
}

// BrokerAdapter narrows broker.Gateway down to the account/clock/position/
// close-market operations the engine drives directly, converting alpaca's
// string-typed decimal fields the same way executor's adapter does.
type BrokerAdapter struct {
	GW *broker.Gateway
}

func (a *BrokerAdapter) GetAccount(ctx context.Context) (Account, error) {
	acct, err := a.GW.GetAccount(ctx)
	if err != nil {
		return Account{}, err
	}
	clock, clockErr := a.GW.GetClock(ctx)
	marketOpen := clockErr == nil && clock != nil && clock.IsOpen

	equity, _ := decimal.NewFromString(acct.Equity.String())
	bp, _ := decimal.NewFromString(acct.BuyingPower.String())
	dtbp, _ := decimal.NewFromString(acct.DaytradingBuyingPower.String())
	cash, _ := decimal.NewFromString(acct.Cash.String())

	return Account{
		Equity: equity, BuyingPower: bp, DaytradingBuyingPower: dtbp, Cash: cash,
		IsPDT: acct.PatternDayTrader, MarketOpen: marketOpen,
	}, nil
}

// BrokerPositions returns the broker's view of open positions, for
// reconciliation against engine-owned trading_state (spec §4.9
// positionMonitor loop).
func (a *BrokerAdapter) BrokerPositions(ctx context.Context) (map[string]decimal.Decimal, error) {
	positions, err := a.GW.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		qty, _ := decimal.NewFromString(p.Qty.String())
		out[p.Symbol] = qty
	}
	return out, nil
}

// ClosePositionMarket is the one market-order exception spec §4.8 carves out
// of the limit-only close rule: engine-initiated emergencyStop.
func (a *BrokerAdapter) ClosePositionMarket(ctx context.Context, symbol string) error {
	return a.GW.ClosePosition(ctx, symbol)
}
