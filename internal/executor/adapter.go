package executor

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/broker"
)

// BrokerAdapter narrows broker.Gateway's alpaca-shaped returns down to the
// small Gateway interface this package depends on, keeping executor free of
// a direct alpaca import for anything beyond this one conversion boundary.
type BrokerAdapter struct {
	GW *broker.Gateway
}

func (a BrokerAdapter) SubmitBracket(ctx context.Context, symbol, side string, qty decimal.Decimal, limitPrice, takeProfit, stopLoss decimal.Decimal, clientOrderID string) (*orderRef, error) {
	o, err := a.GW.SubmitBracket(ctx, symbol, side, qty, limitPrice, takeProfit, stopLoss, clientOrderID)
	if err != nil {
		return nil, err
	}
	return toOrderRef(o), nil
}

func (a BrokerAdapter) GetOrder(ctx context.Context, orderID string) (*orderRef, error) {
	o, err := a.GW.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderRef(o), nil
}

func (a BrokerAdapter) CancelOrder(ctx context.Context, orderID string) error {
	return a.GW.CancelOrder(ctx, orderID)
}

func (a BrokerAdapter) GetPositions(ctx context.Context) ([]positionRef, error) {
	positions, err := a.GW.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]positionRef, 0, len(positions))
	for _, p := range positions {
		qty, _ := decimal.NewFromString(p.Qty.String())
		out = append(out, positionRef{Symbol: p.Symbol, Qty: qty})
	}
	return out, nil
}

func toOrderRef(o *alpaca.Order) *orderRef {
	var filledQty, filledAvg decimal.Decimal
	if o.FilledQty.String() != "" {
		filledQty, _ = decimal.NewFromString(o.FilledQty.String())
	}
	if o.FilledAvgPrice != nil {
		filledAvg, _ = decimal.NewFromString(o.FilledAvgPrice.String())
	}
	var filledAt time.Time
	if o.FilledAt != nil {
		filledAt = *o.FilledAt
	}
	return &orderRef{
		ID:             o.ID,
		Status:         string(o.Status),
		FilledQty:      filledQty,
		FilledAvgPrice: filledAvg,
		FilledAt:       filledAt,
	}
}
