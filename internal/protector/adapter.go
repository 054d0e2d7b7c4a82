package protector

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/broker"
	"github.com/codebytelabs/daytrader-engine/internal/domain"
)

// BrokerAdapter narrows broker.Gateway down to the order-leg-replacement and
// opposite-side-reduction operations PositionProtector drives, converting
// position-relative calls (e.g. "replace this position's stop") into the
// order-ID-relative calls broker.Gateway exposes.
type BrokerAdapter struct {
	GW *broker.Gateway
}

func (a *BrokerAdapter) ReplaceStop(ctx context.Context, position domain.Position, newStop decimal.Decimal) error {
	_, err := a.GW.ReplaceOrder(ctx, position.Bracket.StopOrder.ID, newStop, true)
	return err
}

func (a *BrokerAdapter) ReplaceTarget(ctx context.Context, position domain.Position, newTarget decimal.Decimal) error {
	_, err := a.GW.ReplaceOrder(ctx, position.Bracket.TargetOrder.ID, newTarget, false)
	return err
}

// SubmitReduceOnly closes a slice of an open position at a limit price —
// the partial-profit leg of the ladder (spec §4.8). Alpaca equities orders
// have no native reduce-only flag; an opposite-side limit order sized at or
// below the held quantity achieves the same effect.
func (a *BrokerAdapter) SubmitReduceOnly(ctx context.Context, position domain.Position, qty decimal.Decimal) error {
	_, err := a.GW.SubmitOrder(ctx, alpaca.PlaceOrderRequest{
		Symbol:        position.Symbol,
		Qty:           &qty,
		Side:          exitSide(position.Side),
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.Day,
		LimitPrice:    positionTargetPrice(position),
		ClientOrderID: fmt.Sprintf("partial-%s-%d", position.Symbol, position.PartialsTaken),
	})
	return err
}

// ClosePosition flattens the remainder of a position at a limit price
// (spec §4.8's stop/target exits), as opposed to BrokerAdapter.ClosePositionMarket
// in internal/engine, which is reserved for the emergency-stop exception.
func (a *BrokerAdapter) ClosePosition(ctx context.Context, position domain.Position, limitPrice decimal.Decimal) error {
	qty := position.Qty
	_, err := a.GW.SubmitOrder(ctx, alpaca.PlaceOrderRequest{
		Symbol:        position.Symbol,
		Qty:           &qty,
		Side:          exitSide(position.Side),
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.Day,
		LimitPrice:    &limitPrice,
		ClientOrderID: fmt.Sprintf("close-%s-%d", position.Symbol, position.EntryTime.Unix()),
	})
	return err
}

// StopOrderHealthy checks the stop leg is still live on the broker's books,
// the input the stuck-stop scan (spec §4.8) uses to detect a silently
// canceled, rejected, expired or held stop order protecting nobody.
func (a *BrokerAdapter) StopOrderHealthy(ctx context.Context, position domain.Position) (bool, error) {
	if position.Bracket.StopOrder.ID == "" {
		return false, nil
	}
	order, err := a.GW.GetOrder(ctx, position.Bracket.StopOrder.ID)
	if err != nil {
		return false, err
	}
	switch string(order.Status) {
	case "canceled", "rejected", "expired", "held":
		return false, nil
	}
	return true, nil
}

// exitSide is the closing-order side for a held position: selling out of a
// long, buying to cover a short.
func exitSide(side domain.Side) alpaca.Side {
	if side == domain.SideShort {
		return alpaca.Buy
	}
	return alpaca.Sell
}

func positionTargetPrice(position domain.Position) *decimal.Decimal {
	p := position.TakeProfit
	return &p
}
