package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebytelabs/daytrader-engine/internal/domain"
	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

type fakeExecGateway struct {
	submitOrder *orderRef
	submitErr   error

	getOrderResponses []*orderRef
	getOrderCall      int
	getOrderErr       error

	cancelErr error
	positions []positionRef

	lastLimitPrice decimal.Decimal
}

func (f *fakeExecGateway) SubmitBracket(ctx context.Context, symbol, side string, qty decimal.Decimal, limitPrice, takeProfit, stopLoss decimal.Decimal, clientOrderID string) (*orderRef, error) {
	f.lastLimitPrice = limitPrice
	return f.submitOrder, f.submitErr
}

func (f *fakeExecGateway) GetOrder(ctx context.Context, orderID string) (*orderRef, error) {
	if f.getOrderErr != nil {
		return nil, f.getOrderErr
	}
	if f.getOrderCall >= len(f.getOrderResponses) {
		return f.getOrderResponses[len(f.getOrderResponses)-1], nil
	}
	o := f.getOrderResponses[f.getOrderCall]
	f.getOrderCall++
	return o, nil
}

func (f *fakeExecGateway) CancelOrder(ctx context.Context, orderID string) error {
	return f.cancelErr
}

func (f *fakeExecGateway) GetPositions(ctx context.Context) ([]positionRef, error) {
	return f.positions, nil
}

func testIntent() domain.Intent {
	return domain.Intent{
		Symbol: "AAPL", Side: domain.SideLong, Qty: decimal.NewFromInt(10),
		Entry: decimal.NewFromInt(100), Stop: decimal.NewFromInt(98), Target: decimal.NewFromInt(106),
		IdempotencyKey: "test-1",
	}
}

func TestSubmitImmediateFillReturnsBracket(t *testing.T) {
	gw := &fakeExecGateway{
		submitOrder:       &orderRef{ID: "o1"},
		getOrderResponses: []*orderRef{{ID: "o1", Status: "filled", FilledQty: decimal.NewFromInt(10), FilledAvgPrice: decimal.NewFromInt(100), FilledAt: time.Now()}},
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Second, MinRewardRisk: 1.5, MaxSlippagePct: 0.01})

	group, err := e.Submit(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, "o1", group.EntryOrder.ID)
	assert.Equal(t, domain.OrderFilled, group.EntryOrder.Status)
	assert.True(t, group.EntryOrder.FilledQty.Equal(decimal.NewFromInt(10)))
}

func TestSubmitBracketErrorPublishesRejectionAndReturnsErr(t *testing.T) {
	gw := &fakeExecGateway{submitErr: errors.New("insufficient buying power")}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Second})

	_, err := e.Submit(context.Background(), testIntent())
	require.Error(t, err)
}

func TestAwaitFillDetectsFillViaFilledQtyWithoutStatusString(t *testing.T) {
	gw := &fakeExecGateway{
		getOrderResponses: []*orderRef{{ID: "o1", Status: "partially_filled", FilledQty: decimal.NewFromInt(10), FilledAvgPrice: decimal.NewFromInt(101)}},
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Second})

	order, err := e.awaitFill(context.Background(), "o1", testIntent())
	require.NoError(t, err)
	assert.True(t, order.FilledQty.Equal(decimal.NewFromInt(10)))
}

func TestAwaitFillTerminalNonFillStatusReturnsError(t *testing.T) {
	gw := &fakeExecGateway{
		getOrderResponses: []*orderRef{{ID: "o1", Status: "rejected"}},
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Second})

	_, err := e.awaitFill(context.Background(), "o1", testIntent())
	assert.Error(t, err)
}

func TestAwaitFillTimeoutThenCancelAlreadyTerminalTreatsAsFilled(t *testing.T) {
	gw := &fakeExecGateway{
		getOrderResponses: []*orderRef{
			{ID: "o1", Status: "new"},
			{ID: "o1", Status: "filled", FilledQty: decimal.NewFromInt(10), FilledAvgPrice: decimal.NewFromInt(100)},
		},
		cancelErr: errors.New("order already filled"),
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Nanosecond})

	order, err := e.awaitFill(context.Background(), "o1", testIntent())
	require.NoError(t, err)
	assert.Equal(t, "filled", order.Status)
}

func TestAwaitFillTimeoutCancelSucceedsButPositionExistsReconciles(t *testing.T) {
	gw := &fakeExecGateway{
		getOrderResponses: []*orderRef{{ID: "o1", Status: "new"}},
		cancelErr:         nil,
		positions:         []positionRef{{Symbol: "AAPL", Qty: decimal.NewFromInt(10)}},
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Nanosecond})

	order, err := e.awaitFill(context.Background(), "o1", testIntent())
	require.NoError(t, err)
	assert.True(t, order.FilledQty.Equal(decimal.NewFromInt(10)))
}

func TestAwaitFillTimeoutCleanCancelNoPositionReturnsError(t *testing.T) {
	gw := &fakeExecGateway{
		getOrderResponses: []*orderRef{{ID: "o1", Status: "new"}},
		cancelErr:         nil,
		positions:         nil,
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Nanosecond})

	_, err := e.awaitFill(context.Background(), "o1", testIntent())
	assert.Error(t, err)
}

func TestValidateAgainstFillCleanFillReturnsNoViolation(t *testing.T) {
	gw := &fakeExecGateway{}
	e := New(gw, eventbus.New(), Config{MinRewardRisk: 1.5, MaxSlippagePct: 0.05})
	intent := testIntent()

	v := e.validateAgainstFill(intent, &orderRef{FilledAvgPrice: decimal.NewFromInt(100)})
	assert.Empty(t, v.Kind)
}

func TestValidateAgainstFillRewardRiskBelowMinReportsCloseViolation(t *testing.T) {
	gw := &fakeExecGateway{}
	e := New(gw, eventbus.New(), Config{MinRewardRisk: 3.0, MaxSlippagePct: 0.5})
	intent := testIntent() // stop=98 target=106

	// fill at 103: risk=5, reward=3, rr=0.6 < 3.0
	v := e.validateAgainstFill(intent, &orderRef{FilledAvgPrice: decimal.NewFromInt(103)})
	assert.Equal(t, domain.FillViolationRewardRisk, v.Kind)
}

func TestValidateAgainstFillSlippageRecommendsWidenedStop(t *testing.T) {
	gw := &fakeExecGateway{}
	e := New(gw, eventbus.New(), Config{MinRewardRisk: 0.1, MaxSlippagePct: 0.01})
	intent := testIntent() // entry=100, stop=98

	// fill at 102: 2% slippage > 1% max.
	v := e.validateAgainstFill(intent, &orderRef{FilledAvgPrice: decimal.NewFromInt(102)})
	require.Equal(t, domain.FillViolationSlippage, v.Kind)
	assert.True(t, v.RecommendedStop.Equal(decimal.NewFromInt(96)), "stop should widen by the same 2 the fill slipped")
}

func TestSubmitComputesSlippageBufferedLimitPrice(t *testing.T) {
	gw := &fakeExecGateway{
		submitOrder:       &orderRef{ID: "o1"},
		getOrderResponses: []*orderRef{{ID: "o1", Status: "filled", FilledQty: decimal.NewFromInt(10), FilledAvgPrice: decimal.NewFromInt(100)}},
	}
	e := New(gw, eventbus.New(), Config{FillTimeout: time.Second, SlippageBufferPct: 0.01})

	_, err := e.Submit(context.Background(), testIntent()) // entry=100
	require.NoError(t, err)
	assert.True(t, gw.lastLimitPrice.Equal(decimal.NewFromInt(101)), "long entry limit should be entry+buffer")
}
