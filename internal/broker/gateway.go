package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
)

// Gateway is the BrokerGateway component (spec §4.1). It is the only package
// allowed to import the alpaca SDK directly; every other package depends on
// the small Gateway-shaped interfaces it satisfies (see marketdata.Gateway).
type Gateway struct {
	trading *alpaca.Client
	data    *alpacamd.Client

	orderLimiter *rate.Limiter
	dataLimiter  *rate.Limiter

	retryPolicy func() *backoff.Backoff
}

type Opts struct {
	KeyID     string
	SecretKey string
	BaseURL   string
	DataURL   string
}

// New wires an alpaca.Client/marketdata.Client pair the same way
// VWAPIntradayStrategy.Initialize does, plus the retry/rate-limit policy
// this gateway adds on top (spec §5, §7).
func New(o Opts) *Gateway {
	return &Gateway{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    o.KeyID,
			ApiSecret: o.SecretKey,
			BaseURL:   o.BaseURL,
		}),
		data: alpacamd.NewClient(alpacamd.ClientOpts{
			APIKey:    o.KeyID,
			ApiSecret: o.SecretKey,
			BaseURL:   o.DataURL,
		}),
		// 200 requests/min trading API, per Alpaca's documented default.
		orderLimiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 5),
		dataLimiter:  rate.NewLimiter(rate.Every(150*time.Millisecond), 10),
		retryPolicy: func() *backoff.Backoff {
			return &backoff.Backoff{Min: 250 * time.Millisecond, Max: 8 * time.Second, Factor: 2, Jitter: true}
		},
	}
}

// withRetry retries fn while Classify(err) says the failure is transient or
// rate-limited, backing off with jitter (spec §7 BrokerTransient), up to
// maxAttempts tries.
func (g *Gateway) withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	b := g.retryPolicy()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return lastErr
}

func (g *Gateway) GetAccount(ctx context.Context) (*alpaca.Account, error) {
	var acct *alpaca.Account
	err := g.withRetry(ctx, 3, func() error {
		var e error
		acct, e = g.trading.GetAccount()
		return e
	})
	return acct, err
}

func (g *Gateway) GetClock(ctx context.Context) (*alpaca.Clock, error) {
	var clock *alpaca.Clock
	err := g.withRetry(ctx, 3, func() error {
		var e error
		clock, e = g.trading.GetClock()
		return e
	})
	return clock, err
}

func (g *Gateway) GetPositions(ctx context.Context) ([]alpaca.Position, error) {
	var positions []alpaca.Position
	err := g.withRetry(ctx, 3, func() error {
		var e error
		positions, e = g.trading.GetPositions()
		return e
	})
	return positions, err
}

func (g *Gateway) GetOrder(ctx context.Context, orderID string) (*alpaca.Order, error) {
	var order *alpaca.Order
	err := g.withRetry(ctx, 3, func() error {
		var e error
		order, e = g.trading.GetOrder(orderID)
		return e
	})
	return order, err
}

func (g *Gateway) GetOpenOrders(ctx context.Context) ([]alpaca.Order, error) {
	var orders []alpaca.Order
	err := g.withRetry(ctx, 3, func() error {
		status := "open"
		req := alpaca.GetOrdersRequest{Status: status}
		var e error
		orders, e = g.trading.GetOrders(req)
		return e
	})
	return orders, err
}

// GetBars fetches bars satisfying marketdata.Gateway, converting the
// alpaca marketdata.Bar representation into our decimal-typed Bar.
func (g *Gateway) GetBars(ctx context.Context, symbol string, tf marketdata.Timeframe, limit int, since time.Time) ([]marketdata.Bar, error) {
	if err := g.dataLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := since
	if start.IsZero() {
		start = time.Now().AddDate(0, 0, -10)
	}

	var raw []alpacamd.Bar
	err := g.withRetry(ctx, 3, func() error {
		req := alpacamd.GetBarsRequest{
			TimeFrame: toAlpacaTimeframe(tf),
			Start:     start,
			End:       time.Now(),
			PageLimit: limit,
		}
		var e error
		raw, e = g.data.GetBars(symbol, req)
		return e
	})
	if err != nil {
		return nil, err
	}

	bars := make([]marketdata.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, marketdata.Bar{
			Symbol:    symbol,
			TsOpen:    b.Timestamp,
			Open:      decimal.NewFromFloat(b.Open),
			High:      decimal.NewFromFloat(b.High),
			Low:       decimal.NewFromFloat(b.Low),
			Close:     decimal.NewFromFloat(b.Close),
			Volume:    decimal.NewFromFloat(float64(b.Volume)),
			Timeframe: tf,
		})
	}
	return bars, nil
}

func (g *Gateway) GetLatestTrade(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	if err := g.dataLimiter.Wait(ctx); err != nil {
		return decimal.Zero, time.Time{}, err
	}
	var trade alpacamd.Trade
	err := g.withRetry(ctx, 3, func() error {
		var e error
		trade, e = g.data.GetLatestTrade(symbol, alpacamd.GetLatestTradeRequest{})
		return e
	})
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return decimal.NewFromFloat(trade.Price), trade.Timestamp, nil
}

func (g *Gateway) GetLatestQuote(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	if err = g.dataLimiter.Wait(ctx); err != nil {
		return
	}
	var quote alpacamd.Quote
	err = g.withRetry(ctx, 3, func() error {
		var e error
		quote, e = g.data.GetLatestQuote(symbol, alpacamd.GetLatestQuoteRequest{})
		return e
	})
	if err != nil {
		return
	}
	return decimal.NewFromFloat(quote.BidPrice), decimal.NewFromFloat(quote.AskPrice), nil
}

// IdempotencyKey derives a stable client order id for (symbol, side, asOf) so
// a retried submission after a network error reuses the same client order id
// (spec §5 Idempotence); the gateway keeps no de-duplication state of its own.
func IdempotencyKey(symbol, side string, asOf time.Time) string {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%s|%d", symbol, side, asOf.Unix())))
	return ns.String()
}

// SubmitOrder places a plain market/limit order (used for non-bracket exits,
// e.g. manual close), rate-limited at the trading-API slot.
func (g *Gateway) SubmitOrder(ctx context.Context, req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	if err := g.orderLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	var order *alpaca.Order
	err := g.withRetry(ctx, 2, func() error {
		var e error
		order, e = g.trading.PlaceOrder(req)
		return e
	})
	return order, err
}

// toAlpacaSide converts domain's "long"/"short" vocabulary into Alpaca's
// "buy"/"sell" order side. Entering a long is a buy; entering a short is a
// sell (short-sale); this is the only place that mapping happens, so every
// caller above this package stays in domain vocabulary.
func toAlpacaSide(side string) alpaca.Side {
	if side == "short" {
		return alpaca.Sell
	}
	return alpaca.Buy
}

// SubmitBracket places a limit entry order, priced at limitPrice (the
// caller's realtime-price-plus-slippage-buffer computation), with attached
// take-profit/stop-loss legs in a single call (spec §4.7), using alpaca's
// native OrderClass: "bracket".
func (g *Gateway) SubmitBracket(ctx context.Context, symbol, side string, qty decimal.Decimal, limitPrice, takeProfit, stopLoss decimal.Decimal, clientOrderID string) (*alpaca.Order, error) {
	if err := g.orderLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          toAlpacaSide(side),
		Type:          alpaca.Limit,
		LimitPrice:    &limitPrice,
		TimeInForce:   alpaca.Day,
		OrderClass:    alpaca.Bracket,
		ClientOrderID: clientOrderID,
		TakeProfit:    &alpaca.TakeProfit{LimitPrice: &takeProfit},
		StopLoss:      &alpaca.StopLoss{StopPrice: &stopLoss},
	}

	var order *alpaca.Order
	err := g.withRetry(ctx, 2, func() error {
		var e error
		order, e = g.trading.PlaceOrder(req)
		return e
	})
	return order, err
}

// ReplaceOrder moves an existing order's limit/stop price in place,
// preserving its ID and queue position — the mechanism PositionProtector
// uses to ratchet a stop or target without canceling and resubmitting the
// bracket leg (spec §4.8).
func (g *Gateway) ReplaceOrder(ctx context.Context, orderID string, newPrice decimal.Decimal, isStop bool) (*alpaca.Order, error) {
	if err := g.orderLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := alpaca.ReplaceOrderRequest{}
	if isStop {
		req.StopPrice = &newPrice
	} else {
		req.LimitPrice = &newPrice
	}
	var order *alpaca.Order
	err := g.withRetry(ctx, 2, func() error {
		var e error
		order, e = g.trading.ReplaceOrder(orderID, req)
		return e
	})
	return order, err
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.orderLimiter.Wait(ctx); err != nil {
		return err
	}
	return g.withRetry(ctx, 2, func() error {
		return g.trading.CancelOrder(orderID)
	})
}

// ClosePosition liquidates a position via Alpaca's dedicated close endpoint,
// grounded in execution_service.go's emergencyClose (market-close-now path).
func (g *Gateway) ClosePosition(ctx context.Context, symbol string) error {
	if err := g.orderLimiter.Wait(ctx); err != nil {
		return err
	}
	return g.withRetry(ctx, 2, func() error {
		_, e := g.trading.ClosePosition(symbol, alpaca.ClosePositionRequest{})
		return e
	})
}

func toAlpacaTimeframe(tf marketdata.Timeframe) alpacamd.TimeFrame {
	switch tf {
	case marketdata.Timeframe1Min:
		return alpacamd.OneMin
	case marketdata.Timeframe5Min:
		return alpacamd.NewTimeFrame(5, alpacamd.Min)
	case marketdata.Timeframe15Min:
		return alpacamd.NewTimeFrame(15, alpacamd.Min)
	case marketdata.Timeframe1Day:
		return alpacamd.OneDay
	default:
		return alpacamd.OneMin
	}
}
