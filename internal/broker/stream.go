package broker

import (
	"context"
	"log"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	streamv2 "github.com/alpacahq/alpaca-trade-api-go/v3/stream"
)

// TradeUpdate is the normalized fill/cancel/reject notification surfaced to
// OrderExecutor, decoupled from the alpaca stream wire type.
type TradeUpdate struct {
	Event     string
	OrderID   string
	Symbol    string
	FilledQty string
	FilledAvg string
	Timestamp time.Time
}

// StreamTradeUpdates opens Alpaca's trade-updates websocket and forwards
// normalized events on the returned channel, reconnecting with backoff on
// disconnect — the same keep-retrying-until-it-works shape hub.go's pinger
// loop uses for client keepalive, applied here to the upstream leg instead.
func (g *Gateway) StreamTradeUpdates(ctx context.Context, keyID, secretKey, baseURL string) <-chan TradeUpdate {
	out := make(chan TradeUpdate, 64)

	go func() {
		defer close(out)
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			client := streamv2.NewClient(
				streamv2.WithCredentials(keyID, secretKey),
				streamv2.WithBaseURL(baseURL),
				streamv2.WithTradeUpdates(func(tu alpaca.TradeUpdate) {
					var filledQty, filledAvg string
					if tu.Order.FilledQty != "" {
						filledQty = tu.Order.FilledQty
					}
					if tu.Order.FilledAvgPrice != nil {
						filledAvg = *tu.Order.FilledAvgPrice
					}
					select {
					case out <- TradeUpdate{
						Event:     tu.Event,
						OrderID:   tu.Order.ID,
						Symbol:    tu.Order.Symbol,
						FilledQty: filledQty,
						FilledAvg: filledAvg,
						Timestamp: time.Now(),
					}:
					case <-ctx.Done():
					}
				}),
			)

			if err := client.Connect(ctx); err != nil {
				attempt++
				wait := backoffDelay(attempt)
				log.Printf("⚠️ BROKER: trade-update stream connect failed (attempt %d): %v, retrying in %s", attempt, err, wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				continue
			}

			attempt = 0
			if err := client.Terminated(); err != nil {
				log.Printf("⚠️ BROKER: trade-update stream terminated: %v, reconnecting", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()

	return out
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}
