package notify

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

// pushMessage mirrors push_service.go's PushMessage; the "ALL_WHALES" topic
// becomes "trading_alerts" for this domain.
type pushMessage struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

const pushTopic = "trading_alerts"

// Push is the optional FCM subscriber (push_service.go's PushService),
// wired to CircuitBreakerTripped/PositionClosed instead of whale alerts.
type Push struct {
	client *messaging.Client
	queue  chan pushMessage
}

// NewPush returns nil when serviceAccountKey.json is absent, the same
// fail-open shape as push_service.go's NewPushService.
func NewPush(credentialsFile string) *Push {
	if credentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		log.Println("⚠️ NOTIFY: FCM credentials not found, push disabled")
		return nil
	}

	app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		log.Printf("⚠️ NOTIFY: FCM app init failed: %v", err)
		return nil
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️ NOTIFY: FCM messaging client failed: %v", err)
		return nil
	}

	log.Println("✅ NOTIFY: FCM push service initialized")
	return &Push{client: client, queue: make(chan pushMessage, 500)}
}

// StartWorker drains the queue serially, matching push_service.go's
// StartWorker throughput-managing loop.
func (p *Push) StartWorker(ctx context.Context) {
	if p == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			message := &messaging.Message{
				Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
				Data:         msg.Data,
				Topic:        msg.Topic,
			}
			if _, err := p.client.Send(ctx, message); err != nil {
				log.Printf("⚠️ NOTIFY: FCM send error: %v", err)
			}
		}
	}
}

func (p *Push) enqueue(msg pushMessage) {
	if p == nil {
		return
	}
	select {
	case p.queue <- msg:
	default:
		log.Println("⚠️ NOTIFY: push queue full, dropping alert")
	}
}

// Subscribe attaches Push as an EventBus subscriber for the same critical
// events Telegram gets, giving mobile clients a parallel channel.
func (p *Push) Subscribe(ctx context.Context, bus *eventbus.Bus) {
	if p == nil {
		return
	}
	sub := bus.Subscribe("push")
	go func() {
		defer bus.Unsubscribe("push")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Ch:
				if !ok {
					return
				}
				switch ev.Kind {
				case eventbus.KindCircuitBreakerTripped:
					if pl, ok := ev.Payload.(eventbus.CircuitBreakerTrippedPayload); ok {
						p.enqueue(pushMessage{
							Topic: pushTopic, Title: "🚨 Circuit Breaker Tripped",
							Body: fmt.Sprintf("Drawdown %.2f%% — trading halted", pl.DrawdownPct*100),
							Data: map[string]string{"type": "circuit_breaker"},
						})
					}
				case eventbus.KindPositionClosed:
					if pl, ok := ev.Payload.(eventbus.PositionClosedPayload); ok {
						p.enqueue(pushMessage{
							Topic: pushTopic, Title: "📉 Position Closed",
							Body: fmt.Sprintf("%s closed (%s)", pl.Symbol, pl.Reason),
							Data: map[string]string{"type": "position_closed", "symbol": pl.Symbol, "reason": pl.Reason},
						})
					}
				}
			}
		}
	}()
}
