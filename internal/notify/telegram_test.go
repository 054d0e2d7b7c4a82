package notify

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
)

func TestNewTelegramWithNoTokenReturnsNil(t *testing.T) {
	tg := NewTelegram("", 0)
	if tg != nil {
		t.Fatal("expected a nil Telegram when no bot token is configured")
	}
}

func TestNilTelegramIsSafeToUse(t *testing.T) {
	var tg *Telegram
	// None of these should panic on a nil receiver — every call site in
	// cmd/engine wires Telegram unconditionally and relies on this.
	tg.Notify("should be a no-op")
	tg.NotifyCircuitBreaker(0.1)
	tg.NotifyPositionClosed("AAPL", "target_hit", decimal.Zero)
	tg.Subscribe(context.Background(), eventbus.New())
	tg.StartCommandListener(context.Background(), nil)
}
