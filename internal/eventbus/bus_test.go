package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	b := New()
	a := b.Subscribe("a")
	c := b.Subscribe("b")

	b.Publish(Event{Kind: KindSignalGenerated, Symbol: "AAPL"})

	select {
	case ev := <-a.Ch:
		assert.Equal(t, "AAPL", ev.Symbol)
	case <-time.After(time.Second):
		t.Fatal("subscriber a never received the event")
	}
	select {
	case ev := <-c.Ch:
		assert.Equal(t, "AAPL", ev.Symbol)
	case <-time.After(time.Second):
		t.Fatal("subscriber b never received the event")
	}
}

func TestPublishDropsInsteadOfBlockingOnFullSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe("slow")

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Kind: KindEngineLog})
	}

	assert.Equal(t, subscriberBuffer, len(sub.Ch), "publish must never block even once the buffer is full")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("x")
	b.Unsubscribe("x")

	_, ok := <-sub.Ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestLogfPublishesEngineLogEvent(t *testing.T) {
	b := New()
	sub := b.Subscribe("logs")

	b.Logf("info", "hello %s", "world")

	ev := <-sub.Ch
	assert.Equal(t, KindEngineLog, ev.Kind)
	payload, ok := ev.Payload.(EngineLogPayload)
	require.True(t, ok)
	assert.Equal(t, "hello world", payload.Message)
}
